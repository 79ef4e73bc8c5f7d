package models

import "testing"

func TestCanTransition_ForwardPath(t *testing.T) {
	path := []Status{StatusNew, StatusViewed, StatusContacted, StatusConverted}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Fatalf("expected %s -> %s to be legal", path[i], path[i+1])
		}
	}
}

func TestCanTransition_DismissFromAnyActive(t *testing.T) {
	for _, from := range ActiveStatuses {
		if !CanTransition(from, StatusDismissed) {
			t.Fatalf("expected %s -> dismissed to be legal", from)
		}
	}
}

func TestCanTransition_TerminalStatesReject(t *testing.T) {
	for _, from := range []Status{StatusConverted, StatusDismissed} {
		for _, to := range []Status{StatusNew, StatusViewed, StatusContacted} {
			if CanTransition(from, to) {
				t.Fatalf("expected %s -> %s to be rejected", from, to)
			}
		}
	}
}

func TestCanTransition_NoSkippingAhead(t *testing.T) {
	if CanTransition(StatusNew, StatusConverted) {
		t.Fatal("expected new -> converted to be rejected")
	}
	if CanTransition(StatusNew, StatusContacted) {
		t.Fatal("expected new -> contacted to be rejected")
	}
}

func TestCanTransition_SelfIsNoOp(t *testing.T) {
	for _, s := range []Status{StatusNew, StatusViewed, StatusContacted, StatusConverted, StatusDismissed} {
		if !CanTransition(s, s) {
			t.Fatalf("expected %s -> %s to be accepted as no-op", s, s)
		}
	}
}

func TestStatusActive(t *testing.T) {
	if !StatusNew.Active() || !StatusViewed.Active() || !StatusContacted.Active() {
		t.Fatal("expected new/viewed/contacted to be active")
	}
	if StatusConverted.Active() || StatusDismissed.Active() {
		t.Fatal("expected converted/dismissed to be inactive")
	}
}
