package predict

import (
	"testing"
	"time"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"$60,000.00", 60000, false},
		{"60000", 60000, false},
		{" 1,234.50 ", 1234.5, false},
		{"$0", 0, false},
		{"", 0, true},
		{"   ", 0, true},
		{"-500", 0, true},
		{"$-500", 0, true},
		{"n/a", 0, true},
	}
	for _, c := range cases {
		got, err := parseMoney(c.raw)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseMoney(%q): expected error, got %v", c.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseMoney(%q): %v", c.raw, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseMoney(%q) = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	for _, raw := range []string{
		"2026-12-31",
		"2026-12-31T00:00:00",
		"2026-12-31T00:00:00.000",
		"12/31/2026",
	} {
		got, err := parseDate(raw)
		if err != nil {
			t.Fatalf("parseDate(%q): %v", raw, err)
		}
		if !got.Equal(want) {
			t.Errorf("parseDate(%q) = %v, want %v", raw, got, want)
		}
	}

	for _, raw := range []string{"", "31-12-2026", "soon"} {
		if _, err := parseDate(raw); err == nil {
			t.Errorf("parseDate(%q): expected error", raw)
		}
	}
}

func TestParseYear(t *testing.T) {
	if y, err := parseYear(" 2021 "); err != nil || y != 2021 {
		t.Fatalf("parseYear(2021) = %d, %v", y, err)
	}
	for _, raw := range []string{"", "abc", "1889", "2525"} {
		if _, err := parseYear(raw); err == nil {
			t.Errorf("parseYear(%q): expected error", raw)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{60000, "$60,000"},
		{999, "$999"},
		{1234567.89, "$1,234,568"},
		{0, "$0"},
	}
	for _, c := range cases {
		if got := formatMoney(c.in); got != c.want {
			t.Errorf("formatMoney(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestClampScore(t *testing.T) {
	if got := clampScore(1.1); got != 1 {
		t.Errorf("clampScore(1.1) = %v", got)
	}
	if got := clampScore(-0.2); got != 0 {
		t.Errorf("clampScore(-0.2) = %v", got)
	}
	if got := clampScore(0.75); got != 0.75 {
		t.Errorf("clampScore(0.75) = %v", got)
	}
}

func TestPercentOf(t *testing.T) {
	if got := percentOf(75000, 100000); got != 75 {
		t.Errorf("percentOf = %d, want 75", got)
	}
	if got := percentOf(1, 0); got != 0 {
		t.Errorf("percentOf with zero total = %d, want 0", got)
	}
}
