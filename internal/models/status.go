package models

import "errors"

type Status string

const (
	StatusNew       Status = "new"
	StatusViewed    Status = "viewed"
	StatusContacted Status = "contacted"
	StatusConverted Status = "converted"
	StatusDismissed Status = "dismissed"
)

var (
	ErrNotFound          = errors.New("opportunity not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ActiveStatuses is the lifecycle subset that participates in deduplication
// and default query results. Converted and dismissed rows never block a
// genuinely new instance of the same lead.
var ActiveStatuses = []Status{StatusNew, StatusViewed, StatusContacted}

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusViewed, StatusContacted, StatusConverted, StatusDismissed:
		return true
	}
	return false
}

func (s Status) Active() bool {
	return s == StatusNew || s == StatusViewed || s == StatusContacted
}

// transitions is the allowed status graph. Converted and dismissed are
// terminal. Self-transitions are accepted everywhere so repeated calls stay
// idempotent.
var transitions = map[Status][]Status{
	StatusNew:       {StatusViewed, StatusDismissed},
	StatusViewed:    {StatusContacted, StatusDismissed},
	StatusContacted: {StatusConverted, StatusDismissed},
	StatusConverted: {},
	StatusDismissed: {},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
