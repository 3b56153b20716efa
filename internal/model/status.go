package model

import "fmt"

// Status is the review state of an event.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusPublished     Status = "published"
	StatusRejected      Status = "rejected"
	StatusCancelled     Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusDraft:         {StatusPendingReview, StatusCancelled},
	StatusPendingReview: {StatusApproved, StatusRejected, StatusCancelled, StatusDraft},
	StatusApproved:      {StatusPublished, StatusCancelled, StatusRejected},
	StatusPublished:     {StatusCancelled},
	StatusRejected:      {StatusDraft},
	StatusCancelled:     {},
}

// ParseStatus validates a raw status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Blocks reports whether events in this status occupy their room.
func (s Status) Blocks() bool {
	switch s {
	case StatusPendingReview, StatusApproved, StatusPublished:
		return true
	}
	return false
}

// CanTransition reports whether the workflow allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsFinal reports whether no further transitions are possible.
func (s Status) IsFinal() bool {
	return len(transitions[s]) == 0
}

// BlockingStatuses lists the statuses that take part in conflict checks.
func BlockingStatuses() []Status {
	return []Status{StatusPendingReview, StatusApproved, StatusPublished}
}
