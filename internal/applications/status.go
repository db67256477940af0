// Package applications defines the application state machine and the
// approval queue that gates unattended applications.
//
// Valid status graph:
//
//	APPLIED ──► REVIEWING ──► INTERVIEW ──► OFFER ──► ACCEPTED
//	   │            │             │           │
//	   └────────────┴─────────────┴──► REJECTED └──► DECLINED
//
// Every non-terminal status may also move to WITHDRAWN.
// ACCEPTED, DECLINED, REJECTED and WITHDRAWN are terminal.
package applications

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Status is the position of an application in the funnel.
type Status string

const (
	StatusApplied   Status = "applied"
	StatusReviewing Status = "reviewing"
	StatusInterview Status = "interview"
	StatusOffer     Status = "offer"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusRejected  Status = "rejected"
	StatusWithdrawn Status = "withdrawn"
)

// Statuses lists every status in funnel order.
var Statuses = []Status{
	StatusApplied, StatusReviewing, StatusInterview, StatusOffer,
	StatusAccepted, StatusDeclined, StatusRejected, StatusWithdrawn,
}

// validTransitions lists every allowed (from → to) pair apart from the
// withdrawal that every non-terminal status allows.
var validTransitions = map[Status][]Status{
	StatusApplied:   {StatusReviewing, StatusRejected},
	StatusReviewing: {StatusInterview, StatusRejected},
	StatusInterview: {StatusOffer, StatusRejected},
	StatusOffer:     {StatusAccepted, StatusDeclined},
	// terminal statuses have no outgoing transitions
}

// ErrDuplicateApplication is returned when a (job, profile) pair already has
// an application.
var ErrDuplicateApplication = errors.New("application already exists for job and profile")

// IllegalTransitionError is returned for moves the state machine forbids.
type IllegalTransitionError struct {
	ApplicationID string
	From          Status
	To            Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("application %s: transition %s -> %s is not allowed", e.ApplicationID, e.From, e.To)
}

// ParseStatus converts a raw string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Statuses, st) {
		return st, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s Status) bool {
	_, ok := validTransitions[s]
	return !ok
}

// IsTransitionAllowed reports whether from → to is permitted.
func IsTransitionAllowed(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	if to == StatusWithdrawn {
		return true
	}
	return slices.Contains(allowed, to)
}

// NextStatuses lists the statuses reachable from s.
func NextStatuses(s Status) []Status {
	allowed, ok := validTransitions[s]
	if !ok {
		return nil
	}
	return append(slices.Clone(allowed), StatusWithdrawn)
}
