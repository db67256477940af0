package applications

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Method is how an application was submitted.
type Method string

const (
	MethodAuto     Method = "auto"
	MethodManual   Method = "manual"
	MethodTailored Method = "tailored"
)

// ParseMethod converts a raw string to a Method.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodAuto, MethodManual, MethodTailored:
		return m, nil
	}
	return "", fmt.Errorf("unknown application method %q", s)
}

// Transition is one entry of the history. Entries are only ever appended.
type Transition struct {
	From Status    `json:"from,omitempty"`
	To   Status    `json:"to"`
	At   time.Time `json:"at"`
}

// InterviewType is the format of an interview.
type InterviewType string

const (
	InterviewPhone    InterviewType = "phone"
	InterviewVideo    InterviewType = "video"
	InterviewInPerson InterviewType = "in-person"
)

// InterviewResult is the outcome of an interview.
type InterviewResult string

const (
	ResultPending InterviewResult = "pending"
	ResultPass    InterviewResult = "pass"
	ResultFail    InterviewResult = "fail"
)

// Interview is a scheduled or completed interview round.
type Interview struct {
	Date        time.Time       `json:"date"`
	Type        InterviewType   `json:"type"`
	Interviewer string          `json:"interviewer,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Result      InterviewResult `json:"result"`
}

// Offer records the terms of an offer.
type Offer struct {
	Salary         float64    `json:"salary,omitempty"`
	Benefits       string     `json:"benefits,omitempty"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	Notes          string     `json:"notes,omitempty"`
}

// Application tracks one (job, profile) pair from submission to outcome.
type Application struct {
	ID         string       `json:"id"`
	JobID      string       `json:"job_id"`
	ProfileID  string       `json:"profile_id"`
	Status     Status       `json:"status"`
	Method     Method       `json:"method"`
	AppliedAt  time.Time    `json:"applied_at"`
	Notes      string       `json:"notes,omitempty"`
	Interviews []Interview  `json:"interviews,omitempty"`
	Offer      *Offer       `json:"offer,omitempty"`
	History    []Transition `json:"history"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// New returns an application in the applied status with its first history
// entry recorded.
func New(id, jobID, profileID string, method Method, at time.Time) *Application {
	return &Application{
		ID:        id,
		JobID:     jobID,
		ProfileID: profileID,
		Status:    StatusApplied,
		Method:    method,
		AppliedAt: at,
		History:   []Transition{{To: StatusApplied, At: at}},
		UpdatedAt: at,
	}
}

// Transition moves the application to status to. An illegal move returns
// *IllegalTransitionError and leaves the application untouched.
func (a *Application) Transition(to Status, at time.Time) error {
	if !IsTransitionAllowed(a.Status, to) {
		return &IllegalTransitionError{ApplicationID: a.ID, From: a.Status, To: to}
	}

	a.History = append(a.History, Transition{From: a.Status, To: to, At: at})
	a.Status = to
	a.UpdatedAt = at
	return nil
}

// FirstResponseAt is the time the employer first moved the application.
// Withdrawals are the user's own action and do not count.
func (a *Application) FirstResponseAt() (time.Time, bool) {
	for _, t := range a.History {
		if t.From == "" || t.To == StatusWithdrawn {
			continue
		}
		return t.At, true
	}
	return time.Time{}, false
}

// Reached reports whether the application ever passed through status s.
func (a *Application) Reached(s Status) bool {
	return slices.ContainsFunc(a.History, func(t Transition) bool { return t.To == s })
}

// Clone returns a deep copy.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := *a
	c.History = slices.Clone(a.History)
	c.Interviews = slices.Clone(a.Interviews)
	if a.Offer != nil {
		o := *a.Offer
		c.Offer = &o
	}
	return &c
}
