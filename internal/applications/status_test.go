package applications_test

import (
	"errors"
	"testing"
	"time"

	"github.com/spigell/jobhunter/internal/applications"
)

func TestParseStatus(t *testing.T) {
	for _, s := range applications.Statuses {
		got, err := applications.ParseStatus(string(s))
		if err != nil {
			t.Errorf("ParseStatus(%q) returned unexpected error: %v", s, err)
		}
		if got != s {
			t.Errorf("ParseStatus(%q) = %q", s, got)
		}
	}

	if got, err := applications.ParseStatus(" Interview "); err != nil || got != applications.StatusInterview {
		t.Errorf("ParseStatus is expected to be lenient on case and spaces, got %q %v", got, err)
	}

	for _, bad := range []string{"", "hired", "unknown"} {
		if _, err := applications.ParseStatus(bad); err == nil {
			t.Errorf("ParseStatus(%q) expected error, got nil", bad)
		}
	}
}

func TestIsTransitionAllowed_ValidForward(t *testing.T) {
	cases := []struct {
		from, to applications.Status
	}{
		{applications.StatusApplied, applications.StatusReviewing},
		{applications.StatusReviewing, applications.StatusInterview},
		{applications.StatusInterview, applications.StatusOffer},
		{applications.StatusInterview, applications.StatusRejected},
		{applications.StatusOffer, applications.StatusAccepted},
		{applications.StatusOffer, applications.StatusDeclined},
		{applications.StatusApplied, applications.StatusRejected},
		{applications.StatusReviewing, applications.StatusRejected},
	}
	for _, c := range cases {
		if !applications.IsTransitionAllowed(c.from, c.to) {
			t.Errorf("IsTransitionAllowed(%s, %s) = false, want true", c.from, c.to)
		}
	}
}

func TestIsTransitionAllowed_WithdrawFromAnyNonTerminal(t *testing.T) {
	for _, s := range applications.Statuses {
		got := applications.IsTransitionAllowed(s, applications.StatusWithdrawn)
		if got == applications.IsTerminal(s) {
			t.Errorf("withdraw from %s = %v, terminal = %v", s, got, applications.IsTerminal(s))
		}
	}
}

func TestIsTransitionAllowed_Illegal(t *testing.T) {
	cases := []struct {
		from, to applications.Status
	}{
		{applications.StatusOffer, applications.StatusReviewing},
		{applications.StatusRejected, applications.StatusInterview},
		{applications.StatusApplied, applications.StatusOffer},
		{applications.StatusApplied, applications.StatusApplied},
		{applications.StatusOffer, applications.StatusRejected},
		{applications.StatusAccepted, applications.StatusWithdrawn},
		{applications.StatusWithdrawn, applications.StatusApplied},
		{applications.StatusDeclined, applications.StatusOffer},
	}
	for _, c := range cases {
		if applications.IsTransitionAllowed(c.from, c.to) {
			t.Errorf("IsTransitionAllowed(%s, %s) = true, want false", c.from, c.to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := map[applications.Status]bool{
		applications.StatusAccepted:  true,
		applications.StatusDeclined:  true,
		applications.StatusRejected:  true,
		applications.StatusWithdrawn: true,
	}
	for _, s := range applications.Statuses {
		if applications.IsTerminal(s) != terminal[s] {
			t.Errorf("IsTerminal(%s) = %v", s, applications.IsTerminal(s))
		}
		if terminal[s] && len(applications.NextStatuses(s)) != 0 {
			t.Errorf("terminal %s must have no next statuses", s)
		}
	}
}

func TestApplicationTransitionHistory(t *testing.T) {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	app := applications.New("app-1", "job-1", "me", applications.MethodAuto, start)

	steps := []applications.Status{applications.StatusReviewing, applications.StatusInterview, applications.StatusOffer}
	for i, s := range steps {
		if err := app.Transition(s, start.Add(time.Duration(i+1)*time.Hour)); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}

	if app.Status != applications.StatusOffer {
		t.Fatalf("status = %s, want offer", app.Status)
	}
	if len(app.History) != 4 {
		t.Fatalf("history has %d entries, want 4", len(app.History))
	}
	if app.History[0].To != applications.StatusApplied || app.History[0].From != "" {
		t.Fatalf("unexpected first entry %+v", app.History[0])
	}
	if app.History[3].From != applications.StatusInterview || !app.History[3].At.Equal(start.Add(3*time.Hour)) {
		t.Fatalf("unexpected last entry %+v", app.History[3])
	}
}

func TestIllegalTransitionLeavesApplicationUnchanged(t *testing.T) {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	app := applications.New("app-1", "job-1", "me", applications.MethodManual, start)
	if err := app.Transition(applications.StatusRejected, start.Add(time.Hour)); err != nil {
		t.Fatalf("reject: %v", err)
	}
	before := app.Clone()

	err := app.Transition(applications.StatusInterview, start.Add(2*time.Hour))

	var illegal *applications.IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("expected IllegalTransitionError, got %v", err)
	}
	if illegal.From != applications.StatusRejected || illegal.To != applications.StatusInterview {
		t.Fatalf("unexpected error fields %+v", illegal)
	}
	if app.Status != before.Status || len(app.History) != len(before.History) || !app.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("application changed after illegal transition: %+v", app)
	}
}

func TestApprovalDecide(t *testing.T) {
	now := time.Now()
	req := &applications.ApprovalRequest{JobID: "j", ProfileID: "p", Status: applications.ApprovalPending}

	if err := req.Decide(true, "alice", now); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if req.Status != applications.ApprovalApproved || req.DecidedBy != "alice" || req.DecidedAt == nil {
		t.Fatalf("unexpected request %+v", req)
	}
	if err := req.Decide(false, "bob", now); err == nil {
		t.Fatalf("a decision must not be overwritten")
	}
}
