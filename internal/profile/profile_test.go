package profile

import (
	"context"
	"testing"
)

func TestValidateNormalisesEnums(t *testing.T) {
	p := &Profile{ID: "me", Remote: "Preferred", Experience: "Senior"}
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Remote != RemotePreferred || p.Experience != LevelSenior {
		t.Fatalf("enums not normalised: %+v", p)
	}

	empty := &Profile{ID: "me"}
	if err := empty.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if empty.Remote != RemoteNoPreference {
		t.Fatalf("expected no-preference default, got %q", empty.Remote)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		profile Profile
	}{
		{name: "missing id", profile: Profile{}},
		{name: "bad remote", profile: Profile{ID: "x", Remote: "sometimes"}},
		{name: "bad level", profile: Profile{ID: "x", Experience: "wizard"}},
		{name: "bad salary", profile: Profile{ID: "x", SalaryMin: 100, SalaryMax: 50}},
		{name: "bad proficiency", profile: Profile{ID: "x", Skills: []Skill{{Name: "Go", Proficiency: 6}}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := tt.profile
			if err := p.Validate(); err == nil {
				t.Fatalf("expected error for %+v", tt.profile)
			}
		})
	}
}

func TestLevelRank(t *testing.T) {
	order := []Level{LevelJunior, LevelMid, LevelSenior, LevelLead}
	for i, l := range order {
		if l.Rank() != i {
			t.Fatalf("rank of %s = %d, want %d", l, l.Rank(), i)
		}
	}
	if LevelUnknown.Rank() != -1 {
		t.Fatalf("unknown level must rank -1")
	}
}

func TestFingerprint(t *testing.T) {
	a := &Profile{ID: "me", TargetTitles: []string{"B", "A"}, Skills: []Skill{{Name: "Go", Proficiency: 5}, {Name: "SQL", Proficiency: 3}}}
	b := &Profile{ID: "me", TargetTitles: []string{"A", "B"}, Skills: []Skill{{Name: "SQL", Proficiency: 3}, {Name: "Go", Proficiency: 5}}}

	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("fingerprint must not depend on ordering")
	}

	b.AutoApply = AutoApply{Enabled: true, Confirmed: true}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("auto-apply settings do not affect scoring")
	}

	b.Skills[0].Proficiency = 1
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatalf("fingerprint must change with skills")
	}
}

func TestStaticReturnsActiveProfiles(t *testing.T) {
	provider := Static{{ID: "a", Active: true}, {ID: "b"}}
	profiles, err := provider.Profiles(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profiles) != 1 || profiles[0].ID != "a" {
		t.Fatalf("unexpected profiles: %+v", profiles)
	}
}
