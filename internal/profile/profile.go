// Package profile describes the user preferences jobs are scored against.
// Profiles are produced by the caller (for example from a parsed CV) and are
// read-only for the pipeline.
package profile

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// RemotePreference is how strongly the user wants remote work.
type RemotePreference string

const (
	RemoteRequired     RemotePreference = "required"
	RemotePreferred    RemotePreference = "preferred"
	RemoteNoPreference RemotePreference = "no-preference"
)

// Level is an experience level on the ordinal scale Junior < Mid < Senior < Lead.
type Level string

const (
	LevelUnknown Level = ""
	LevelJunior  Level = "junior"
	LevelMid     Level = "mid"
	LevelSenior  Level = "senior"
	LevelLead    Level = "lead"
)

// Rank returns the ordinal position of the level, or -1 when unknown.
func (l Level) Rank() int {
	switch l {
	case LevelJunior:
		return 0
	case LevelMid:
		return 1
	case LevelSenior:
		return 2
	case LevelLead:
		return 3
	default:
		return -1
	}
}

// ParseLevel accepts "Senior", "senior", "sr" and similar spellings.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return LevelUnknown, nil
	case "junior", "jr", "entry":
		return LevelJunior, nil
	case "mid", "middle", "intermediate":
		return LevelMid, nil
	case "senior", "sr":
		return LevelSenior, nil
	case "lead", "principal", "staff":
		return LevelLead, nil
	}
	return LevelUnknown, fmt.Errorf("unknown experience level %q", s)
}

// ParseRemotePreference accepts the three preferences; empty means no preference.
func ParseRemotePreference(s string) (RemotePreference, error) {
	switch p := RemotePreference(strings.ToLower(strings.TrimSpace(s))); p {
	case "", "none", "no_preference", RemoteNoPreference:
		return RemoteNoPreference, nil
	case RemoteRequired, RemotePreferred:
		return p, nil
	}
	return "", fmt.Errorf("unknown remote preference %q", s)
}

// Skill is one entry of the skills inventory.
type Skill struct {
	Name        string `json:"name" mapstructure:"name"`
	Proficiency int    `json:"proficiency" mapstructure:"proficiency"`
	Category    string `json:"category,omitempty" mapstructure:"category"`
}

// AutoApply controls unattended application for a profile. Enabled alone is
// not enough: Confirmed must be set as well.
type AutoApply struct {
	Enabled   bool    `json:"enabled" mapstructure:"enabled"`
	Confirmed bool    `json:"confirmed" mapstructure:"confirmed"`
	Threshold float64 `json:"threshold" mapstructure:"threshold"`
}

// Profile is a snapshot of one user's preferences.
type Profile struct {
	ID                 string           `json:"id" mapstructure:"id"`
	Name               string           `json:"name" mapstructure:"name"`
	Active             bool             `json:"active" mapstructure:"active"`
	TargetTitles       []string         `json:"target_titles" mapstructure:"target-titles"`
	TargetIndustries   []string         `json:"target_industries" mapstructure:"target-industries"`
	PreferredLocations []string         `json:"preferred_locations" mapstructure:"preferred-locations"`
	Remote             RemotePreference `json:"remote_preference" mapstructure:"remote-preference"`
	SalaryMin          float64          `json:"salary_min" mapstructure:"salary-min"`
	SalaryMax          float64          `json:"salary_max" mapstructure:"salary-max"`
	Experience         Level            `json:"experience_level" mapstructure:"experience-level"`
	ContractTypes      []string         `json:"contract_types" mapstructure:"contract-types"`
	Skills             []Skill          `json:"skills" mapstructure:"skills"`
	ExcludedCompanies  []string         `json:"excluded_companies" mapstructure:"excluded-companies"`
	AutoApply          AutoApply        `json:"auto_apply" mapstructure:"auto-apply"`
}

// Validate normalises enum fields and rejects impossible values.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("profile id is required")
	}

	remote, err := ParseRemotePreference(string(p.Remote))
	if err != nil {
		return fmt.Errorf("profile %s: %w", p.ID, err)
	}
	p.Remote = remote

	level, err := ParseLevel(string(p.Experience))
	if err != nil {
		return fmt.Errorf("profile %s: %w", p.ID, err)
	}
	p.Experience = level

	if p.SalaryMin < 0 || (p.SalaryMax > 0 && p.SalaryMax < p.SalaryMin) {
		return fmt.Errorf("profile %s: invalid salary range %v-%v", p.ID, p.SalaryMin, p.SalaryMax)
	}

	for _, s := range p.Skills {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("profile %s: skill without a name", p.ID)
		}
		if s.Proficiency < 1 || s.Proficiency > 5 {
			return fmt.Errorf("profile %s: skill %q proficiency %d is outside 1-5", p.ID, s.Name, s.Proficiency)
		}
	}

	return nil
}

// Fingerprint changes whenever a preference that influences scoring changes.
func (p *Profile) Fingerprint() string {
	c := *p
	c.TargetTitles = sorted(p.TargetTitles)
	c.TargetIndustries = sorted(p.TargetIndustries)
	c.PreferredLocations = sorted(p.PreferredLocations)
	c.ContractTypes = sorted(p.ContractTypes)
	c.ExcludedCompanies = nil
	c.AutoApply = AutoApply{}
	c.Skills = slices.Clone(p.Skills)
	slices.SortFunc(c.Skills, func(a, b Skill) int { return strings.Compare(a.Name, b.Name) })

	// Encoding a struct of plain values cannot fail.
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}

// Provider supplies profile snapshots on demand.
type Provider interface {
	Profiles(ctx context.Context) ([]*Profile, error)
}

// Static serves a fixed list of profiles, typically decoded from the config file.
type Static []*Profile

func (s Static) Profiles(context.Context) ([]*Profile, error) {
	out := make([]*Profile, 0, len(s))
	for _, p := range s {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func sorted(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}
