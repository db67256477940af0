package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/spigell/jobhunter/internal/filtering"
	"github.com/spigell/jobhunter/internal/matching"
	"github.com/spigell/jobhunter/internal/profile"
	"github.com/spigell/jobhunter/internal/sources"
)

// ErrRunInProgress is returned when every active profile is held by another run.
var ErrRunInProgress = errors.New("a run for these profiles is already in progress")

// ConfigurationError fails a run before any side effect.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var c *ConfigurationError
	return errors.As(err, &c)
}

// Config tunes one pipeline run.
type Config struct {
	Weights          matching.Weights    `mapstructure:"weights"`
	Policy           matching.Policy     `mapstructure:"policy"`
	Filters          filtering.Config    `mapstructure:"filters"`
	Retry            sources.RetryConfig `mapstructure:"retry"`
	FetchConcurrency int                 `mapstructure:"fetch-concurrency"`
	MatchConcurrency int                 `mapstructure:"match-concurrency"`
	SourceTimeout    time.Duration       `mapstructure:"source-timeout"`
	StaleAfter       time.Duration       `mapstructure:"stale-after"`
	DigestThreshold  float64             `mapstructure:"digest-threshold"`
	DigestLimit      int                 `mapstructure:"digest-limit"`
	TitleThreshold   float64             `mapstructure:"title-threshold"`

	// CheckpointOverlap widens every incremental match back past the
	// checkpoint so that writes committed after the last match stage listed
	// the jobs are still seen.
	CheckpointOverlap time.Duration `mapstructure:"checkpoint-overlap"`
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Weights:          matching.DefaultWeights,
		Policy:           matching.DefaultPolicy,
		Retry:            sources.DefaultRetryConfig,
		FetchConcurrency: 4,
		MatchConcurrency: 8,
		SourceTimeout:    2 * time.Minute,
		StaleAfter:       14 * 24 * time.Hour,
		DigestThreshold:  70,
		DigestLimit:      20,
		TitleThreshold:   0.85,

		CheckpointOverlap: 10 * time.Minute,
	}
}

// Validate checks the run settings and every profile. Profiles are
// normalised in place.
func (c *Config) Validate(profiles []*profile.Profile) error {
	if err := c.Weights.Validate(); err != nil {
		return &ConfigurationError{Field: "weights", Reason: err.Error()}
	}
	if c.DigestThreshold < 0 || c.DigestThreshold > 100 {
		return &ConfigurationError{Field: "digest-threshold", Reason: fmt.Sprintf("must be within 0-100, got %v", c.DigestThreshold)}
	}
	if c.TitleThreshold <= 0 || c.TitleThreshold > 1 {
		return &ConfigurationError{Field: "title-threshold", Reason: fmt.Sprintf("must be within (0, 1], got %v", c.TitleThreshold)}
	}
	if c.FetchConcurrency < 1 || c.MatchConcurrency < 1 {
		return &ConfigurationError{Field: "concurrency", Reason: "must be at least 1"}
	}
	if c.CheckpointOverlap < 0 {
		return &ConfigurationError{Field: "checkpoint-overlap", Reason: fmt.Sprintf("must not be negative, got %s", c.CheckpointOverlap)}
	}

	seen := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return &ConfigurationError{Field: "profiles", Reason: err.Error()}
		}
		if seen[p.ID] {
			return &ConfigurationError{Field: "profiles", Reason: fmt.Sprintf("profile %s is defined twice", p.ID)}
		}
		seen[p.ID] = true

		a := p.AutoApply
		if a.Threshold < 0 || a.Threshold > 100 {
			return &ConfigurationError{Field: fmt.Sprintf("profiles.%s.auto-apply.threshold", p.ID), Reason: fmt.Sprintf("must be within 0-100, got %v", a.Threshold)}
		}
		if a.Enabled && !a.Confirmed {
			return &ConfigurationError{
				Field:  fmt.Sprintf("profiles.%s.auto-apply", p.ID),
				Reason: "is enabled without confirmed: true; unattended applications need both",
			}
		}
		if a.Enabled && a.Threshold == 0 {
			return &ConfigurationError{Field: fmt.Sprintf("profiles.%s.auto-apply.threshold", p.ID), Reason: "must be set when auto-apply is enabled"}
		}
	}

	return nil
}
