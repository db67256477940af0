// Package sources fetches raw postings from job boards and company career
// portals and normalises them into jobs.Job records.
package sources

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/jobs"
)

// Record is one raw posting exactly as the source returned it.
type Record map[string]any

// Adapter is implemented by every source.
type Adapter interface {
	// Name is the value stored in jobs.Job.Source.
	Name() string
	Kind() jobs.SourceType
	Fetch(ctx context.Context) ([]Record, error)
	Normalize(rec Record) (*jobs.Job, error)
}

// Config describes one configured source.
type Config struct {
	Name     string        `mapstructure:"name"`
	Type     string        `mapstructure:"type"`
	URL      string        `mapstructure:"url"`
	Company  string        `mapstructure:"company"`
	Board    string        `mapstructure:"board"`
	Path     string        `mapstructure:"path"`
	Keywords []string      `mapstructure:"keywords"`
	Location string        `mapstructure:"location"`
	MaxPages int           `mapstructure:"max-pages"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Disabled bool          `mapstructure:"disabled"`
}

// Factory builds an adapter from its configuration.
type Factory func(cfg Config, client *Client, logger *zap.Logger) (Adapter, error)

var registry = map[string]Factory{
	"github":     newGitHub,
	"microsoft":  newMicrosoft,
	"greenhouse": newGreenhouse,
	"file":       newFile,
}

// Types lists the registered adapter types.
func Types() []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Build resolves every enabled config against the registry. Names must be
// unique because they become part of the source identity.
func Build(cfgs []Config, client *Client, logger *zap.Logger) ([]Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = NewClient(logger)
	}

	seen := make(map[string]bool)
	adapters := make([]Adapter, 0, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.Disabled {
			logger.Debug("source is disabled", zap.String("source", cfg.Name))
			continue
		}
		if cfg.Name == "" {
			cfg.Name = cfg.Type
		}

		factory, ok := registry[cfg.Type]
		if !ok {
			return nil, fmt.Errorf("source %s: unknown type %q (known: %s)", cfg.Name, cfg.Type, strings.Join(Types(), ", "))
		}
		if seen[cfg.Name] {
			return nil, fmt.Errorf("source %s is configured twice", cfg.Name)
		}
		seen[cfg.Name] = true

		a, err := factory(cfg, client, logger.With(zap.String("source", cfg.Name)))
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
		}
		adapters = append(adapters, a)
	}

	return adapters, nil
}

// SourceUnavailableError marks a transient failure: the source could not be
// reached or answered with a server-side error.
type SourceUnavailableError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *SourceUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("source %s unavailable (status %d): %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err wraps a SourceUnavailableError.
func IsUnavailable(err error) bool {
	var u *SourceUnavailableError
	return errors.As(err, &u)
}

// decode maps a raw record onto a typed posting, converting numeric ids to
// strings on the way.
func decode(rec Record, target any) error {
	cfg := &mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]any(rec))
}

// htmlText strips markup and collapses whitespace.
func htmlText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// parseTime accepts RFC 3339 timestamps with or without a zone.
func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func invalid(source, id, field, reason string) error {
	return &jobs.ValidationError{Source: source, SourceJobID: id, Field: field, Reason: reason}
}
