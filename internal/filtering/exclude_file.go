package filtering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ExcludedJobs is the content of an exclude file.
type ExcludedJobs struct {
	Items []*ExcludedJob
}

// ExcludedJob is one entry of an exclude file.
type ExcludedJob struct {
	ID         string
	Title      string
	Company    string
	URL        string
	ExcludedAt time.Time
}

// ToExcluded converts candidates into exclude file entries.
func (c *Candidates) ToExcluded(at time.Time) *ExcludedJobs {
	excluded := &ExcludedJobs{}
	for _, item := range c.Items {
		excluded.Items = append(excluded.Items, &ExcludedJob{
			ID:         item.Job.ID,
			Title:      item.Job.Job.Title,
			Company:    item.Job.Job.Company,
			URL:        item.Job.Job.ApplyURL,
			ExcludedAt: at,
		})
	}
	return excluded
}

// LoadExcluded reads an exclude file. A missing or empty file yields an
// empty list.
func LoadExcluded(path string) (*ExcludedJobs, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ExcludedJobs{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return &ExcludedJobs{}, nil
	}

	var excluded ExcludedJobs
	if err := json.Unmarshal(data, &excluded); err != nil {
		return nil, fmt.Errorf("parsing exclude file %s: %w", path, err)
	}
	return &excluded, nil
}

// Append adds entries whose ids are not listed yet.
func (e *ExcludedJobs) Append(s *ExcludedJobs) {
	seen := make(map[string]bool, len(e.Items))
	for _, item := range e.Items {
		seen[item.ID] = true
	}
	for _, item := range s.Items {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		e.Items = append(e.Items, item)
	}
}

func (e *ExcludedJobs) IDs() []string {
	ids := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

// ToFile replaces the file content with e.
func (e *ExcludedJobs) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

// AppendToFile merges entries into the exclude file at path.
func AppendToFile(path string, entries *ExcludedJobs) error {
	current, err := LoadExcluded(path)
	if err != nil {
		return err
	}
	current.Append(entries)
	return current.ToFile(path)
}

type excludeFileFilter struct {
	toggle
	path string
}

// NewExcludeFile creates a filter that removes jobs listed in the exclude file.
func NewExcludeFile() Filter {
	return &excludeFileFilter{}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Validate(cfg *Config) error {
	f.path = ""
	if cfg != nil {
		f.path = strings.TrimSpace(cfg.ExcludeFile)
	}
	return nil
}

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, c *Candidates) (*Candidates, Step, error) {
	initial := c.Len()
	if f.path == "" {
		return c, Step{Initial: initial, Dropped: 0, Left: c.Len()}, nil
	}

	excluded, err := LoadExcluded(f.path)
	if err != nil {
		return c, Step{}, fmt.Errorf("getting excluded jobs from file: %w", err)
	}

	ids := make(map[string]bool, len(excluded.Items))
	for _, id := range excluded.IDs() {
		ids[id] = true
	}
	removed := c.Exclude(func(item *Candidate) bool { return ids[item.Job.ID] })
	if len(removed) > 0 {
		deps.logger().Info("excluding jobs based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_jobs", removed),
			zap.Int("jobs_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(removed), Left: c.Len()}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
