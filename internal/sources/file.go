package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/jobs"
)

// File reads a JSON array of postings already in the common job schema,
// for example an export of another tool.
type File struct {
	name   string
	path   string
	kind   jobs.SourceType
	logger *zap.Logger
}

func newFile(cfg Config, _ *Client, logger *zap.Logger) (Adapter, error) {
	if cfg.Path == "" {
		return nil, errors.New("file source needs a path")
	}
	f := &File{name: cfg.Name, path: cfg.Path, kind: jobs.SourceAggregator, logger: logger}
	if cfg.Company != "" {
		f.kind = jobs.SourceCompanyPortal
	}
	return f, nil
}

func (f *File) Name() string { return f.name }
func (f *File) Kind() jobs.SourceType { return f.kind }

func (f *File) Fetch(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.path, err)
	}
	f.logger.Debug("loaded records from file", zap.String("path", f.path), zap.Int("records", len(records)))

	return records, nil
}

// Normalize keeps the record's own source name when present so one export
// can carry several boards.
func (f *File) Normalize(rec Record) (*jobs.Job, error) {
	var job jobs.Job
	if err := decode(rec, &job); err != nil {
		return nil, fmt.Errorf("decode file record: %w", err)
	}

	if strings.TrimSpace(job.Source) == "" {
		job.Source = f.name
	}
	if job.SourceType == "" {
		job.SourceType = f.kind
	}
	job.Remote = jobs.ParseRemote(string(job.Remote))
	job.Description = htmlText(job.Description)

	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}
