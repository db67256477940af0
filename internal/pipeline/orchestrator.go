// Package pipeline runs the fetch, dedup, match, rank, digest, gate and
// apply stages as one run and reports the outcome of each of them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/dedup"
	"github.com/spigell/jobhunter/internal/filtering"
	"github.com/spigell/jobhunter/internal/lock"
	"github.com/spigell/jobhunter/internal/logger"
	"github.com/spigell/jobhunter/internal/matching"
	"github.com/spigell/jobhunter/internal/notify"
	"github.com/spigell/jobhunter/internal/profile"
	"github.com/spigell/jobhunter/internal/sources"
	"github.com/spigell/jobhunter/internal/store"
)

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store     store.Store
	Adapters  []sources.Adapter
	Profiles  profile.Provider
	Publisher notify.Publisher
	Locker    lock.Locker
	Logger    *zap.Logger
}

// Orchestrator starts pipeline runs. It is safe for concurrent use; runs
// touching the same profile exclude each other through the Locker.
type Orchestrator struct {
	cfg   Config
	deps  Deps
	now   func() time.Time
	newID func() string
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock used for every timestamp a run writes.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator sets the generator of run, job and application ids.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) { o.newID = gen }
}

// New returns an Orchestrator. The configuration is checked by NewRun so
// that a bad profile fails the run it belongs to.
func New(cfg Config, deps Deps, opts ...Option) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if deps.Profiles == nil {
		return nil, errors.New("pipeline: profile provider is required")
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewKeyed()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	o := &Orchestrator{
		cfg:   cfg,
		deps:  deps,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes one full run and releases its profile guards.
func (o *Orchestrator) Run(ctx context.Context) (*RunSummary, error) {
	run, err := o.NewRun(ctx)
	if err != nil {
		return nil, err
	}
	defer run.Close()

	return run.Execute(ctx), nil
}

// Run is one pipeline run. Its stages share state so that a failed stage can
// be retried without repeating the ones that succeeded.
type Run struct {
	o        *Orchestrator
	id       string
	cfg      Config
	logger   *zap.Logger
	scorer   *matching.Scorer
	resolver *dedup.Resolver
	profiles []*profile.Profile
	unlocks  []lock.Unlock
	summary  *RunSummary

	mu         sync.Mutex
	pending    []fetched
	ranked     map[string]*filtering.Candidates
	candidates map[string][]*filtering.Candidate
	published  map[string]map[string]bool
	gated      map[string]bool
	closed     bool
}

// fetched is a raw record waiting for the dedup stage.
type fetched struct {
	adapter sources.Adapter
	index   int
	record  sources.Record
}

// NewRun validates the configuration and every active profile, then takes
// the per-profile run guards. A ConfigurationError is returned before
// anything is fetched or written. ErrRunInProgress is returned when every
// active profile is held by another run.
func (o *Orchestrator) NewRun(ctx context.Context) (*Run, error) {
	profiles, err := o.deps.Profiles.Profiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	cfg := o.cfg
	if err := cfg.Validate(profiles); err != nil {
		return nil, err
	}

	scorer, err := matching.NewScorer(cfg.Weights, matching.WithPolicy(cfg.Policy), matching.WithClock(o.now))
	if err != nil {
		return nil, &ConfigurationError{Field: "weights", Reason: err.Error()}
	}

	id := o.newID()
	log := logger.WithRun(o.deps.Logger, id, "")

	r := &Run{
		o:      o,
		id:     id,
		cfg:    cfg,
		logger: log,
		scorer: scorer,
		resolver: dedup.New(o.deps.Store, o.deps.Locker,
			dedup.WithTitleThreshold(cfg.TitleThreshold),
			dedup.WithClock(o.now),
			dedup.WithIDGenerator(o.newID),
			dedup.WithLogger(log),
		),
		summary:    newRunSummary(id, o.now()),
		ranked:     map[string]*filtering.Candidates{},
		candidates: map[string][]*filtering.Candidate{},
		published:  map[string]map[string]bool{},
		gated:      map[string]bool{},
	}

	for _, p := range profiles {
		unlock, err := o.deps.Locker.TryLock(ctx, runLockKey(p.ID))
		switch {
		case errors.Is(err, lock.ErrLocked):
			log.Warn("profile is held by another run", zap.String(logger.FieldProfile, p.ID))
			r.summary.Guarded = append(r.summary.Guarded, p.ID)
			continue
		case err != nil:
			r.Close()
			return nil, fmt.Errorf("guard profile %s: %w", p.ID, err)
		}
		r.unlocks = append(r.unlocks, unlock)
		r.profiles = append(r.profiles, p)
		r.summary.Profiles = append(r.summary.Profiles, p.ID)
	}

	if len(profiles) > 0 && len(r.profiles) == 0 {
		r.Close()
		return nil, ErrRunInProgress
	}

	log.Info("run started",
		zap.Int("profiles", len(r.profiles)),
		zap.Strings("guarded", r.summary.Guarded),
		zap.Int("sources", len(o.deps.Adapters)),
	)
	return r, nil
}

func runLockKey(profileID string) string {
	return "run:" + profileID
}

// ID returns the run id.
func (r *Run) ID() string { return r.id }

// Summary returns the summary as it stands.
func (r *Run) Summary() *RunSummary { return r.summary }

// Close releases the profile guards. It is safe to call more than once.
func (r *Run) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, unlock := range r.unlocks {
		unlock()
	}
	r.unlocks = nil
}

// Execute runs every stage in order. Stages keep running after a failed
// stage; once ctx is done the stages not yet started are reported as
// cancelled.
func (r *Run) Execute(ctx context.Context) *RunSummary {
	for i, st := range Stages {
		if ctx.Err() != nil {
			r.cancelFrom(i)
			break
		}
		r.runStage(ctx, st)
	}
	r.summary.FinishedAt = r.o.now()

	r.logger.Info("run finished",
		zap.String("status", string(r.summary.Status())),
		zap.Any("failed_stages", r.summary.FailedStages()),
	)
	return r.summary
}

// Retry re-executes a failed, partial or cancelled stage and the stages
// after it. Every stage only covers what is left to do: fetch asks the
// failed sources again, dedup resolves the records still pending, match
// starts from the checkpoint, digest skips jobs already published and
// gate and apply are idempotent. The reports of the retried stages are
// merged into the ones of the earlier attempts.
func (r *Run) Retry(ctx context.Context, stage Stage) error {
	if _, err := ParseStage(string(stage)); err != nil {
		return err
	}
	if !slices.Contains(r.summary.FailedStages(), stage) {
		return fmt.Errorf("stage %s has nothing to retry", stage)
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return errors.New("run is closed")
	}

	start := slices.Index(Stages, stage)
	for i, st := range Stages[start:] {
		if ctx.Err() != nil {
			r.cancelFrom(start + i)
			break
		}
		r.runStage(ctx, st)
	}
	r.summary.FinishedAt = r.o.now()

	if rep := r.summary.Stage(stage); rep.Status != StatusOK && rep.Status != StatusSkipped {
		return fmt.Errorf("stage %s finished %s", stage, rep.Status)
	}
	return nil
}

func (r *Run) cancelFrom(i int) {
	for _, st := range Stages[i:] {
		rep := newStageReport(st)
		rep.Status = StatusCancelled
		r.summary.record(rep)
	}
	r.logger.Warn("run cancelled", zap.String("next_stage", string(Stages[i])))
}

// stageFunc does the work of a stage and returns the number of units it
// handled. Failures of single units are recorded on the report; a returned
// error fails the stage as a whole.
type stageFunc func(ctx context.Context, rep *StageReport, log *zap.Logger) (int, error)

func (r *Run) stage(st Stage) stageFunc {
	switch st {
	case StageFetch:
		return r.fetch
	case StageDedup:
		return r.dedup
	case StageMatch:
		return r.match
	case StageRank:
		return r.rank
	case StageDigest:
		return r.digest
	case StageGate:
		return r.gate
	case StageApply:
		return r.apply
	}
	return nil
}

func (r *Run) runStage(ctx context.Context, st Stage) {
	rep := newStageReport(st)
	rep.StartedAt = r.o.now()
	log := logger.WithRun(r.o.deps.Logger, r.id, string(st))

	units, err := r.stage(st)(ctx, rep, log)
	switch {
	case errors.Is(err, errSkipped):
		rep.finish(0, r.o.now())
		rep.Status = StatusSkipped
	case err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()):
		rep.finish(units, r.o.now())
		rep.Status = StatusCancelled
	case err != nil:
		rep.Fail(string(st), err)
		rep.finish(0, r.o.now())
	default:
		rep.Succeed(string(st))
		rep.finish(units, r.o.now())
	}
	took := rep.FinishedAt.Sub(rep.StartedAt)
	rep = r.summary.record(rep)

	fields := []zap.Field{
		zap.String("status", string(rep.Status)),
		zap.Any("counters", rep.Counters),
		zap.Int("failures", len(rep.Failures)),
		zap.Int("skipped", len(rep.Skipped)),
		zap.Int("attempt", rep.Attempts),
		zap.Duration("took", took),
	}
	switch rep.Status {
	case StatusOK, StatusSkipped:
		log.Info("stage finished", fields...)
	default:
		log.Warn("stage finished", append(fields, zap.Strings("failed", rep.FailedSubjects()))...)
	}
}
