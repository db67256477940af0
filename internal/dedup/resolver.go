// Package dedup decides whether a freshly fetched record is a new job or
// another sighting of a canonical job already in the store.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/jobs"
	"github.com/spigell/jobhunter/internal/lock"
	"github.com/spigell/jobhunter/internal/store"
	"github.com/spigell/jobhunter/internal/textsim"
)

// DefaultTitleThreshold is the minimum title similarity for two records of
// the same company and location to be the same job.
const DefaultTitleThreshold = 0.85

// Action is what Resolve did with a record.
type Action string

const (
	ActionCreated   Action = "created"
	ActionMerged    Action = "merged"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// Outcome is the result of resolving one record.
type Outcome struct {
	CanonicalID string
	Action      Action
}

// Resolver assigns records to canonical jobs.
type Resolver struct {
	store     store.Jobs
	locker    lock.Locker
	threshold float64
	now       func() time.Time
	newID     func() string
	logger    *zap.Logger
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithTitleThreshold overrides DefaultTitleThreshold.
func WithTitleThreshold(t float64) Option {
	return func(r *Resolver) { r.threshold = t }
}

// WithClock sets the clock used for sighting times.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithIDGenerator sets the generator of canonical ids.
func WithIDGenerator(gen func() string) Option {
	return func(r *Resolver) { r.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a Resolver writing to s and serialising on locker.
func New(s store.Jobs, locker lock.Locker, opts ...Option) *Resolver {
	r := &Resolver{
		store:     s,
		locker:    locker,
		threshold: DefaultTitleThreshold,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LockKey is the key every record of a company is resolved under. All
// possible duplicates share it, so the lookup and the create happen as one
// step with respect to other writers.
func LockKey(job *jobs.Job) string {
	return "dedup:" + textsim.Company(job.Company)
}

// JobLockKey is the key every write to an existing canonical job is made
// under, whichever company the record that triggers it names.
func JobLockKey(canonicalID string) string {
	return "dedup:job:" + canonicalID
}

// Resolve validates job and merges it into the store. Invalid records return
// a *jobs.ValidationError and are never stored. Locks are taken in the order
// source identity, company, canonical job. Once they are held the merge runs
// to completion even if ctx is cancelled.
func (r *Resolver) Resolve(ctx context.Context, job *jobs.Job) (Outcome, error) {
	if err := job.Validate(); err != nil {
		return Outcome{}, err
	}

	unlock, err := r.lock(ctx, "dedup:source:"+job.Identity().String(), LockKey(job))
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	return r.resolveLocked(context.WithoutCancel(ctx), job)
}

func (r *Resolver) lock(ctx context.Context, keys ...string) (lock.Unlock, error) {
	var held []lock.Unlock
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, key := range keys {
		unlock, err := r.locker.Lock(ctx, key)
		if err != nil {
			release()
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		held = append(held, unlock)
	}
	return release, nil
}

func (r *Resolver) resolveLocked(ctx context.Context, job *jobs.Job) (Outcome, error) {
	log := r.logger.With(zap.String("source", job.Source), zap.String("source_job_id", job.SourceJobID))

	owner, err := r.store.FindBySourceIdentity(ctx, job.Identity())
	switch {
	case err == nil:
		return r.resight(ctx, owner, job, log)
	case !errors.Is(err, store.ErrNotFound):
		return Outcome{}, fmt.Errorf("find %s: %w", job.Identity(), err)
	}

	found, err := r.findMatch(ctx, job)
	if err != nil {
		return Outcome{}, err
	}

	if found != nil {
		unlock, err := r.lock(ctx, JobLockKey(found.ID))
		if err != nil {
			return Outcome{}, err
		}
		defer unlock()

		// Another record may have been merged while the job lock was free.
		match, err := r.store.GetJob(ctx, found.ID)
		if err != nil {
			return Outcome{}, fmt.Errorf("load canonical job %s: %w", found.ID, err)
		}
		match.Observe(job, r.now())
		if _, err := r.store.UpsertJob(ctx, match); err != nil {
			return Outcome{}, fmt.Errorf("merge %s into %s: %w", job.Identity(), match.ID, err)
		}
		log.Debug("merged into canonical job", zap.String("canonical_id", match.ID), zap.Int("sources", len(match.Provenance)))
		return Outcome{CanonicalID: match.ID, Action: ActionMerged}, nil
	}

	c := jobs.NewCanonical(r.newID(), job, r.now())
	if _, err := r.store.UpsertJob(ctx, c); err != nil {
		return Outcome{}, fmt.Errorf("create canonical job for %s: %w", job.Identity(), err)
	}
	log.Debug("created canonical job", zap.String("canonical_id", c.ID))
	return Outcome{CanonicalID: c.ID, Action: ActionCreated}, nil
}

func (r *Resolver) resight(ctx context.Context, id string, job *jobs.Job, log *zap.Logger) (Outcome, error) {
	unlock, err := r.lock(ctx, JobLockKey(id))
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	c, err := r.store.GetJob(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("load canonical job %s: %w", id, err)
	}

	action := ActionUnchanged
	if c.Observe(job, r.now()) != jobs.Unchanged {
		action = ActionUpdated
	}

	// Sighting times feed the stale sweep, so the record is written either way.
	if _, err := r.store.UpsertJob(ctx, c); err != nil {
		return Outcome{}, fmt.Errorf("update canonical job %s: %w", id, err)
	}
	log.Debug("re-sighted canonical job", zap.String("canonical_id", id), zap.String("action", string(action)))
	return Outcome{CanonicalID: id, Action: action}, nil
}

// findMatch returns the candidate most similar to job that satisfies the
// match policy, or nil.
func (r *Resolver) findMatch(ctx context.Context, job *jobs.Job) (*jobs.Canonical, error) {
	ids, err := r.store.FindCandidateDuplicates(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("find candidates for %s: %w", job.Identity(), err)
	}

	var (
		best      *jobs.Canonical
		bestScore float64
	)
	for _, id := range ids {
		c, err := r.store.GetJob(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load candidate %s: %w", id, err)
		}
		score, ok := r.similarity(c, job)
		if !ok {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && strings.Compare(c.ID, best.ID) < 0) {
			best, bestScore = c, score
		}
	}
	return best, nil
}

// similarity compares job with every sighting of c and returns the best
// title similarity among the sightings it matches.
func (r *Resolver) similarity(c *jobs.Canonical, job *jobs.Job) (float64, bool) {
	best, ok := 0.0, false
	for _, rec := range c.Provenance {
		if !SameJob(rec.Job, job, r.threshold) {
			continue
		}
		if sim := textsim.TitleSimilarity(rec.Job.Title, job.Title); !ok || sim > best {
			best, ok = sim, true
		}
	}
	return best, ok
}

// SameJob applies the match policy: same normalised company, title
// similarity at or above threshold and compatible locations.
func SameJob(a, b *jobs.Job, threshold float64) bool {
	if textsim.Company(a.Company) != textsim.Company(b.Company) {
		return false
	}
	if textsim.TitleSimilarity(a.Title, b.Title) < threshold {
		return false
	}
	return LocationsCompatible(a, b)
}

// LocationsCompatible is true when the normalised locations are equal or
// both records describe remote work.
func LocationsCompatible(a, b *jobs.Job) bool {
	if textsim.Location(a.Location) == textsim.Location(b.Location) {
		return true
	}
	return isRemote(a) && isRemote(b)
}

func isRemote(j *jobs.Job) bool {
	return j.Remote == jobs.RemoteRemote || textsim.IsRemote(j.Location)
}

// MarkStale flags canonical jobs that no source has reported for staleAfter.
func (r *Resolver) MarkStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	if staleAfter <= 0 {
		return 0, nil
	}
	n, err := r.store.MarkStale(ctx, r.now().Add(-staleAfter))
	if err != nil {
		return 0, fmt.Errorf("mark stale: %w", err)
	}
	return n, nil
}
