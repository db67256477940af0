package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/jobhunter/internal/applications"
	"github.com/spigell/jobhunter/internal/filtering"
	"github.com/spigell/jobhunter/internal/jobs"
	"github.com/spigell/jobhunter/internal/logger"
	"github.com/spigell/jobhunter/internal/notify"
	"github.com/spigell/jobhunter/internal/profile"
	"github.com/spigell/jobhunter/internal/sources"
	"github.com/spigell/jobhunter/internal/store"
)

var errSkipped = errors.New("stage skipped")

// fetch asks every adapter, or on retry the adapters that failed, for raw
// records. A source that cannot be reached is listed and skipped.
func (r *Run) fetch(ctx context.Context, rep *StageReport, log *zap.Logger) (int, error) {
	targets := r.o.deps.Adapters
	if prev := r.summary.Stage(StageFetch); !prev.StartedAt.IsZero() {
		retry := append(prev.FailedSubjects(), prev.SkippedSubjects()...)
		targets = nil
		for _, a := range r.o.deps.Adapters {
			if slices.Contains(retry, a.Name()) {
				targets = append(targets, a)
			}
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(r.cfg.FetchConcurrency)

	for _, a := range targets {
		a := a
		g.Go(func() error {
			if ctx.Err() != nil {
				rep.Skip(a.Name(), "run cancelled before the source was fetched")
				return nil
			}
			srcLog := logger.ForSource(log, a.Name())

			// A fetch that has started is finished even when the run is
			// cancelled; only the source timeout interrupts it.
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.SourceTimeout)
			defer cancel()

			records, attempts, err := sources.Fetch(fctx, a, r.cfg.Retry, srcLog)
			rep.Add("attempts", attempts)
			if err != nil {
				if errors.Is(fctx.Err(), context.DeadlineExceeded) {
					err = fmt.Errorf("timed out after %s: %w", r.cfg.SourceTimeout, err)
				}
				srcLog.Warn("source failed", zap.Int("attempts", attempts), zap.Error(err))
				rep.Fail(a.Name(), err)
				return nil
			}

			r.mu.Lock()
			for i, rec := range records {
				r.pending = append(r.pending, fetched{adapter: a, index: i, record: rec})
			}
			r.mu.Unlock()

			rep.Succeed(a.Name())
			rep.Add("sources", 1)
			rep.Add("records", len(records))
			srcLog.Info("source fetched", zap.Int("records", len(records)), zap.Int("attempts", attempts))
			return nil
		})
	}
	_ = g.Wait()

	return len(targets), ctx.Err()
}

// dedup normalises pending records and merges them into canonical jobs,
// then flags the jobs no source reported lately. Records failing on a store
// error stay pending for a retry.
func (r *Run) dedup(ctx context.Context, rep *StageReport, log *zap.Logger) (int, error) {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	var (
		left []fetched
		err  error
	)
	for i, f := range batch {
		if err = ctx.Err(); err != nil {
			left = append(left, batch[i:]...)
			break
		}

		subject := fmt.Sprintf("%s#%d", f.adapter.Name(), f.index)
		job, nerr := f.adapter.Normalize(f.record)
		if nerr != nil {
			log.Debug("invalid record", zap.String(logger.FieldSource, f.adapter.Name()), zap.Error(nerr))
			rep.Skip(subject, nerr.Error())
			rep.Add("invalid", 1)
			continue
		}
		subject = job.Identity().String()

		out, rerr := r.resolver.Resolve(ctx, job)
		switch {
		case jobs.IsValidationError(rerr):
			rep.Skip(subject, rerr.Error())
			rep.Add("invalid", 1)
		case rerr != nil:
			log.Warn("cannot resolve record", zap.String("record", subject), zap.Error(rerr))
			rep.Fail(subject, rerr)
			left = append(left, f)
		default:
			rep.Succeed(subject)
			rep.Add(string(out.Action), 1)
		}
	}

	r.mu.Lock()
	r.pending = append(left, r.pending...)
	r.mu.Unlock()

	if err != nil {
		return len(batch) - len(left), err
	}

	n, serr := r.resolver.MarkStale(ctx, r.cfg.StaleAfter)
	if serr != nil {
		rep.Fail("stale sweep", serr)
	} else {
		rep.Succeed("stale sweep")
	}
	rep.Add("stale", n)

	return len(batch) + 1, nil
}

// match scores, per profile, the jobs changed since the last checkpoint, or
// every job when the profile changed since then.
func (r *Run) match(ctx context.Context, rep *StageReport, log *zap.Logger) (int, error) {
	if len(r.profiles) == 0 {
		return 0, errSkipped
	}

	for _, p := range r.profiles {
		if err := ctx.Err(); err != nil {
			return len(r.profiles), err
		}
		plog := logger.ForProfile(log, p.ID)
		if err := r.matchProfile(ctx, p, rep, plog); err != nil {
			if ctx.Err() != nil {
				return len(r.profiles), ctx.Err()
			}
			plog.Warn("matching failed", zap.Error(err))
			rep.Fail(p.ID, err)
			continue
		}
		rep.Succeed(p.ID)
	}
	return len(r.profiles), nil
}

func (r *Run) matchProfile(ctx context.Context, p *profile.Profile, rep *StageReport, log *zap.Logger) error {
	st := r.o.deps.Store
	started := r.o.now()
	fingerprint := p.Fingerprint()

	cp, err := st.GetCheckpoint(ctx, p.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	full := cp == nil || cp.Fingerprint != fingerprint
	var todo []*jobs.Canonical
	if full {
		todo, err = st.ListJobs(ctx)
		rep.Add("full_recomputes", 1)
	} else {
		todo, err = st.GetJobsModifiedSince(ctx, cp.MatchedAt.Add(-r.cfg.CheckpointOverlap))
	}
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if !full {
		listed := len(todo)
		if todo, err = r.outdated(ctx, p.ID, fingerprint, todo); err != nil {
			return err
		}
		rep.Add("current", listed-len(todo))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MatchConcurrency)
	for _, c := range todo {
		c := c
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := r.scorer.Score(c, p)
			if err := st.SaveMatchResult(gctx, res); err != nil {
				return fmt.Errorf("save match for %s: %w", c.ID, err)
			}
			rep.Add("scored", 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := st.SaveCheckpoint(ctx, &store.Checkpoint{ProfileID: p.ID, MatchedAt: started, Fingerprint: fingerprint}); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	log.Info("profile matched", zap.Int("jobs", len(todo)), zap.Bool("full", full))
	return nil
}

// outdated drops the jobs whose stored match result already covers their
// current version, which are the ones the checkpoint overlap lists again.
func (r *Run) outdated(ctx context.Context, profileID, fingerprint string, listed []*jobs.Canonical) ([]*jobs.Canonical, error) {
	var out []*jobs.Canonical
	for _, c := range listed {
		res, err := r.o.deps.Store.GetMatchResult(ctx, c.ID, profileID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("load match for %s: %w", c.ID, err)
		case res.ProfileFingerprint == fingerprint && res.JobUpdatedAt.Equal(c.UpdatedAt):
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// rank runs the match results of every profile through the filter steps and
// picks the auto-apply candidates.
func (r *Run) rank(ctx context.Context, rep *StageReport, log *zap.Logger) (int, error) {
	if len(r.profiles) == 0 {
		return 0, errSkipped
	}

	all, err := r.o.deps.Store.ListJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list jobs: %w", err)
	}

	for _, p := range r.profiles {
		if err := ctx.Err(); err != nil {
			return len(r.profiles), err
		}
		plog := logger.ForProfile(log, p.ID)
		left, err := r.rankProfile(ctx, p, all, plog)
		if err != nil {
			if ctx.Err() != nil {
				return len(r.profiles), ctx.Err()
			}
			plog.Warn("ranking failed", zap.Error(err))
			rep.Fail(p.ID, err)
			continue
		}

		var picked []*filtering.Candidate
		if t := p.AutoApply.Threshold; t > 0 {
			for _, c := range left.Items {
				if c.Match != nil && c.Score() >= t {
					picked = append(picked, c)
				}
			}
		}

		r.mu.Lock()
		r.ranked[p.ID] = left
		r.candidates[p.ID] = picked
		r.mu.Unlock()

		rep.Succeed(p.ID)
		rep.Add("ranked", left.Len())
		rep.Add("candidates", len(picked))
	}
	return len(r.profiles), nil
}

func (r *Run) rankProfile(ctx context.Context, p *profile.Profile, all []*jobs.Canonical, log *zap.Logger) (*filtering.Candidates, error) {
	results, err := r.o.deps.Store.ListMatchResults(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list match results: %w", err)
	}

	deps := filtering.Deps{Logger: log, Profile: p, History: r.o.deps.Store}
	left, err := filtering.Run(ctx, &r.cfg.Filters, deps, filtering.DefaultSteps(), filtering.NewCandidates(all, results))
	if err != nil {
		return nil, err
	}

	return filtering.Query{Sort: filtering.SortScore, Desc: true, IncludeStale: true}.Apply(left), nil
}

// digest publishes, per profile, the ranked jobs at or above the digest
// threshold that this run has not published yet.
func (r *Run) digest(ctx context.Context, rep *StageReport, log *zap.Logger) (int, error) {
	if len(r.profiles) == 0 || r.o.deps.Publisher == nil {
		return 0, errSkipped
	}

	units := 0
	for _, p := range r.profiles {
		if err := ctx.Err(); err != nil {
			return units, err
		}

		r.mu.Lock()
		ranked := r.ranked[p.ID]
		done := r.published[p.ID]
		r.mu.Unlock()
		if ranked == nil {
			continue
		}
		units++

		d := &notify.Digest{RunID: r.id, ProfileID: p.ID, GeneratedAt: r.o.now(), Threshold: r.cfg.DigestThreshold}
		for _, c := range ranked.Items {
			if r.cfg.DigestLimit > 0 && len(d.Entries) >= r.cfg.DigestLimit {
				break
			}
			if c.Match == nil || c.Score() < r.cfg.DigestThreshold || done[c.Job.ID] {
				continue
			}
			d.Entries = append(d.Entries, digestEntry(c))
		}
		if len(d.Entries) == 0 {
			rep.Succeed(p.ID)
			rep.Add("empty", 1)
			continue
		}

		if err := r.o.deps.Publisher.Publish(ctx, d); err != nil {
			logger.ForProfile(log, p.ID).Warn("cannot publish digest", zap.Error(err))
			rep.Fail(p.ID, err)
			continue
		}

		r.mu.Lock()
		if r.published[p.ID] == nil {
			r.published[p.ID] = map[string]bool{}
		}
		for _, e := range d.Entries {
			r.published[p.ID][e.JobID] = true
		}
		r.mu.Unlock()

		rep.Succeed(p.ID)
		rep.Add("digests", 1)
		rep.Add("entries", len(d.Entries))
	}
	return units, nil
}

func digestEntry(c *filtering.Candidate) notify.Entry {
	j := c.Job.Job
	return notify.Entry{
		JobID:    c.Job.ID,
		Title:    j.Title,
		Company:  j.Company,
		Location: j.Location,
		Remote:   string(j.Remote),
		Score:    c.Score(),
		ApplyURL: j.ApplyURL,
		Summary:  strings.Join(c.Match.Explanations, "; "),
	}
}

// gate puts the candidates in the approval queue. Only a profile whose
// auto-apply is both enabled and confirmed gets them approved. A pair
// gated earlier in the run is not gated again.
func (r *Run) gate(ctx context.Context, rep *StageReport, log *zap.Logger) (int, error) {
	if len(r.profiles) == 0 {
		return 0, errSkipped
	}

	units := 0
	for _, p := range r.profiles {
		r.mu.Lock()
		picked := r.candidates[p.ID]
		r.mu.Unlock()

		auto := p.AutoApply.Enabled && p.AutoApply.Confirmed
		for _, c := range picked {
			if err := ctx.Err(); err != nil {
				return units, err
			}
			subject := pairSubject(c.Job.ID, p.ID)
			r.mu.Lock()
			done := r.gated[subject]
			r.mu.Unlock()
			if done {
				continue
			}
			units++

			now := r.o.now()
			req := &applications.ApprovalRequest{
				JobID:     c.Job.ID,
				ProfileID: p.ID,
				Score:     c.Score(),
				RunID:     r.id,
				Status:    applications.ApprovalPending,
				CreatedAt: now,
			}
			if auto {
				req.Status = applications.ApprovalApproved
				req.DecidedBy = applications.AutoApplyDecider
				req.DecidedAt = &now
			}

			created, err := r.o.deps.Store.EnqueueApproval(ctx, req)
			if err != nil {
				rep.Fail(subject, err)
				continue
			}
			r.mu.Lock()
			r.gated[subject] = true
			r.mu.Unlock()
			rep.Succeed(subject)

			switch {
			case !created:
				rep.Add("existing", 1)
			case auto:
				rep.Add("approved", 1)
			default:
				rep.Add("queued", 1)
			}
		}
		logger.ForProfile(log, p.ID).Debug("candidates gated", zap.Int("candidates", len(picked)), zap.Bool("auto_apply", auto))
	}
	return units, nil
}

// apply turns approved requests into applications, one at a time per
// profile. A pair that already has an application is marked as applied and
// skipped.
func (r *Run) apply(ctx context.Context, rep *StageReport, log *zap.Logger) (int, error) {
	if len(r.profiles) == 0 {
		return 0, errSkipped
	}

	st := r.o.deps.Store
	units := 0
	for _, p := range r.profiles {
		plog := logger.ForProfile(log, p.ID)

		approved, err := st.ListApprovals(ctx, p.ID, applications.ApprovalApproved)
		if err != nil {
			if ctx.Err() != nil {
				return units, ctx.Err()
			}
			rep.Fail(p.ID, fmt.Errorf("list approvals: %w", err))
			units++
			continue
		}
		rep.Succeed(p.ID)

		for _, req := range approved {
			if err := ctx.Err(); err != nil {
				return units, err
			}
			units++

			outcome, err := r.applyOne(ctx, req)
			if err != nil {
				plog.Warn("cannot apply", zap.String("job_id", req.JobID), zap.Error(err))
				rep.Fail(pairSubject(req.JobID, p.ID), err)
				continue
			}
			rep.Succeed(pairSubject(req.JobID, p.ID))
			rep.Add(outcome, 1)
			plog.Info("applied", zap.String("job_id", req.JobID), zap.String("outcome", outcome))
		}
	}
	return units, nil
}

func (r *Run) applyOne(ctx context.Context, req *applications.ApprovalRequest) (string, error) {
	st := r.o.deps.Store
	// The application and the queue update belong together; cancellation
	// waits until both are written.
	ctx = context.WithoutCancel(ctx)

	_, err := st.FindApplication(ctx, req.JobID, req.ProfileID)
	switch {
	case err == nil:
		if err := st.MarkApprovalApplied(ctx, req.JobID, req.ProfileID, r.o.now()); err != nil {
			return "", fmt.Errorf("mark approval applied: %w", err)
		}
		return "already_applied", nil
	case !errors.Is(err, store.ErrNotFound):
		return "", fmt.Errorf("find application: %w", err)
	}

	now := r.o.now()
	app := applications.New(r.o.newID(), req.JobID, req.ProfileID, applications.MethodAuto, now)
	if err := st.CreateApplication(ctx, app); err != nil {
		return "", fmt.Errorf("create application: %w", err)
	}
	if err := st.MarkApprovalApplied(ctx, req.JobID, req.ProfileID, now); err != nil {
		return "", fmt.Errorf("mark approval applied: %w", err)
	}
	return "applied", nil
}

func pairSubject(jobID, profileID string) string {
	return profileID + "/" + jobID
}
