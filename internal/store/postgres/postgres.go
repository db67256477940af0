// Package postgres implements store.Store on PostgreSQL with pgx. Records
// are kept as JSONB documents next to the columns the queries filter on.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/applications"
	"github.com/spigell/jobhunter/internal/jobs"
	"github.com/spigell/jobhunter/internal/matching"
	"github.com/spigell/jobhunter/internal/store"
	"github.com/spigell/jobhunter/internal/textsim"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Store is a store.Store backed by a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Connect creates a pool, verifies it and applies the embedded schema.
func Connect(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("postgres connected", zap.String("host", config.ConnConfig.Host))
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("execute %s: %w", entry.Name(), err)
		}
		s.logger.Debug("migration applied", zap.String("file", entry.Name()))
	}
	return nil
}

// truncate removes every row; used by integration tests.
func (s *Store) truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE job_sources, canonical_jobs, match_results, applications, approvals, checkpoints`)
	return err
}

func (s *Store) UpsertJob(ctx context.Context, c *jobs.Canonical) (string, error) {
	if c == nil || c.ID == "" || c.Job == nil {
		return "", errors.New("upsert job: canonical job without id")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode job %s: %w", c.ID, err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO canonical_jobs (id, company_key, data, updated_at, last_seen, stale)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE
			 SET company_key = EXCLUDED.company_key, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at,
			     last_seen = EXCLUDED.last_seen, stale = EXCLUDED.stale`,
			c.ID, textsim.Company(c.Job.Company), data, c.UpdatedAt, c.LastSeen, c.Stale,
		)
		if err != nil {
			return fmt.Errorf("upsert job %s: %w", c.ID, err)
		}

		for _, id := range c.Identities() {
			var owner string
			err := tx.QueryRow(ctx,
				`WITH ins AS (
				   INSERT INTO job_sources (source, source_job_id, canonical_id)
				   VALUES ($1, $2, $3)
				   ON CONFLICT (source, source_job_id) DO NOTHING
				   RETURNING canonical_id
				 )
				 SELECT canonical_id FROM ins
				 UNION ALL
				 SELECT canonical_id FROM job_sources WHERE source = $1 AND source_job_id = $2
				 LIMIT 1`,
				id.Source, id.SourceJobID, c.ID,
			).Scan(&owner)
			if err != nil {
				return fmt.Errorf("record source %s: %w", id, err)
			}
			if owner != c.ID {
				return fmt.Errorf("upsert job %s: source %s already belongs to %s", c.ID, id, owner)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

func (s *Store) FindCandidateDuplicates(ctx context.Context, job *jobs.Job) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM canonical_jobs WHERE company_key = $1 ORDER BY id`,
		textsim.Company(job.Company),
	)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	return ids, nil
}

func (s *Store) FindBySourceIdentity(ctx context.Context, id jobs.Identity) (string, error) {
	var owner string
	err := s.pool.QueryRow(ctx,
		`SELECT canonical_id FROM job_sources WHERE source = $1 AND source_job_id = $2`,
		id.Source, id.SourceJobID,
	).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find source %s: %w", id, err)
	}
	return owner, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*jobs.Canonical, error) {
	return getDoc[jobs.Canonical](ctx, s.pool, `SELECT data FROM canonical_jobs WHERE id = $1`, id)
}

func (s *Store) GetJobsModifiedSince(ctx context.Context, since time.Time) ([]*jobs.Canonical, error) {
	return listDocs[jobs.Canonical](ctx, s.pool, `SELECT data FROM canonical_jobs WHERE updated_at > $1 ORDER BY id`, since)
}

func (s *Store) ListJobs(ctx context.Context) ([]*jobs.Canonical, error) {
	return listDocs[jobs.Canonical](ctx, s.pool, `SELECT data FROM canonical_jobs ORDER BY id`)
}

func (s *Store) MarkStale(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE canonical_jobs
		 SET stale = TRUE, data = jsonb_set(data, '{stale}', 'true'::jsonb)
		 WHERE NOT stale AND last_seen < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("mark stale: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) SaveMatchResult(ctx context.Context, res *matching.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode match %s/%s: %w", res.JobID, res.ProfileID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO match_results (job_id, profile_id, overall, data, computed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (job_id, profile_id) DO UPDATE
		 SET overall = EXCLUDED.overall, data = EXCLUDED.data, computed_at = EXCLUDED.computed_at`,
		res.JobID, res.ProfileID, res.Overall, data, res.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("save match %s/%s: %w", res.JobID, res.ProfileID, err)
	}
	return nil
}

func (s *Store) GetMatchResult(ctx context.Context, jobID, profileID string) (*matching.Result, error) {
	return getDoc[matching.Result](ctx, s.pool,
		`SELECT data FROM match_results WHERE job_id = $1 AND profile_id = $2`, jobID, profileID)
}

func (s *Store) ListMatchResults(ctx context.Context, profileID string) ([]*matching.Result, error) {
	return listDocs[matching.Result](ctx, s.pool,
		`SELECT data FROM match_results WHERE ($1 = '' OR profile_id = $1) ORDER BY profile_id, job_id`, profileID)
}

func (s *Store) CreateApplication(ctx context.Context, app *applications.Application) error {
	data, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("encode application %s: %w", app.ID, err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO applications (id, job_id, profile_id, status, data, applied_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (job_id, profile_id) DO NOTHING`,
		app.ID, app.JobID, app.ProfileID, string(app.Status), data, app.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("create application %s: %w", app.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s, profile %s: %w", app.JobID, app.ProfileID, applications.ErrDuplicateApplication)
	}
	return nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (*applications.Application, error) {
	return getDoc[applications.Application](ctx, s.pool, `SELECT data FROM applications WHERE id = $1`, id)
}

func (s *Store) FindApplication(ctx context.Context, jobID, profileID string) (*applications.Application, error) {
	return getDoc[applications.Application](ctx, s.pool,
		`SELECT data FROM applications WHERE job_id = $1 AND profile_id = $2`, jobID, profileID)
}

func (s *Store) ListApplications(ctx context.Context, profileID string) ([]*applications.Application, error) {
	return listDocs[applications.Application](ctx, s.pool,
		`SELECT data FROM applications WHERE ($1 = '' OR profile_id = $1) ORDER BY applied_at DESC, id`, profileID)
}

func (s *Store) AppendApplicationTransition(ctx context.Context, id string, to applications.Status, at time.Time) (*applications.Application, error) {
	return s.modifyApplication(ctx, id, func(app *applications.Application) error {
		return app.Transition(to, at)
	})
}

func (s *Store) UpdateApplication(ctx context.Context, id string, update store.ApplicationUpdate) (*applications.Application, error) {
	return s.modifyApplication(ctx, id, func(app *applications.Application) error {
		before := app.Clone()
		if err := update(app); err != nil {
			return err
		}
		return store.CheckUpdate(before, app)
	})
}

// modifyApplication loads an application under a row lock, applies fn and
// writes it back. Nothing is written when fn fails.
func (s *Store) modifyApplication(ctx context.Context, id string, fn func(*applications.Application) error) (*applications.Application, error) {
	var out *applications.Application
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		app, err := getDoc[applications.Application](ctx, tx, `SELECT data FROM applications WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		if err := fn(app); err != nil {
			return err
		}

		data, err := json.Marshal(app)
		if err != nil {
			return fmt.Errorf("encode application %s: %w", id, err)
		}
		if _, err := tx.Exec(ctx, `UPDATE applications SET status = $2, data = $3 WHERE id = $1`, id, string(app.Status), data); err != nil {
			return fmt.Errorf("update application %s: %w", id, err)
		}
		out = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) EnqueueApproval(ctx context.Context, req *applications.ApprovalRequest) (bool, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("encode approval %s/%s: %w", req.JobID, req.ProfileID, err)
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO approvals (job_id, profile_id, status, score, data)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (job_id, profile_id) DO NOTHING`,
		req.JobID, req.ProfileID, string(req.Status), req.Score, data,
	)
	if err != nil {
		return false, fmt.Errorf("enqueue approval %s/%s: %w", req.JobID, req.ProfileID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetApproval(ctx context.Context, jobID, profileID string) (*applications.ApprovalRequest, error) {
	return getDoc[applications.ApprovalRequest](ctx, s.pool,
		`SELECT data FROM approvals WHERE job_id = $1 AND profile_id = $2`, jobID, profileID)
}

func (s *Store) ListApprovals(ctx context.Context, profileID string, status applications.ApprovalStatus) ([]*applications.ApprovalRequest, error) {
	return listDocs[applications.ApprovalRequest](ctx, s.pool,
		`SELECT data FROM approvals
		 WHERE ($1 = '' OR profile_id = $1) AND ($2 = '' OR status = $2)
		 ORDER BY score DESC, job_id`,
		profileID, string(status),
	)
}

func (s *Store) DecideApproval(ctx context.Context, jobID, profileID string, approve bool, by string, at time.Time) (*applications.ApprovalRequest, error) {
	return s.modifyApproval(ctx, jobID, profileID, func(req *applications.ApprovalRequest) error {
		return req.Decide(approve, by, at)
	})
}

func (s *Store) MarkApprovalApplied(ctx context.Context, jobID, profileID string, at time.Time) error {
	_, err := s.modifyApproval(ctx, jobID, profileID, func(req *applications.ApprovalRequest) error {
		req.Status = applications.ApprovalApplied
		if req.DecidedAt == nil {
			req.DecidedAt = &at
		}
		return nil
	})
	return err
}

func (s *Store) modifyApproval(ctx context.Context, jobID, profileID string, fn func(*applications.ApprovalRequest) error) (*applications.ApprovalRequest, error) {
	var out *applications.ApprovalRequest
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		req, err := getDoc[applications.ApprovalRequest](ctx, tx,
			`SELECT data FROM approvals WHERE job_id = $1 AND profile_id = $2 FOR UPDATE`, jobID, profileID)
		if err != nil {
			return err
		}
		if err := fn(req); err != nil {
			return err
		}

		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("encode approval %s/%s: %w", jobID, profileID, err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE approvals SET status = $3, data = $4 WHERE job_id = $1 AND profile_id = $2`,
			jobID, profileID, string(req.Status), data,
		); err != nil {
			return fmt.Errorf("update approval %s/%s: %w", jobID, profileID, err)
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetCheckpoint(ctx context.Context, profileID string) (*store.Checkpoint, error) {
	cp := store.Checkpoint{ProfileID: profileID}
	err := s.pool.QueryRow(ctx,
		`SELECT matched_at, fingerprint FROM checkpoints WHERE profile_id = $1`, profileID,
	).Scan(&cp.MatchedAt, &cp.Fingerprint)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", profileID, err)
	}
	return &cp, nil
}

func (s *Store) SaveCheckpoint(ctx context.Context, cp *store.Checkpoint) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO checkpoints (profile_id, matched_at, fingerprint)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (profile_id) DO UPDATE
		 SET matched_at = EXCLUDED.matched_at, fingerprint = EXCLUDED.fingerprint`,
		cp.ProfileID, cp.MatchedAt, cp.Fingerprint,
	)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.ProfileID, err)
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getDoc[T any](ctx context.Context, q querier, sql string, args ...any) (*T, error) {
	var data []byte
	err := q.QueryRow(ctx, sql, args...).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}

func listDocs[T any](ctx context.Context, q querier, sql string, args ...any) ([]*T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	out := make([]*T, 0, len(docs))
	for _, data := range docs {
		v := new(T)
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}
