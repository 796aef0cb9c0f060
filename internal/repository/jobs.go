package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/ingestkit/internal/model"
)

// ErrVersionConflict is returned when an UPDATE guarded by the optimistic
// version column matches zero rows: someone else transitioned the job first.
var ErrVersionConflict = errors.New("repository: job version conflict")

// JobRepository owns processing_jobs, including the SKIP LOCKED claim query
// that makes the Metadata Store the sole concurrency arbiter among worker
// processes: no external broker hands out work, Postgres does.
type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// Create inserts a new queued job.
func (r *JobRepository) Create(ctx context.Context, j *model.Job) error {
	j.Status = model.JobQueued
	j.CreatedAt = time.Now().UTC()
	payload, err := json.Marshal(j.Payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO processing_jobs (id, file_id, kind, payload, status, status_reason, progress, created_at, version)
		VALUES ($1,$2,$3,$4,$5,'',0,$6,0)
	`, j.ID, j.FileID, j.Kind, payload, j.Status, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get returns a job by id.
func (r *JobRepository) Get(ctx context.Context, id string) (*model.Job, error) {
	return r.scanOne(ctx, r.pool.QueryRow(ctx, jobSelectCols+` FROM processing_jobs WHERE id = $1`, id))
}

// ListByFile returns every job for a file, newest first.
func (r *JobRepository) ListByFile(ctx context.Context, fileID string) ([]*model.Job, error) {
	rows, err := r.pool.Query(ctx, jobSelectCols+` FROM processing_jobs WHERE file_id = $1 ORDER BY created_at DESC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("list jobs by file: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// ListActive returns every job not yet in a terminal state.
func (r *JobRepository) ListActive(ctx context.Context) ([]*model.Job, error) {
	rows, err := r.pool.Query(ctx, jobSelectCols+` FROM processing_jobs WHERE status IN ('queued','processing') ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// Claim atomically picks the single oldest queued job, skipping rows already
// locked by another worker's in-flight claim, and marks it processing. This
// is the literal SKIP LOCKED pattern the pipeline relies on to run many
// worker processes against one Postgres instance safely: one claim hands out
// exactly one job, so the number of jobs in 'processing' never exceeds the
// number of workers actively claiming. Returns (nil, nil) when no job is
// queued.
func (r *JobRepository) Claim(ctx context.Context) (*model.Job, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE processing_jobs
		SET status = 'processing', started_at = now(), version = version + 1
		WHERE id = (
			SELECT id FROM processing_jobs
			WHERE status = 'queued'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobReturningCols)
	job, err := r.scanOne(ctx, row)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// UpdateProgress advances a processing job's progress (progress messages
// are not persisted), guarded by the optimistic version column: if another transition raced
// ahead of this one, ErrVersionConflict is returned and the caller should
// re-read the job before deciding whether to retry.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, expectedVersion int, progress float64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs SET progress = $1, version = version + 1
		WHERE id = $2 AND version = $3 AND status = 'processing'
	`, progress, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// Complete transitions a job to completed and stores its result summary.
func (r *JobRepository) Complete(ctx context.Context, tx pgx.Tx, id string, expectedVersion int, result *model.JobResult) error {
	res, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	exec := r.execer(tx)
	tag, err := exec.Exec(ctx, `
		UPDATE processing_jobs
		SET status = 'completed', progress = 1, result_summary = $1, completed_at = now(), version = version + 1
		WHERE id = $2 AND version = $3
	`, res, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// Fail transitions a job to failed with a diagnostic reason. The reason is
// opaque application text, never parsed back into a status, matching the
// separation of the status enum from status_reason.
func (r *JobRepository) Fail(ctx context.Context, id string, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET status = 'failed', status_reason = $1, completed_at = now(), version = version + 1
		WHERE id = $2 AND status NOT IN ('completed','cancelled','failed')
	`, reason, id)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// Cancel requests cancellation of a job that has not yet reached a terminal
// state. Returns the job's post-cancel row so the caller can tell whether it
// was still queued, was mid-processing, or had already finished.
func (r *JobRepository) Cancel(ctx context.Context, id string) (*model.Job, error) {
	_, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET status = 'cancelled', status_reason = 'cancelled by request', completed_at = now(), version = version + 1
		WHERE id = $1 AND status NOT IN ('completed','cancelled','failed')
	`, id)
	if err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	return r.Get(ctx, id)
}

// ListAllTextBlobKeys returns every extracted-text blob key recorded in a
// completed job's result summary, for reconciling against the text bucket
// during a sweep.
func (r *JobRepository) ListAllTextBlobKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT result_summary->>'textBlobKey' FROM processing_jobs
		WHERE status = 'completed' AND result_summary->>'textBlobKey' IS NOT NULL AND result_summary->>'textBlobKey' != ''
	`)
	if err != nil {
		return nil, fmt.Errorf("list text blob keys: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan text blob key: %w", err)
		}
		out[key] = struct{}{}
	}
	return out, rows.Err()
}

func (r *JobRepository) execer(tx pgx.Tx) interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
} {
	if tx != nil {
		return tx
	}
	return r.pool
}

const jobSelectCols = `SELECT id, file_id, kind, payload, status, status_reason, progress, created_at, started_at, completed_at, result_summary, version`
const jobReturningCols = `id, file_id, kind, payload, status, status_reason, progress, created_at, started_at, completed_at, result_summary, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *JobRepository) scanOne(ctx context.Context, row pgx.Row) (*model.Job, error) {
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return j, nil
}

func (r *JobRepository) scanAll(rows pgx.Rows) ([]*model.Job, error) {
	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		j        model.Job
		payload  []byte
		result   []byte
	)
	if err := row.Scan(&j.ID, &j.FileID, &j.Kind, &payload, &j.Status, &j.StatusReason, &j.Progress,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt, &result, &j.Version); err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal job payload: %w", err)
		}
	}
	if len(result) > 0 {
		var res model.JobResult
		if err := json.Unmarshal(result, &res); err != nil {
			return nil, fmt.Errorf("unmarshal job result: %w", err)
		}
		j.Result = &res
	}
	return &j, nil
}
