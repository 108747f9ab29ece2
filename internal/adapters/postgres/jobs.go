package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
)

const jobColumns = `id, kind, source_format, input_ref, COALESCE(content_hash, ''), status,
	attempts, cancel_requested, created_at, started_at, finished_at, result, job_error`

func (db *DB) Submit(ctx context.Context, job *domain.Job) error {
	result, jobErr, err := marshalPayloads(job)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO analysis_jobs
			(id, kind, source_format, input_ref, content_hash, status, attempts,
			 cancel_requested, created_at, started_at, finished_at, result, job_error)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8,$9,$10,$11,$12,$13)
	`, job.ID, job.Kind, job.SourceFormat, job.InputRef, job.ContentHash, job.Status,
		job.Attempts, job.CancelRequested, job.CreatedAt, job.StartedAt, job.FinishedAt,
		result, jobErr)
	return err
}

func (db *DB) Get(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (db *DB) Snapshot(ctx context.Context, id uuid.UUID) (domain.Snapshot, error) {
	job, err := db.Get(ctx, id)
	if err != nil {
		return domain.Snapshot{}, err
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT job_id, stage, detail, emitted_at
		FROM job_progress WHERE job_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer rows.Close()

	var progress []domain.ProgressEvent
	for rows.Next() {
		var ev domain.ProgressEvent
		var stage string
		if err := rows.Scan(&ev.JobID, &stage, &ev.Detail, &ev.EmittedAt); err != nil {
			return domain.Snapshot{}, err
		}
		ev.Stage = domain.ProgressStage(stage)
		progress = append(progress, ev)
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{Job: job, Progress: progress}, nil
}

// ClaimNext selects the oldest queued job with SKIP LOCKED inside a
// transaction, so concurrent workers (including separate processes on the
// same database) claim disjoint jobs: the queued->running transition is a
// compare-and-swap keyed by id.
func (db *DB) ClaimNext(ctx context.Context) (domain.Job, bool, error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Job{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM analysis_jobs
		WHERE status = 'queued'
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE analysis_jobs
		SET status = 'running', started_at = now(), attempts = attempts + 1
		WHERE id = $1 AND status = 'queued'
		RETURNING `+jobColumns, id)
	job, scanErr := scanJob(row)
	if scanErr != nil {
		err = scanErr
		return domain.Job{}, false, err
	}
	return job, true, nil
}

func (db *DB) MarkCompleted(ctx context.Context, id uuid.UUID, report *domain.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return db.finish(ctx, id, domain.StatusCompleted, "result", payload)
}

func (db *DB) MarkFailed(ctx context.Context, id uuid.UUID, jobErr *domain.JobError) error {
	payload, err := json.Marshal(jobErr)
	if err != nil {
		return fmt.Errorf("marshal job error: %w", err)
	}
	return db.finish(ctx, id, domain.StatusFailed, "job_error", payload)
}

func (db *DB) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	return db.finish(ctx, id, domain.StatusCancelled, "", nil)
}

// finish closes a running job. The status guard keeps the transition a CAS:
// a reclaimed job whose original worker wakes up late cannot overwrite the
// newer owner's terminal state.
func (db *DB) finish(ctx context.Context, id uuid.UUID, target domain.JobStatus, payloadCol string, payload []byte) error {
	set := `status = $2, finished_at = now()`
	args := []any{id, target}
	if payloadCol != "" {
		set += fmt.Sprintf(`, %s = $3`, payloadCol)
		args = append(args, payload)
	}
	tag, err := db.Pool.Exec(ctx, `
		UPDATE analysis_jobs SET `+set+`
		WHERE id = $1 AND status = 'running'
	`, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		cur, getErr := db.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		return cur.Status.ValidateTransition(target)
	}
	return nil
}

func (db *DB) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE analysis_jobs SET status = 'cancelled', finished_at = now()
		WHERE id = $1 AND status = 'queued'
	`, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	tag, err = db.Pool.Exec(ctx, `
		UPDATE analysis_jobs SET cancel_requested = TRUE
		WHERE id = $1 AND status = 'running'
	`, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// Unknown id or already terminal; distinguish for the caller.
		if _, getErr := db.Get(ctx, id); getErr != nil {
			return false, getErr
		}
	}
	return false, nil
}

func (db *DB) CancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var requested bool
	err := db.Pool.QueryRow(ctx,
		`SELECT cancel_requested FROM analysis_jobs WHERE id = $1`, id).Scan(&requested)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, domain.ErrJobNotFound
	}
	return requested, err
}

func (db *DB) AppendProgress(ctx context.Context, ev domain.ProgressEvent) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO job_progress (job_id, stage, detail, emitted_at)
		VALUES ($1, $2, $3, $4)
	`, ev.JobID, ev.Stage, ev.Detail, ev.EmittedAt)
	return err
}

// ReclaimStale requeues running jobs past the staleness window and
// force-fails the ones out of retry budget.
func (db *DB) ReclaimStale(ctx context.Context, staleness time.Duration, maxAttempts int) (requeued, failed []uuid.UUID, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	cutoff := time.Now().Add(-staleness)
	rows, err := tx.Query(ctx, `
		SELECT id, attempts FROM analysis_jobs
		WHERE status = 'running' AND started_at < $1
		FOR UPDATE SKIP LOCKED
	`, cutoff)
	if err != nil {
		return nil, nil, err
	}
	type stale struct {
		id       uuid.UUID
		attempts int
	}
	var found []stale
	for rows.Next() {
		var s stale
		if scanErr := rows.Scan(&s.id, &s.attempts); scanErr != nil {
			rows.Close()
			err = scanErr
			return nil, nil, err
		}
		found = append(found, s)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, nil, err
	}

	for _, s := range found {
		if s.attempts >= maxAttempts {
			stallErr := &domain.StalledJobError{Attempts: s.attempts}
			payload, mErr := json.Marshal(stallErr.JobError())
			if mErr != nil {
				err = mErr
				return requeued, failed, err
			}
			if _, err = tx.Exec(ctx, `
				UPDATE analysis_jobs
				SET status = 'failed', finished_at = now(), job_error = $2
				WHERE id = $1
			`, s.id, payload); err != nil {
				return requeued, failed, err
			}
			failed = append(failed, s.id)
			continue
		}
		if _, err = tx.Exec(ctx, `
			UPDATE analysis_jobs SET status = 'queued', started_at = NULL
			WHERE id = $1
		`, s.id); err != nil {
			return requeued, failed, err
		}
		requeued = append(requeued, s.id)
	}
	return requeued, failed, nil
}

func (db *DB) FindCompletedByHash(ctx context.Context, hash string) (domain.Job, bool, error) {
	if hash == "" {
		return domain.Job{}, false, nil
	}
	row := db.Pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM analysis_jobs
		WHERE status = 'completed' AND content_hash = $1
		ORDER BY finished_at DESC
		LIMIT 1
	`, hash)
	job, err := scanJob(row)
	if errors.Is(err, domain.ErrJobNotFound) {
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, err
	}
	return job, true, nil
}

func (db *DB) PutUpload(ctx context.Context, id uuid.UUID, content []byte) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO uploads (id, content) VALUES ($1, $2)`, id, content)
	return err
}

func (db *DB) GetUpload(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var content []byte
	err := db.Pool.QueryRow(ctx,
		`SELECT content FROM uploads WHERE id = $1`, id).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	return content, err
}

func marshalPayloads(job *domain.Job) (result, jobErr []byte, err error) {
	if job.Result != nil {
		if result, err = json.Marshal(job.Result); err != nil {
			return nil, nil, fmt.Errorf("marshal report: %w", err)
		}
	}
	if job.Error != nil {
		if jobErr, err = json.Marshal(job.Error); err != nil {
			return nil, nil, fmt.Errorf("marshal job error: %w", err)
		}
	}
	return result, jobErr, nil
}

func scanJob(row pgx.Row) (domain.Job, error) {
	var (
		job            domain.Job
		kind           string
		format         string
		status         string
		result, jobErr []byte
	)
	err := row.Scan(&job.ID, &kind, &format, &job.InputRef, &job.ContentHash, &status,
		&job.Attempts, &job.CancelRequested, &job.CreatedAt, &job.StartedAt,
		&job.FinishedAt, &result, &jobErr)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Job{}, domain.ErrJobNotFound
	}
	if err != nil {
		return domain.Job{}, err
	}
	job.Kind = domain.JobKind(kind)
	job.SourceFormat = domain.SourceFormat(format)
	job.Status = domain.ParseJobStatus(status)
	if len(result) > 0 {
		job.Result = &domain.Report{}
		if err := json.Unmarshal(result, job.Result); err != nil {
			return domain.Job{}, fmt.Errorf("decode report: %w", err)
		}
	}
	if len(jobErr) > 0 {
		job.Error = &domain.JobError{}
		if err := json.Unmarshal(jobErr, job.Error); err != nil {
			return domain.Job{}, fmt.Errorf("decode job error: %w", err)
		}
	}
	return job, nil
}
