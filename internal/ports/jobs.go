package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
)

// JobStore is the durable record of every submitted job, its state and a
// FIFO ordering of jobs awaiting execution. It is the only shared mutable
// resource; all mutation goes through these operations. Claiming is an
// atomic compare-and-swap on status so at most one worker holds a job.
type JobStore interface {
	// Submit persists the job exactly as given. The analyzer boundary may
	// submit pre-completed jobs when a cached result exists.
	Submit(ctx context.Context, job *domain.Job) error

	// Get returns the job record without its progress sequence.
	Get(ctx context.Context, id uuid.UUID) (domain.Job, error)

	// Snapshot returns the job plus its full progress sequence.
	Snapshot(ctx context.Context, id uuid.UUID) (domain.Snapshot, error)

	// ClaimNext atomically claims the oldest queued job (queued->running,
	// attempts+1). found is false when the queue is empty.
	ClaimNext(ctx context.Context) (job domain.Job, found bool, err error)

	// MarkCompleted finishes a running job with its report.
	MarkCompleted(ctx context.Context, id uuid.UUID, report *domain.Report) error

	// MarkFailed finishes a running job with an error payload.
	MarkFailed(ctx context.Context, id uuid.UUID, jobErr *domain.JobError) error

	// MarkCancelled finishes a running job whose cancellation was honored
	// at a stage boundary.
	MarkCancelled(ctx context.Context, id uuid.UUID) error

	// Cancel requests cancellation. A queued job moves directly to
	// cancelled (returns true); a running job gets a flag the worker
	// checks between stages (returns false). Terminal jobs are unchanged.
	Cancel(ctx context.Context, id uuid.UUID) (cancelledNow bool, err error)

	// CancelRequested reports whether a cancel flag is set for the job.
	CancelRequested(ctx context.Context, id uuid.UUID) (bool, error)

	// AppendProgress appends one event to the job's progress sequence.
	AppendProgress(ctx context.Context, ev domain.ProgressEvent) error

	// ReclaimStale requeues running jobs older than the staleness window
	// and force-fails those whose attempts reached maxAttempts. The
	// returned ids let the caller emit progress for the jobs it touched.
	ReclaimStale(ctx context.Context, staleness time.Duration, maxAttempts int) (requeued, failed []uuid.UUID, err error)

	// FindCompletedByHash returns the most recent completed job with the
	// given input content hash, for submission dedupe.
	FindCompletedByHash(ctx context.Context, hash string) (domain.Job, bool, error)
}

// UploadStore keeps uploaded input content addressable by an opaque ref.
type UploadStore interface {
	PutUpload(ctx context.Context, id uuid.UUID, content []byte) error
	GetUpload(ctx context.Context, id uuid.UUID) ([]byte, error)
}
