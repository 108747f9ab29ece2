package domain

import "fmt"

// JobStatus represents the current state of an analysis job.
type JobStatus string

const (
	// StatusQueued indicates a job has been submitted but not yet claimed.
	StatusQueued JobStatus = "queued"

	// StatusRunning indicates a worker holds the job and is executing the
	// pipeline.
	StatusRunning JobStatus = "running"

	// StatusCompleted indicates the pipeline finished and a report is
	// attached.
	StatusCompleted JobStatus = "completed"

	// StatusFailed indicates the job encountered an unrecoverable error.
	StatusFailed JobStatus = "failed"

	// StatusCancelled indicates a cooperative cancellation was honored.
	StatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) String() string { return string(s) }

// Terminal reports whether the status is final. A job never leaves a
// terminal status.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ParseJobStatus converts a stored string to a JobStatus. Unknown values
// return the empty status.
func ParseJobStatus(s string) JobStatus {
	switch JobStatus(s) {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return JobStatus(s)
	default:
		return ""
	}
}

// ValidateTransition checks if a status transition is legal and returns an
// error if not. The running->queued edge exists only for stale-job reclaim.
func (s JobStatus) ValidateTransition(target JobStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid job status transition from %s to %s", s, target)
	}
	return nil
}

func (s JobStatus) isValidTransition(target JobStatus) bool {
	switch s {
	case StatusQueued:
		return target == StatusRunning || target == StatusCancelled
	case StatusRunning:
		switch target {
		case StatusCompleted, StatusFailed, StatusCancelled:
			return true
		case StatusQueued:
			// Reclaim of a stale job back onto the queue.
			return true
		}
		return false
	default:
		// Terminal states are final.
		return false
	}
}
