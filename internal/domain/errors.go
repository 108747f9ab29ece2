package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across packages.
var (
	// ErrMalformedPattern is returned when a detection rule fails to compile.
	ErrMalformedPattern = errors.New("malformed pattern")

	// ErrEmptyLibrary is returned when loading yields no patterns for a
	// source.
	ErrEmptyLibrary = errors.New("empty pattern library")

	// ErrJobNotFound is returned by stores for unknown job ids.
	ErrJobNotFound = errors.New("job not found")

	// ErrCancelled is returned by the pipeline when a cooperative
	// cancellation is honored at a stage boundary.
	ErrCancelled = errors.New("job cancelled")
)

// Error kinds recorded on failed jobs.
const (
	ErrKindSynthesis  = "synthesis_error"
	ErrKindStalledJob = "stalled_job_error"
	ErrKindRetrieval  = "retrieval_error"
	ErrKindInternal   = "internal_error"
	ErrKindCollection = "collection_error"
)

// JobError is the error payload persisted on a failed job. PartialFindings
// preserves the deterministic scan output computed before the failure so it
// is returned to the caller rather than discarded.
type JobError struct {
	Kind            string    `json:"kind"`
	Message         string    `json:"message"`
	PartialFindings []Finding `json:"partial_findings,omitempty"`
}

func (e *JobError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// SynthesisError reports a generative-collaborator failure (timeout or
// malformed response). The job fails but keeps the scan results.
type SynthesisError struct {
	Cause           error
	PartialFindings []Finding
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: %v", e.Cause)
}

func (e *SynthesisError) Unwrap() error { return e.Cause }

// JobError converts the failure into its persisted form.
func (e *SynthesisError) JobError() *JobError {
	return &JobError{
		Kind:            ErrKindSynthesis,
		Message:         e.Cause.Error(),
		PartialFindings: e.PartialFindings,
	}
}

// StalledJobError marks a job whose worker went away and whose retry budget
// is exhausted.
type StalledJobError struct {
	Attempts int
}

func (e *StalledJobError) Error() string {
	return fmt.Sprintf("job stalled after %d attempts", e.Attempts)
}

// JobError converts the failure into its persisted form.
func (e *StalledJobError) JobError() *JobError {
	return &JobError{Kind: ErrKindStalledJob, Message: e.Error()}
}
