// Package memory provides an in-memory JobStore/UploadStore with the same
// claim and transition semantics as the postgres adapter. It backs tests and
// the single-process dev mode; it is not durable across restarts.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
)

type record struct {
	job      domain.Job
	progress []domain.ProgressEvent
	seq      int
}

type Store struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*record
	uploads map[uuid.UUID][]byte
	nextSeq int
	now     func() time.Time
}

func New() *Store {
	return &Store{
		jobs:    map[uuid.UUID]*record{},
		uploads: map[uuid.UUID][]byte{},
		now:     time.Now,
	}
}

// SetClock overrides the store clock; tests use it to age running jobs past
// the staleness window.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Submit(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *job
	s.nextSeq++
	s.jobs[job.ID] = &record{job: cp, seq: s.nextSeq}
	return nil
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return rec.job, nil
}

func (s *Store) Snapshot(_ context.Context, id uuid.UUID) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return domain.Snapshot{}, domain.ErrJobNotFound
	}
	prog := make([]domain.ProgressEvent, len(rec.progress))
	copy(prog, rec.progress)
	return domain.Snapshot{Job: rec.job, Progress: prog}, nil
}

// ClaimNext claims the oldest queued job: strict FIFO by creation time, with
// submission order breaking ties. The whole claim happens under one lock, so
// concurrent claimers see exactly-one-winner semantics.
func (s *Store) ClaimNext(_ context.Context) (domain.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var queued []*record
	for _, rec := range s.jobs {
		if rec.job.Status == domain.StatusQueued {
			queued = append(queued, rec)
		}
	}
	if len(queued) == 0 {
		return domain.Job{}, false, nil
	}
	sort.Slice(queued, func(i, j int) bool {
		if !queued[i].job.CreatedAt.Equal(queued[j].job.CreatedAt) {
			return queued[i].job.CreatedAt.Before(queued[j].job.CreatedAt)
		}
		return queued[i].seq < queued[j].seq
	})

	rec := queued[0]
	now := s.now()
	rec.job.Status = domain.StatusRunning
	rec.job.StartedAt = &now
	rec.job.Attempts++
	return rec.job, true, nil
}

func (s *Store) MarkCompleted(_ context.Context, id uuid.UUID, report *domain.Report) error {
	return s.finish(id, domain.StatusCompleted, func(j *domain.Job) { j.Result = report })
}

func (s *Store) MarkFailed(_ context.Context, id uuid.UUID, jobErr *domain.JobError) error {
	return s.finish(id, domain.StatusFailed, func(j *domain.Job) { j.Error = jobErr })
}

func (s *Store) MarkCancelled(_ context.Context, id uuid.UUID) error {
	return s.finish(id, domain.StatusCancelled, nil)
}

func (s *Store) finish(id uuid.UUID, target domain.JobStatus, apply func(*domain.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if err := rec.job.Status.ValidateTransition(target); err != nil {
		return err
	}
	now := s.now()
	rec.job.Status = target
	rec.job.FinishedAt = &now
	if apply != nil {
		apply(&rec.job)
	}
	return nil
}

func (s *Store) Cancel(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return false, domain.ErrJobNotFound
	}
	switch rec.job.Status {
	case domain.StatusQueued:
		now := s.now()
		rec.job.Status = domain.StatusCancelled
		rec.job.FinishedAt = &now
		return true, nil
	case domain.StatusRunning:
		rec.job.CancelRequested = true
		return false, nil
	default:
		return false, nil
	}
}

func (s *Store) CancelRequested(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return false, domain.ErrJobNotFound
	}
	return rec.job.CancelRequested, nil
}

func (s *Store) AppendProgress(_ context.Context, ev domain.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[ev.JobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	rec.progress = append(rec.progress, ev)
	return nil
}

// ReclaimStale requeues running jobs whose StartedAt exceeds the staleness
// window; jobs out of retry budget are force-failed with a stalled-job
// error.
func (s *Store) ReclaimStale(_ context.Context, staleness time.Duration, maxAttempts int) (requeued, failed []uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-staleness)
	for id, rec := range s.jobs {
		if rec.job.Status != domain.StatusRunning || rec.job.StartedAt == nil || rec.job.StartedAt.After(cutoff) {
			continue
		}
		if rec.job.Attempts >= maxAttempts {
			stallErr := &domain.StalledJobError{Attempts: rec.job.Attempts}
			now := s.now()
			rec.job.Status = domain.StatusFailed
			rec.job.FinishedAt = &now
			rec.job.Error = stallErr.JobError()
			failed = append(failed, id)
			continue
		}
		rec.job.Status = domain.StatusQueued
		rec.job.StartedAt = nil
		requeued = append(requeued, id)
	}
	return requeued, failed, nil
}

func (s *Store) FindCompletedByHash(_ context.Context, hash string) (domain.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *record
	for _, rec := range s.jobs {
		if rec.job.Status != domain.StatusCompleted || rec.job.ContentHash != hash || hash == "" {
			continue
		}
		if best == nil || rec.seq > best.seq {
			best = rec
		}
	}
	if best == nil {
		return domain.Job{}, false, nil
	}
	return best.job, true, nil
}

func (s *Store) PutUpload(_ context.Context, id uuid.UUID, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(content))
	copy(cp, content)
	s.uploads[id] = cp
	return nil
}

func (s *Store) GetUpload(_ context.Context, id uuid.UUID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, ok := s.uploads[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return content, nil
}
