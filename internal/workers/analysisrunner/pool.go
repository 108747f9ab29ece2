package analysisrunner

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
)

// Run starts the dispatcher and worker goroutines. The dispatcher polls the
// store and drains every queued job it can claim; workers execute the
// pipeline. Any fault inside one job is caught at the job boundary and the
// worker returns to the claim loop.
func Run(ctx context.Context, p *Pipeline, concurrency int, pollInterval time.Duration) {
	if concurrency < 1 {
		return
	}
	jobsCh := make(chan domain.Job, concurrency)

	// dispatcher loop
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(jobsCh)
				return
			case <-ticker.C:
				for {
					job, found, err := p.Store.ClaimNext(ctx)
					if err != nil {
						if ctx.Err() == nil {
							log.Printf("job claim error: %v", err)
						}
						break
					}
					if !found {
						break
					}
					select {
					case jobsCh <- job:
					case <-ctx.Done():
						close(jobsCh)
						return
					}
				}
			}
		}
	}()

	// workers
	for i := 0; i < concurrency; i++ {
		go func(idx int) {
			for job := range jobsCh {
				runOne(ctx, p, idx, job)
			}
		}(i)
	}
}

func runOne(ctx context.Context, p *Pipeline, idx int, job domain.Job) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		jobErr := &domain.JobError{Kind: domain.ErrKindInternal, Message: "worker panic during job execution"}
		if err := p.Store.MarkFailed(ctx, job.ID, jobErr); err != nil {
			log.Printf("worker %d: job %s panic, fail write: %v", idx, job.ID, err)
		}
		log.Printf("worker %d: recovered panic in job %s: %v", idx, job.ID, r)
	}()

	if err := p.Process(ctx, job); err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			log.Printf("worker %d: job %s cancelled", idx, job.ID)
			return
		}
		log.Printf("worker %d: job %s failed: %v", idx, job.ID, err)
	}
}

// RunSweeper periodically reclaims stale running jobs: requeue within the
// retry budget, force-fail beyond it. Any live process may run the sweep;
// SKIP LOCKED keeps concurrent sweeps disjoint.
func RunSweeper(ctx context.Context, p *Pipeline, interval, staleness time.Duration, retryBudget int) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// maxAttempts is budget+1: the first execution plus the
				// allowed retries.
				requeued, failed, err := p.Store.ReclaimStale(ctx, staleness, retryBudget+1)
				if err != nil {
					if ctx.Err() == nil {
						log.Printf("reclaim sweep error: %v", err)
					}
					continue
				}
				// Force-fail is a terminal transition taken outside the
				// pipeline; emit so attached streams still close.
				for _, id := range failed {
					p.emit(ctx, id, domain.StageError, "stalled: retry budget exhausted")
				}
				if len(requeued) > 0 || len(failed) > 0 {
					log.Printf("reclaim sweep: requeued=%d force-failed=%d", len(requeued), len(failed))
				}
			}
		}
	}()
}
