// Package analyzer is the submission boundary: it creates jobs, answers
// status reads and relays cancellation. Execution belongs to the workers.
package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/ports"
)

type Service struct {
	store   ports.JobStore
	uploads ports.UploadStore
	sink    ports.ProgressSink
	now     func() time.Time
}

func New(store ports.JobStore, uploads ports.UploadStore, sink ports.ProgressSink) *Service {
	return &Service{store: store, uploads: uploads, sink: sink, now: time.Now}
}

// SubmitLog stores the uploaded log and enqueues a log-scan job. A completed
// job with identical content short-circuits into a pre-completed job reusing
// the cached report.
func (s *Service) SubmitLog(ctx context.Context, format domain.SourceFormat, content []byte) (domain.Job, error) {
	if format != domain.SourceNginx && format != domain.SourceApache {
		return domain.Job{}, fmt.Errorf("unsupported log format %q", format)
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	if cached, ok, err := s.store.FindCompletedByHash(ctx, hash); err == nil && ok {
		job := domain.Job{
			ID:           uuid.New(),
			Kind:         domain.KindLogScan,
			SourceFormat: format,
			InputRef:     cached.InputRef,
			ContentHash:  hash,
			Status:       domain.StatusCompleted,
			CreatedAt:    s.now(),
			Result:       cached.Result,
		}
		finished := s.now()
		job.FinishedAt = &finished
		if err := s.store.Submit(ctx, &job); err != nil {
			return domain.Job{}, err
		}
		_ = s.store.AppendProgress(ctx, domain.ProgressEvent{
			JobID:     job.ID,
			Stage:     domain.StageDone,
			Detail:    "served from analysis cache",
			EmittedAt: s.now(),
		})
		return job, nil
	}

	uploadID := uuid.New()
	if err := s.uploads.PutUpload(ctx, uploadID, content); err != nil {
		return domain.Job{}, fmt.Errorf("store upload: %w", err)
	}

	return s.enqueue(ctx, domain.Job{
		ID:           uuid.New(),
		Kind:         domain.KindLogScan,
		SourceFormat: format,
		InputRef:     uploadID.String(),
		ContentHash:  hash,
	})
}

// SubmitHeaderScan enqueues a header-scan job for the target URL.
func (s *Service) SubmitHeaderScan(ctx context.Context, rawURL string) (domain.Job, error) {
	target, err := normalizeTarget(rawURL)
	if err != nil {
		return domain.Job{}, err
	}
	return s.enqueue(ctx, domain.Job{
		ID:           uuid.New(),
		Kind:         domain.KindHeaderScan,
		SourceFormat: domain.SourceHeaders,
		InputRef:     target,
	})
}

// SubmitCrawl stores the crawl spec and enqueues an interactive-scrape job.
func (s *Service) SubmitCrawl(ctx context.Context, spec domain.CrawlSpec) (domain.Job, error) {
	start, err := normalizeTarget(spec.StartURL)
	if err != nil {
		return domain.Job{}, err
	}
	spec.StartURL = start
	if spec.DomainToCheck == "" {
		u, _ := url.Parse(start)
		spec.DomainToCheck = u.Hostname()
	}
	if spec.MaxPages <= 0 {
		spec.MaxPages = 15
	}

	raw, err := json.Marshal(spec)
	if err != nil {
		return domain.Job{}, fmt.Errorf("encode crawl spec: %w", err)
	}
	specID := uuid.New()
	if err := s.uploads.PutUpload(ctx, specID, raw); err != nil {
		return domain.Job{}, fmt.Errorf("store crawl spec: %w", err)
	}

	return s.enqueue(ctx, domain.Job{
		ID:           uuid.New(),
		Kind:         domain.KindInteractiveScrape,
		SourceFormat: domain.SourceCrawl,
		InputRef:     specID.String(),
	})
}

func (s *Service) enqueue(ctx context.Context, job domain.Job) (domain.Job, error) {
	job.Status = domain.StatusQueued
	job.CreatedAt = s.now()
	if err := s.store.Submit(ctx, &job); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// Snapshot returns the poll view: job state plus the full progress sequence.
func (s *Service) Snapshot(ctx context.Context, id uuid.UUID) (domain.Snapshot, error) {
	return s.store.Snapshot(ctx, id)
}

// Cancel requests cooperative cancellation. The returned flag is true when
// the job was still queued and moved directly to cancelled; that transition
// happens outside the worker pipeline, so the terminal progress event is
// emitted here for attached streams.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	cancelledNow, err := s.store.Cancel(ctx, id)
	if err != nil || !cancelledNow {
		return cancelledNow, err
	}

	ev := domain.ProgressEvent{
		JobID:     id,
		Stage:     domain.StageError,
		Detail:    "cancelled",
		EmittedAt: s.now(),
	}
	if appendErr := s.store.AppendProgress(ctx, ev); appendErr != nil {
		log.Printf("analyzer: append cancel progress for %s: %v", id, appendErr)
	}
	if s.sink != nil {
		s.sink.Publish(ev)
	}
	return true, nil
}

// normalizeTarget validates the target and checks it resolves to a
// registrable domain; a bare host gets an https scheme, matching what users
// paste in.
func normalizeTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty target url")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid target url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("target url %q has no host", raw)
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(host); err != nil && !isIPOrLocal(host) {
		return "", fmt.Errorf("target %q is not a registrable domain", host)
	}
	return u.String(), nil
}

func isIPOrLocal(host string) bool {
	return host == "localhost" || net.ParseIP(host) != nil
}
