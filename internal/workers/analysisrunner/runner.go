// Package analysisrunner executes claimed jobs through the three-stage
// pipeline: collect+scan -> retrieve -> synthesize. Workers share nothing
// but the job store; a failure inside one job never affects another.
package analysisrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/patterns"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/ports"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/services/retriever"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/services/scanengine"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/services/synthesizer"
)

// Pipeline holds the per-job execution dependencies. It is shared by all
// workers; everything it references is read-only or internally synchronized.
type Pipeline struct {
	Store      ports.JobStore
	Collectors map[domain.JobKind]ports.Collector
	Retriever  *retriever.Service
	Synth      *synthesizer.Service
	Sink       ports.ProgressSink
	now        func() time.Time
}

func NewPipeline(store ports.JobStore, collectors map[domain.JobKind]ports.Collector, ret *retriever.Service, synth *synthesizer.Service, sink ports.ProgressSink) *Pipeline {
	return &Pipeline{
		Store:      store,
		Collectors: collectors,
		Retriever:  ret,
		Synth:      synth,
		Sink:       sink,
		now:        time.Now,
	}
}

// Process runs one claimed job to a terminal state. The error return is for
// logging only; the terminal state has already been written to the store.
func (p *Pipeline) Process(ctx context.Context, job domain.Job) error {
	p.emit(ctx, job.ID, domain.StageReceived, fmt.Sprintf("kind=%s source=%s attempt=%d", job.Kind, job.SourceFormat, job.Attempts))

	findings, stats, detail, err := p.collectAndScan(ctx, job)
	if err != nil {
		return p.fail(ctx, job, &domain.JobError{
			Kind:            domain.ErrKindCollection,
			Message:         err.Error(),
			PartialFindings: findings,
		})
	}

	if p.cancelled(ctx, job.ID) {
		return p.cancel(ctx, job)
	}

	p.emit(ctx, job.ID, domain.StageRetrieving, "querying knowledge base")
	snippets := p.Retriever.Retrieve(ctx, findings)

	if p.cancelled(ctx, job.ID) {
		return p.cancel(ctx, job)
	}

	p.emit(ctx, job.ID, domain.StageSynthesizing, "generating report narrative")
	report, err := p.Synth.Synthesize(ctx, findings, snippets, synthesizer.SourceContext{
		Kind:   job.Kind,
		Format: job.SourceFormat,
		Target: job.InputRef,
		Stats:  stats,
		Detail: detail,
	})
	if err != nil {
		var synthErr *domain.SynthesisError
		if errors.As(err, &synthErr) {
			return p.fail(ctx, job, synthErr.JobError())
		}
		return p.fail(ctx, job, &domain.JobError{
			Kind:            domain.ErrKindInternal,
			Message:         err.Error(),
			PartialFindings: findings,
		})
	}

	// A cancellation requested mid-synthesis lets the in-flight call
	// finish, then discards its result.
	if p.cancelled(ctx, job.ID) {
		return p.cancel(ctx, job)
	}

	if err := p.Store.MarkCompleted(ctx, job.ID, report); err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	p.emit(ctx, job.ID, domain.StageDone, report.Summary)
	return nil
}

func (p *Pipeline) collectAndScan(ctx context.Context, job domain.Job) ([]domain.Finding, scanengine.Stats, string, error) {
	collector, ok := p.Collectors[job.Kind]
	if !ok {
		return nil, scanengine.Stats{}, "", fmt.Errorf("no collector for job kind %q", job.Kind)
	}

	rc, err := collector.Collect(ctx, job)
	if err != nil {
		return nil, scanengine.Stats{}, "", err
	}
	defer rc.Close()

	pats, err := patterns.Load(job.SourceFormat)
	if err != nil {
		return nil, scanengine.Stats{}, "", err
	}

	p.emit(ctx, job.ID, domain.StageScanning, fmt.Sprintf("scanning with %d pattern(s)", len(pats)))

	var findings []domain.Finding
	var head []byte
	tee := &headTee{r: rc, head: &head}
	stats, err := scanengine.Scan(tee, pats, func(f domain.Finding) error {
		findings = append(findings, f)
		return nil
	})
	if err != nil {
		return findings, stats, "", err
	}

	detail := ""
	if job.Kind != domain.KindLogScan {
		// Header and crawl streams are small summaries; quote them in the
		// synthesis context.
		detail = string(head)
	}
	return findings, stats, detail, nil
}

func (p *Pipeline) cancelled(ctx context.Context, id uuid.UUID) bool {
	requested, err := p.Store.CancelRequested(ctx, id)
	if err != nil {
		log.Printf("runner: cancel check for %s: %v", id, err)
		return false
	}
	return requested
}

func (p *Pipeline) emit(ctx context.Context, id uuid.UUID, stage domain.ProgressStage, detail string) {
	ev := domain.ProgressEvent{JobID: id, Stage: stage, Detail: detail, EmittedAt: p.now()}
	if err := p.Store.AppendProgress(ctx, ev); err != nil {
		log.Printf("runner: append progress for %s: %v", id, err)
	}
	if p.Sink != nil {
		p.Sink.Publish(ev)
	}
}

// headTee copies the first bytes it reads into head so the pipeline can
// quote small collected streams in the synthesis prompt.
type headTee struct {
	r    io.Reader
	head *[]byte
}

const headTeeCap = 2048

func (t *headTee) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 && len(*t.head) < headTeeCap {
		room := headTeeCap - len(*t.head)
		if room > n {
			room = n
		}
		*t.head = append(*t.head, p[:room]...)
	}
	return n, err
}

func (p *Pipeline) cancel(ctx context.Context, job domain.Job) error {
	if err := p.Store.MarkCancelled(ctx, job.ID); err != nil {
		return fmt.Errorf("cancel job %s: %w", job.ID, err)
	}
	p.emit(ctx, job.ID, domain.StageError, "cancelled")
	return domain.ErrCancelled
}

func (p *Pipeline) fail(ctx context.Context, job domain.Job, jobErr *domain.JobError) error {
	if err := p.Store.MarkFailed(ctx, job.ID, jobErr); err != nil {
		return fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	p.emit(ctx, job.ID, domain.StageError, jobErr.Message)
	return jobErr
}
