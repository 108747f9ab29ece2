package ports

import (
	"context"
	"io"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
)

// Generator is the external generative collaborator. It accepts the
// augmented request and returns the narrative text. Timeouts and malformed
// responses surface as errors, never as crashes.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SimilarityIndex is the external similarity-index collaborator. An empty
// index returns an empty slice, never an error.
type SimilarityIndex interface {
	Query(ctx context.Context, query string, k int) ([]domain.KnowledgeSnippet, error)
}

// Collector adapts one job kind's input to the line stream the scan engine
// consumes, so the worker pool needs no kind-specific knowledge. The crawl
// and header fetch mechanics plug in behind this port.
type Collector interface {
	Collect(ctx context.Context, job domain.Job) (io.ReadCloser, error)
}

// ProgressSink receives progress events as they are appended, feeding the
// push-stream side of the progress channel.
type ProgressSink interface {
	Publish(ev domain.ProgressEvent)
}
