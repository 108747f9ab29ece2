// Package collectors adapts each job kind's input into the line stream the
// scan engine consumes. The worker pool dispatches through the Collector
// port and needs no kind-specific knowledge.
package collectors

import (
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/ports"
)

// Registry maps job kinds to their input collectors.
type Registry map[domain.JobKind]ports.Collector

// NewRegistry wires the default collector per job kind.
func NewRegistry(uploads ports.UploadStore) Registry {
	return Registry{
		domain.KindLogScan:           &LogCollector{Uploads: uploads},
		domain.KindHeaderScan:        NewHeaderCollector(),
		domain.KindInteractiveScrape: NewCrawlCollector(uploads),
	}
}
