// Package synthesizer combines findings and retrieved snippets into one
// augmented request for the generative collaborator and shapes the final
// report. It performs no scanning or retrieval of its own.
package synthesizer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/ports"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/services/scanengine"
)

// SourceContext carries the job context so narrative wording is
// source-aware.
type SourceContext struct {
	Kind   domain.JobKind
	Format domain.SourceFormat
	Target string
	Stats  scanengine.Stats
	Detail string // kind-specific summary, e.g. the crawl overview
}

type Service struct {
	gen     ports.Generator
	timeout time.Duration
	retries uint64
}

func New(gen ports.Generator, timeout time.Duration) *Service {
	return &Service{gen: gen, timeout: timeout, retries: 2}
}

// Synthesize produces the report for a job. A collaborator timeout or
// malformed response returns a SynthesisError carrying the findings already
// computed, so the deterministic scan result is preserved on failure.
func (s *Service) Synthesize(ctx context.Context, findings []domain.Finding, snippets []domain.KnowledgeSnippet, sctx SourceContext) (*domain.Report, error) {
	prompt := buildPrompt(findings, snippets, sctx)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var narrative string
	op := func() error {
		out, err := s.gen.Generate(callCtx, prompt)
		if err != nil {
			return err
		}
		if strings.TrimSpace(out) == "" {
			return backoff.Permanent(fmt.Errorf("collaborator returned empty narrative"))
		}
		narrative = out
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.retries), callCtx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, &domain.SynthesisError{Cause: err, PartialFindings: findings}
	}

	narrative, configBlock := splitConfigBlock(narrative)
	return &domain.Report{
		Summary:     Summary(findings, sctx.Stats),
		Findings:    findings,
		Narrative:   narrative,
		ConfigBlock: configBlock,
	}, nil
}

// Summary is the deterministic, collaborator-independent part of the report.
func Summary(findings []domain.Finding, stats scanengine.Stats) string {
	counts := map[domain.Category]int{}
	for _, f := range findings {
		counts[f.Category]++
	}
	if len(counts) == 0 {
		return fmt.Sprintf("No detections across %d scanned lines.", stats.Scanned)
	}

	cats := make([]string, 0, len(counts))
	for c := range counts {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)

	var b strings.Builder
	fmt.Fprintf(&b, "%d finding(s) across %d scanned line(s).", len(findings), stats.Scanned)
	for _, c := range cats {
		fmt.Fprintf(&b, " Found '%s' pattern %d time(s).", c, counts[domain.Category(c)])
	}
	if stats.Unparseable > 0 {
		fmt.Fprintf(&b, " %d line(s) could not be parsed.", stats.Unparseable)
	}
	return b.String()
}

// splitConfigBlock pulls a remediation configuration block out of the
// narrative when the collaborator produced one (nginx add_header / Apache
// Header set directives inside a fenced block).
func splitConfigBlock(narrative string) (string, string) {
	const fence = "```"
	start := strings.Index(narrative, fence)
	for start >= 0 {
		bodyStart := strings.Index(narrative[start:], "\n")
		if bodyStart < 0 {
			break
		}
		bodyStart += start + 1
		end := strings.Index(narrative[bodyStart:], fence)
		if end < 0 {
			break
		}
		block := narrative[bodyStart : bodyStart+end]
		if strings.Contains(block, "add_header") || strings.Contains(block, "Header set") {
			return narrative, strings.TrimSpace(block)
		}
		next := strings.Index(narrative[bodyStart+end+len(fence):], fence)
		if next < 0 {
			break
		}
		start = bodyStart + end + len(fence) + next
	}
	return narrative, ""
}
