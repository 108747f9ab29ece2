// Package retriever turns a job's findings into one aggregated query against
// the similarity index and returns the top-K knowledge snippets.
package retriever

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/ports"
)

// Query terms per category. The query is built from distinct categories, not
// per finding, so retrieval cost tracks the number of observed threat
// classes rather than log size.
var categoryTerms = map[domain.Category]string{
	domain.CategorySQLi:          "SQL injection union select or 1=1 parameterized queries",
	domain.CategoryXSS:           "cross-site scripting script onerror javascript encoding",
	domain.CategoryPathTraversal: "path traversal ../ etc/passwd canonicalize",
	domain.CategoryRecon:         "reconnaissance scanning nmap nikto sqlmap user agents",
	domain.CategoryCmdInjection:  "command injection shell cat whoami",
	domain.CategoryHeaderMissing: "missing security headers strict-transport-security content-security-policy",
	domain.CategoryCrawlSurface:  "form attack surface login input validation rate limiting",
}

type Service struct {
	index ports.SimilarityIndex
	topK  int
}

func New(index ports.SimilarityIndex, topK int) *Service {
	return &Service{index: index, topK: topK}
}

// Retrieve returns the top-K snippets for the findings' aggregated category
// context. Zero findings yield an empty slice so a clean report can still be
// produced. An index failure degrades to an empty slice with a logged
// warning; the job proceeds.
func (s *Service) Retrieve(ctx context.Context, findings []domain.Finding) []domain.KnowledgeSnippet {
	query := buildQuery(findings)
	if query == "" {
		return nil
	}

	snippets, err := s.index.Query(ctx, query, s.topK)
	if err != nil {
		log.Printf("retriever: index unavailable, proceeding without snippets: %v", err)
		return nil
	}

	// Enforce the ordering contract regardless of index behavior.
	sort.SliceStable(snippets, func(i, j int) bool {
		if snippets[i].Score != snippets[j].Score {
			return snippets[i].Score > snippets[j].Score
		}
		return snippets[i].SourceID < snippets[j].SourceID
	})
	return snippets
}

func buildQuery(findings []domain.Finding) string {
	seen := map[domain.Category]struct{}{}
	for _, f := range findings {
		if f.Category == domain.CategoryUnparseable {
			continue
		}
		seen[f.Category] = struct{}{}
	}
	if len(seen) == 0 {
		return ""
	}

	cats := make([]string, 0, len(seen))
	for c := range seen {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)

	var terms []string
	for _, c := range cats {
		if t, ok := categoryTerms[domain.Category(c)]; ok {
			terms = append(terms, t)
		} else {
			terms = append(terms, c)
		}
	}
	return strings.Join(terms, " ")
}
