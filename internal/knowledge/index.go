// Package knowledge provides the in-process similarity index the retriever
// queries. It implements the similarity-index collaborator contract: ranked
// snippets by score, empty index yields an empty result, never an error.
package knowledge

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
)

// Document is one entry in the knowledge base.
type Document struct {
	SourceID string
	Text     string
}

// Index scores documents by token overlap with the query. Read-only after
// construction, safe for unlimited concurrent readers.
type Index struct {
	docs []indexedDoc
}

type indexedDoc struct {
	sourceID string
	text     string
	tokens   map[string]struct{}
}

// NewIndex builds an index over the given documents.
func NewIndex(docs []Document) *Index {
	idx := &Index{docs: make([]indexedDoc, 0, len(docs))}
	for _, d := range docs {
		idx.docs = append(idx.docs, indexedDoc{
			sourceID: d.SourceID,
			text:     d.Text,
			tokens:   tokenize(d.Text),
		})
	}
	return idx
}

// Query returns the top-k documents by overlap score, descending, ties
// broken by source id ascending for determinism.
func (idx *Index) Query(_ context.Context, query string, k int) ([]domain.KnowledgeSnippet, error) {
	if k <= 0 || len(idx.docs) == 0 {
		return nil, nil
	}
	qtokens := tokenize(query)
	if len(qtokens) == 0 {
		return nil, nil
	}

	scored := make([]domain.KnowledgeSnippet, 0, len(idx.docs))
	for _, d := range idx.docs {
		overlap := 0
		for t := range qtokens {
			if _, ok := d.tokens[t]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		scored = append(scored, domain.KnowledgeSnippet{
			Text:     d.text,
			Score:    float64(overlap) / float64(len(qtokens)),
			SourceID: d.sourceID,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].SourceID < scored[j].SourceID
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		tokens[f] = struct{}{}
	}
	return tokens
}
