package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_RankedByScore(t *testing.T) {
	idx := NewIndex([]Document{
		{SourceID: "a", Text: "sql injection union select"},
		{SourceID: "b", Text: "cross-site scripting script tags"},
		{SourceID: "c", Text: "sql injection parameterized queries union select defense"},
	})

	got, err := idx.Query(context.Background(), "sql injection union select", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].SourceID)
	assert.Equal(t, "c", got[1].SourceID)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
}

func TestQuery_TiesBrokenBySourceID(t *testing.T) {
	idx := NewIndex([]Document{
		{SourceID: "zeta", Text: "path traversal indicators"},
		{SourceID: "alpha", Text: "path traversal indicators"},
	})

	got, err := idx.Query(context.Background(), "path traversal", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alpha", got[0].SourceID)
	assert.Equal(t, "zeta", got[1].SourceID)
}

func TestQuery_TopKLimit(t *testing.T) {
	idx := NewIndex(DefaultKnowledgeBase())
	got, err := idx.Query(context.Background(), "security mitigate reference indicators", 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), 2)
}

func TestQuery_EmptyIndex(t *testing.T) {
	idx := NewIndex(nil)
	got, err := idx.Query(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQuery_NoOverlap(t *testing.T) {
	idx := NewIndex([]Document{{SourceID: "a", Text: "sql injection"}})
	got, err := idx.Query(context.Background(), "zzzz qqqq", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}
