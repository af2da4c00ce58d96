package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/wayfind/pkg/schema"
)

// fakeSearcher returns canned results keyed by query substring.
type fakeSearcher struct {
	results []schema.RetrievedDoc
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) ([]schema.RetrievedDoc, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestHybridRetrieval_MergesWeightedScores(t *testing.T) {
	catalog := &fakeSearcher{results: []schema.RetrievedDoc{
		{Name: "runway", Text: "video generation", Score: 0.8},
		{Name: "pika", Text: "video generation", Score: 0.6},
	}}
	updates := &fakeSearcher{results: []schema.RetrievedDoc{
		{Name: "note", Text: "recent pricing change", Score: 0.5},
	}}

	h := NewHybridRetrieval(catalog, updates)
	res, err := h.Execute(context.Background(), map[string]any{"query": "make a video"})
	require.NoError(t, err)
	require.Len(t, res.Docs, 2)

	// final = catalog*0.7 + updates*0.3
	assert.InDelta(t, 0.8*0.7+0.5*0.3, res.Docs[0].Score, 1e-9)
	assert.Equal(t, "runway", res.Docs[0].Name)
	assert.InDelta(t, 0.6*0.7+0.5*0.3, res.Docs[1].Score, 1e-9)
}

func TestHybridRetrieval_NoUpdatesSource(t *testing.T) {
	catalog := &fakeSearcher{results: []schema.RetrievedDoc{
		{Name: "tool-a", Score: 1.0},
	}}

	h := NewHybridRetrieval(catalog, nil)
	res, err := h.Execute(context.Background(), map[string]any{"query": "anything"})
	require.NoError(t, err)
	require.Len(t, res.Docs, 1)
	assert.InDelta(t, 0.7, res.Docs[0].Score, 1e-9)
}

func TestHybridRetrieval_UpdatesFailureDegrades(t *testing.T) {
	catalog := &fakeSearcher{results: []schema.RetrievedDoc{{Name: "tool-a", Score: 0.9}}}
	updates := &fakeSearcher{err: errors.New("updates index offline")}

	h := NewHybridRetrieval(catalog, updates)
	res, err := h.Execute(context.Background(), map[string]any{"query": "q"})
	require.NoError(t, err)
	assert.InDelta(t, 0.9*0.7, res.Docs[0].Score, 1e-9)
}

func TestHybridRetrieval_DeterministicTieBreak(t *testing.T) {
	catalog := &fakeSearcher{results: []schema.RetrievedDoc{
		{Name: "zeta", Score: 0.5},
		{Name: "alpha", Score: 0.5},
	}}

	h := NewHybridRetrieval(catalog, nil)
	res, err := h.Execute(context.Background(), map[string]any{"query": "q"})
	require.NoError(t, err)
	require.Len(t, res.Docs, 2)
	assert.Equal(t, "alpha", res.Docs[0].Name)
	assert.Equal(t, "zeta", res.Docs[1].Name)
}

func TestHybridRetrieval_CategoryExtendsQuery(t *testing.T) {
	catalog := &fakeSearcher{}
	h := NewHybridRetrieval(catalog, nil)

	_, err := h.Execute(context.Background(), map[string]any{"query": "edit audio", "category": "audio-generation"})
	require.NoError(t, err)
	require.Len(t, catalog.queries, 1)
	assert.Equal(t, "edit audio audio-generation", catalog.queries[0])
}

func TestHybridRetrieval_CatalogError(t *testing.T) {
	catalog := &fakeSearcher{err: errors.New("catalog offline")}
	h := NewHybridRetrieval(catalog, nil)

	_, err := h.Execute(context.Background(), map[string]any{"query": "q"})
	assert.Error(t, err)
}
