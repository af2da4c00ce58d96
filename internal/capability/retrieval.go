package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rendis/wayfind/pkg/schema"
)

// Searcher is the retrieval collaborator boundary: a similarity-scored lookup
// over one knowledge source. Implementations are provided externally.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]schema.RetrievedDoc, error)
}

// Weights for merging the two retrieval stages. The static catalog dominates,
// the recent-updates source adjusts for freshness.
const (
	catalogWeight = 0.7
	updatesWeight = 0.3
)

const defaultCandidates = 5

// HybridRetrieval queries a static structured catalog and an unstructured
// recent-updates source, merging per-candidate scores into one ranked list.
type HybridRetrieval struct {
	catalog Searcher
	updates Searcher
}

// NewHybridRetrieval creates the hybrid retrieval capability. The updates
// source is optional; without it the catalog score stands alone.
func NewHybridRetrieval(catalog, updates Searcher) *HybridRetrieval {
	return &HybridRetrieval{catalog: catalog, updates: updates}
}

func (h *HybridRetrieval) Name() string { return "hybrid_retrieval" }

func (h *HybridRetrieval) Description() string {
	return "Search the tool catalog and recent-update notes for candidate tools matching a task, ranked by merged similarity score"
}

func (h *HybridRetrieval) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["query"],
  "properties": {
    "query": { "type": "string", "minLength": 1 },
    "category": { "type": "string" },
    "k": { "type": "integer", "minimum": 1, "maximum": 10 }
  },
  "additionalProperties": false
}`)
}

func (h *HybridRetrieval) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	query, _ := args["query"].(string)
	k := defaultCandidates
	if v, ok := args["k"]; ok {
		if f, ok := toFloat(v); ok && f >= 1 {
			k = int(f)
		}
	}
	if category, _ := args["category"].(string); category != "" {
		query = query + " " + category
	}

	// Backend errors stay unwrapped so the retry layer can classify them.
	candidates, err := h.catalog.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}

	ranked := make([]schema.RetrievedDoc, 0, len(candidates))
	for _, doc := range candidates {
		final := doc.Score * catalogWeight
		if h.updates != nil {
			final += h.updatesScore(ctx, doc) * updatesWeight
		}
		doc.Score = final
		doc.Source = "catalog"
		ranked = append(ranked, doc)
	}

	// Deterministic ranking: score descending, name ascending on ties.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Name < ranked[j].Name
	})

	data, err := json.Marshal(map[string]any{"results": ranked})
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeCapability, "marshal retrieval results").WithCause(err)
	}
	return &Result{Data: data, Docs: ranked}, nil
}

// updatesScore returns the best recent-updates relevance for one candidate.
// An updates-source failure degrades to zero rather than failing retrieval.
func (h *HybridRetrieval) updatesScore(ctx context.Context, doc schema.RetrievedDoc) float64 {
	hits, err := h.updates.Search(ctx, doc.Name, 3)
	if err != nil || len(hits) == 0 {
		return 0
	}
	best := hits[0].Score
	for _, hit := range hits[1:] {
		if hit.Score > best {
			best = hit.Score
		}
	}
	return best
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
