package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rendis/wayfind/pkg/schema"
)

// CatalogEntry is one tool record in the static catalog file.
type CatalogEntry struct {
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Description  string   `json:"description"`
	Features     []string `json:"features,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Pricing      string   `json:"pricing,omitempty"`
	MonthlyPrice float64  `json:"monthly_price,omitempty"`
	URL          string   `json:"url,omitempty"`
	UpdatedAt    string   `json:"updated_at,omitempty"`
}

type catalogFile struct {
	Tools []CatalogEntry `json:"tools"`
}

// FileCatalog is a Searcher over a static JSON tool catalog. Scoring is
// token overlap between the query and the entry's indexed text, normalized
// by query length. It trades recall for zero external dependencies and is
// good enough for a catalog of hundreds of entries.
type FileCatalog struct {
	entries []CatalogEntry
	index   []map[string]struct{}
}

// NewFileCatalog loads a catalog from a JSON file.
func NewFileCatalog(path string) (*FileCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "catalog file %q unreadable", path).WithCause(err)
	}
	return ParseCatalog(data)
}

// ParseCatalog builds a catalog from raw JSON bytes.
func ParseCatalog(data []byte) (*FileCatalog, error) {
	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "catalog file is not valid JSON").WithCause(err)
	}

	c := &FileCatalog{entries: file.Tools}
	for _, e := range file.Tools {
		text := strings.Join([]string{
			e.Name, e.Category, e.Description,
			strings.Join(e.Features, " "), strings.Join(e.Tags, " "),
		}, " ")
		c.index = append(c.index, tokenize(text))
	}
	return c, nil
}

// Len returns the number of catalog entries.
func (c *FileCatalog) Len() int { return len(c.entries) }

// Search ranks entries by query-token overlap, descending, name ascending
// on ties.
func (c *FileCatalog) Search(_ context.Context, query string, k int) ([]schema.RetrievedDoc, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	docs := make([]schema.RetrievedDoc, 0, len(c.entries))
	for i, e := range c.entries {
		hits := 0
		for term := range terms {
			if _, ok := c.index[i][term]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		docs = append(docs, schema.RetrievedDoc{
			Source: "catalog",
			Name:   e.Name,
			Text:   entryText(e),
			URL:    e.URL,
			Score:  float64(hits) / float64(len(terms)),
		})
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].Name < docs[j].Name
	})
	if k > 0 && len(docs) > k {
		docs = docs[:k]
	}
	return docs, nil
}

func entryText(e CatalogEntry) string {
	parts := []string{e.Description}
	if e.Category != "" {
		parts = append(parts, "category: "+e.Category)
	}
	if e.Pricing != "" {
		parts = append(parts, "pricing: "+e.Pricing)
	}
	if e.MonthlyPrice > 0 {
		parts = append(parts, fmt.Sprintf("monthly price: %.2f", e.MonthlyPrice))
	}
	if e.UpdatedAt != "" {
		parts = append(parts, "updated: "+e.UpdatedAt)
	}
	return strings.Join(parts, ". ")
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(field) < 2 {
			continue
		}
		tokens[field] = struct{}{}
	}
	return tokens
}
