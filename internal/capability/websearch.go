package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/rendis/wayfind/pkg/schema"
)

// webScore is the flat similarity score assigned to live search results,
// which carry no embedding-based score of their own.
const webScore = 0.5

const defaultWebResults = 3

// WebSearch queries a live HTML search endpoint and scrapes the result list.
type WebSearch struct {
	client   *http.Client
	endpoint string
}

// NewWebSearch creates the web search capability. An empty endpoint selects
// the DuckDuckGo HTML frontend.
func NewWebSearch(client *http.Client, endpoint string) *WebSearch {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if endpoint == "" {
		endpoint = "https://html.duckduckgo.com/html/"
	}
	return &WebSearch{client: client, endpoint: endpoint}
}

func (w *WebSearch) Name() string { return "web_search" }

func (w *WebSearch) Description() string {
	return "Search the live web for tools and services not covered by the catalog"
}

func (w *WebSearch) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["query"],
  "properties": {
    "query": { "type": "string", "minLength": 1 },
    "k": { "type": "integer", "minimum": 1, "maximum": 10 }
  },
  "additionalProperties": false
}`)
}

func (w *WebSearch) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	query, _ := args["query"].(string)
	k := defaultWebResults
	if v, ok := args["k"]; ok {
		if f, ok := toFloat(v); ok && f >= 1 {
			k = int(f)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeCapability, "build search request").WithCause(err)
	}
	req.Header.Set("User-Agent", "wayfind/1.0")

	// Transport errors stay unwrapped so the retry layer can classify them.
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, schema.NewErrorf(schema.ErrCodeCapability, "web search returned status %d", resp.StatusCode)
	}

	docs, err := parseResults(resp, k)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(map[string]any{"results": docs})
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeCapability, "marshal search results").WithCause(err)
	}
	return &Result{Data: data, Docs: docs}, nil
}

func parseResults(resp *http.Response, k int) ([]schema.RetrievedDoc, error) {
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeCapability, "parse search response").WithCause(err)
	}

	var docs []schema.RetrievedDoc
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := strings.TrimSpace(s.Find(".result__a").Text())
		href, _ := s.Find(".result__a").Attr("href")
		snippet := strings.TrimSpace(s.Find(".result__snippet").Text())
		if title == "" {
			return true
		}
		docs = append(docs, schema.RetrievedDoc{
			Source: "web",
			Name:   title,
			Text:   snippet,
			URL:    resolveRedirect(href),
			Score:  webScore,
		})
		return len(docs) < k
	})
	return docs, nil
}

// resolveRedirect unwraps the uddg redirect parameter the HTML frontend uses.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
	}
	if u.IsAbs() {
		return u.String()
	}
	return fmt.Sprintf("https:%s", href)
}
