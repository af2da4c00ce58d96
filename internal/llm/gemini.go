package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

const geminiDefaultModel = "gemini-2.0-flash"

type geminiCompleter struct {
	client *genai.Client
	model  string
}

func newGemini(ctx context.Context, cfg Config) (*geminiCompleter, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client init: %w", err)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = geminiDefaultModel
	}
	return &geminiCompleter{client: client, model: model}, nil
}

func (g *geminiCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	if g.client == nil {
		return nil, ErrNotConfigured
	}

	var cfg *genai.GenerateContentConfig
	if req.ForceJSON || len(req.Capabilities) > 0 {
		cfg = &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
		if req.Schema != nil {
			cfg.ResponseJsonSchema = req.Schema
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(renderPrompt(req)), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini: empty response")
	}
	return finish(req, resp.Candidates[0].Content.Parts[0].Text)
}
