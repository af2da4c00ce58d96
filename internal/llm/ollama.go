package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const ollamaDefaultModel = "qwen2.5:7b"

type ollamaCompleter struct {
	client *api.Client
	model  string
}

func newOllama(cfg Config) (*ollamaCompleter, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		host := cfg.OllamaHost
		if host == "" {
			host = "http://localhost:11434"
		}
		u, uerr := url.Parse(host)
		if uerr != nil {
			return nil, fmt.Errorf("ollama: bad host %q: %w", host, uerr)
		}
		client = api.NewClient(u, nil)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = ollamaDefaultModel
	}
	return &ollamaCompleter{client: client, model: model}, nil
}

func (o *ollamaCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	if o.client == nil {
		return nil, ErrNotConfigured
	}

	prompt := renderPrompt(req)
	var format json.RawMessage
	if req.ForceJSON || len(req.Capabilities) > 0 {
		if req.Schema != nil {
			b, err := json.Marshal(req.Schema)
			if err != nil {
				return nil, fmt.Errorf("ollama marshal schema: %w", err)
			}
			format = b
		} else {
			format = json.RawMessage(`"json"`)
		}
		prompt += "\n\nReturn ONLY strict JSON. No extra text."
	}

	stream := false
	genReq := &api.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Format: format,
		Stream: &stream,
	}
	var out strings.Builder
	if err := o.client.Generate(ctx, genReq, func(gr api.GenerateResponse) error {
		out.WriteString(gr.Response)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("ollama generate: %w", err)
	}
	return finish(req, out.String())
}
