package backend

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// defaultOllamaModel is used when /v1/models yields nothing usable.
const defaultOllamaModel = "ollama"

// ollamaBackend speaks the completions flavor: GET /v1/models, POST /v1/completions.
type ollamaBackend struct {
	*endpoint

	mu            sync.Mutex
	resolvedModel string
}

type completionsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

func (b *ollamaBackend) Classify(ctx context.Context, prompt string) (string, error) {
	body := completionsRequest{
		Model: b.modelName(ctx),
		Input: prompt,
	}
	data, err := b.postJSON(ctx, "/v1/completions", body)
	if err != nil {
		return "", err
	}
	if text := firstText(completionsTextQuery, data); text != "" {
		return text, nil
	}
	// Unknown shape: hand the raw body to the extractor.
	return strings.TrimSpace(string(data)), nil
}

// modelName returns the pinned model, or the first model the server lists.
// A successful lookup is remembered; failures fall back to the default name.
func (b *ollamaBackend) modelName(ctx context.Context) string {
	if b.model != "" {
		return b.model
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.resolvedModel != "" {
		return b.resolvedModel
	}

	data, err := b.get(ctx, "/v1/models")
	if err != nil {
		slog.Debug("model lookup failed, using default",
			slog.String("backend", b.baseURL),
			slog.String("error", err.Error()),
		)
		return defaultOllamaModel
	}
	name := firstText(modelNameQuery, data)
	if name == "" {
		return defaultOllamaModel
	}
	b.resolvedModel = name
	return name
}
