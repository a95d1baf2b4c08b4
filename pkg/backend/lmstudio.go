package backend

import "context"

// lmStudioBackend speaks the generate flavor: POST /api/generate.
type lmStudioBackend struct {
	*endpoint
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

func (b *lmStudioBackend) Classify(ctx context.Context, prompt string) (string, error) {
	data, err := b.postJSON(ctx, "/api/generate", generateRequest{Prompt: prompt, Model: b.model})
	if err != nil {
		return "", err
	}
	return firstText(generateTextQuery, data), nil
}
