package memory

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Embedder turns text into a vector for storage and search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GenAIEmbedder embeds with the Gemini embedding models.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
}

func NewGenAIEmbedder(ctx context.Context, apiKey, model string) (*GenAIEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GenAIEmbedder{client: client, model: model}, nil
}

func NewGenAIEmbedderFromClient(c *genai.Client, model string) *GenAIEmbedder {
	return &GenAIEmbedder{client: c, model: model}
}

func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) == 0 || len(res.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("embed %q: empty embedding response", e.model)
	}
	return res.Embeddings[0].Values, nil
}
