package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/edusuite/sage-gateway/internal/config"
	"github.com/edusuite/sage-gateway/internal/types"
)

// LocalAdapter talks to a llama.cpp-style completion server running next to
// the gateway. It is registered only when the configured weights file exists
// on disk, and serves as the last remote-free rung of the failover ladder.
type LocalAdapter struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
}

func NewLocalAdapter(name string, cfg config.ProviderConfig, client *http.Client) *LocalAdapter {
	return &LocalAdapter{name: name, cfg: cfg, client: client}
}

func (a *LocalAdapter) Name() string { return a.name }

func (a *LocalAdapter) Capabilities() Capabilities {
	return Capabilities{Vision: false, Tools: false, Streaming: false}
}

func (a *LocalAdapter) ListModels(ctx context.Context) ([]string, error) {
	return nil, types.ErrNotSupported
}

func (a *LocalAdapter) Generate(ctx context.Context, req *types.ChatRequest) (*types.ChatReply, error) {
	if (&types.ChatRequest{Messages: req.Messages}).HasAttachments() {
		return nil, types.NewProviderError(types.KindContentFormat, a.name, a.cfg.Model,
			"local adapter does not accept image parts")
	}

	body := map[string]any{
		"prompt":    flattenToPrompt(req.Messages),
		"n_predict": 512,
		"stream":    false,
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		body["n_predict"] = *req.MaxTokens
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, types.WrapProviderError(a.name, a.cfg.Model, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.LocalEndpoint+"/completion", bytes.NewReader(data))
	if err != nil {
		return nil, types.WrapProviderError(a.name, a.cfg.Model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &types.ProviderError{Kind: types.KindTransport, Provider: a.name, Model: a.cfg.Model, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.ProviderError{Kind: types.KindTransport, Provider: a.name, Model: a.cfg.Model, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &types.ProviderError{
			Kind:     types.Classify(resp.StatusCode, string(raw)),
			Provider: a.name,
			Model:    a.cfg.Model,
			Status:   resp.StatusCode,
			Message:  string(raw),
		}
	}

	var out struct {
		Content         string `json:"content"`
		TokensPredicted int    `json:"tokens_predicted"`
		TokensEvaluated int    `json:"tokens_evaluated"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &types.ProviderError{Kind: types.KindTransport, Provider: a.name, Model: a.cfg.Model,
			Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	return &types.ChatReply{
		Text:         out.Content,
		FinishReason: types.FinishStop,
		Model:        a.cfg.Model,
		Usage: types.Usage{
			PromptTokens:     out.TokensEvaluated,
			CompletionTokens: out.TokensPredicted,
			TotalTokens:      out.TokensEvaluated + out.TokensPredicted,
		},
	}, nil
}
