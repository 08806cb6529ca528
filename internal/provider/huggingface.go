package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/edusuite/sage-gateway/internal/config"
	"github.com/edusuite/sage-gateway/internal/types"
)

// HuggingFaceAdapter calls the HuggingFace Inference API for text-generation
// models. Text only; no discovery endpoint.
type HuggingFaceAdapter struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
}

func NewHuggingFaceAdapter(name string, cfg config.ProviderConfig, client *http.Client) *HuggingFaceAdapter {
	return &HuggingFaceAdapter{name: name, cfg: cfg, client: client}
}

type hfRequestBody struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	Temperature    *float64 `json:"temperature,omitempty"`
	MaxNewTokens   *int     `json:"max_new_tokens,omitempty"`
	ReturnFullText bool     `json:"return_full_text"`
}

func (a *HuggingFaceAdapter) Name() string { return a.name }

func (a *HuggingFaceAdapter) Capabilities() Capabilities {
	return Capabilities{Vision: false, Tools: false, Streaming: false}
}

func (a *HuggingFaceAdapter) ListModels(ctx context.Context) ([]string, error) {
	return nil, types.ErrNotSupported
}

func (a *HuggingFaceAdapter) Generate(ctx context.Context, req *types.ChatRequest) (*types.ChatReply, error) {
	if (&types.ChatRequest{Messages: req.Messages}).HasAttachments() {
		return nil, types.NewProviderError(types.KindContentFormat, a.name, req.Model,
			"huggingface adapter does not accept image parts")
	}

	body := hfRequestBody{
		Inputs: flattenToPrompt(req.Messages),
		Parameters: hfParameters{
			Temperature:    req.Temperature,
			MaxNewTokens:   req.MaxTokens,
			ReturnFullText: false,
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, types.WrapProviderError(a.name, req.Model, fmt.Errorf("marshal request: %w", err))
	}

	url := a.cfg.BaseURL + "/models/" + req.Model
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, types.WrapProviderError(a.name, req.Model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &types.ProviderError{Kind: types.KindTransport, Provider: a.name, Model: req.Model, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.ProviderError{Kind: types.KindTransport, Provider: a.name, Model: req.Model, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		message := string(raw)
		var envelope struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
			message = envelope.Error
		}
		return nil, &types.ProviderError{
			Kind:     types.Classify(resp.StatusCode, message),
			Provider: a.name,
			Model:    req.Model,
			Status:   resp.StatusCode,
			Message:  message,
		}
	}

	var out []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &types.ProviderError{Kind: types.KindTransport, Provider: a.name, Model: req.Model,
			Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if len(out) == 0 {
		return nil, types.NewProviderError(types.KindUnknown, a.name, req.Model, "empty generation result")
	}

	return &types.ChatReply{
		Text:         out[0].GeneratedText,
		FinishReason: types.FinishStop,
		Model:        req.Model,
	}, nil
}

// flattenToPrompt renders the conversation as a plain chat transcript for
// completion-style backends.
func flattenToPrompt(messages []types.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "system":
			b.WriteString(m.Content)
			b.WriteString("\n\n")
		case "assistant":
			b.WriteString("Assistant: ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		default:
			b.WriteString("User: ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
	b.WriteString("Assistant:")
	return b.String()
}
