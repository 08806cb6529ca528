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

// AnthropicAdapter speaks the Anthropic Messages API.
type AnthropicAdapter struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
}

func NewAnthropicAdapter(name string, cfg config.ProviderConfig, client *http.Client) *AnthropicAdapter {
	return &AnthropicAdapter{name: name, cfg: cfg, client: client}
}

func (a *AnthropicAdapter) Name() string { return a.name }

func (a *AnthropicAdapter) Capabilities() Capabilities {
	return Capabilities{Vision: true, Tools: true, Streaming: a.cfg.SupportsStreaming}
}

func (a *AnthropicAdapter) ListModels(ctx context.Context) ([]string, error) {
	return nil, types.ErrNotSupported
}

func (a *AnthropicAdapter) Generate(ctx context.Context, req *types.ChatRequest) (*types.ChatReply, error) {
	// System turns go into the dedicated system field; image parts become
	// base64 source blocks on mixed-content messages.
	var system string
	var messages []anthropicMessage
	for _, m := range req.Messages {
		if m.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		if len(m.Parts) == 0 {
			messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
			continue
		}
		blocks := []map[string]any{}
		for _, p := range m.Parts {
			blocks = append(blocks, map[string]any{
				"type": "image",
				"source": map[string]string{
					"type":       "base64",
					"media_type": p.MimeType,
					"data":       p.Data,
				},
			})
		}
		if m.Content != "" {
			blocks = append(blocks, map[string]any{"type": "text", "text": m.Content})
		}
		messages = append(messages, anthropicMessage{Role: m.Role, Content: blocks})
	}

	// The Messages API requires max_tokens.
	maxTokens := 4096
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	body := anthropicRequestBody{
		Model:       req.Model,
		Messages:    messages,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, types.WrapProviderError(a.name, req.Model, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, types.WrapProviderError(a.name, req.Model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.cfg.APIKey)
	for k, v := range a.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

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
		return nil, classifyAnthropicError(a.name, req.Model, resp.StatusCode, raw)
	}

	var ant anthropicResponseBody
	if err := json.Unmarshal(raw, &ant); err != nil {
		return nil, &types.ProviderError{Kind: types.KindTransport, Provider: a.name, Model: req.Model,
			Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	var content string
	for _, block := range ant.Content {
		if block.Type == "text" {
			content = block.Text
			break
		}
	}

	if ant.StopReason == "refusal" {
		return nil, types.NewProviderError(types.KindSafetyBlock, a.name, req.Model, "model refused the request")
	}

	return &types.ChatReply{
		Text:         content,
		FinishReason: mapAnthropicStop(ant.StopReason),
		Model:        ant.Model,
		Usage: types.Usage{
			PromptTokens:     ant.Usage.InputTokens,
			CompletionTokens: ant.Usage.OutputTokens,
			TotalTokens:      ant.Usage.InputTokens + ant.Usage.OutputTokens,
		},
	}, nil
}

func classifyAnthropicError(provider, model string, status int, body []byte) *types.ProviderError {
	message := string(body)
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}
	return &types.ProviderError{
		Kind:     types.Classify(status, message),
		Provider: provider,
		Model:    model,
		Status:   status,
		Message:  message,
	}
}

func mapAnthropicStop(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return types.FinishStop
	case "max_tokens":
		return types.FinishLength
	case "tool_use":
		return types.FinishToolCall
	default:
		return reason
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicRequestBody struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
