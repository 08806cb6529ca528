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

// OpenAIAdapter speaks the OpenAI Chat Completions wire format. It also
// serves Groq, DeepSeek and Mistral, which expose OpenAI-compatible APIs
// behind their own base URLs.
type OpenAIAdapter struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
}

func NewOpenAIAdapter(name string, cfg config.ProviderConfig, client *http.Client) *OpenAIAdapter {
	return &OpenAIAdapter{name: name, cfg: cfg, client: client}
}

func (a *OpenAIAdapter) Name() string { return a.name }

func (a *OpenAIAdapter) Capabilities() Capabilities {
	return Capabilities{
		Vision:    a.cfg.SupportsVision,
		Tools:     true,
		Streaming: a.cfg.SupportsStreaming,
	}
}

func (a *OpenAIAdapter) Generate(ctx context.Context, req *types.ChatRequest) (*types.ChatReply, error) {
	body := openAIRequestBody{
		Model:       req.Model,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, types.WrapProviderError(a.name, req.Model, fmt.Errorf("marshal request: %w", err))
	}

	url := a.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, types.WrapProviderError(a.name, req.Model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
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
		return nil, classifyHTTP(a.name, req.Model, resp.StatusCode, raw)
	}

	var oai openAIResponseBody
	if err := json.Unmarshal(raw, &oai); err != nil {
		return nil, &types.ProviderError{Kind: types.KindTransport, Provider: a.name, Model: req.Model,
			Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	if len(oai.Choices) == 0 {
		return nil, types.NewProviderError(types.KindUnknown, a.name, req.Model, "response contained no choices")
	}

	choice := oai.Choices[0]
	return &types.ChatReply{
		Text:         choice.Message.Content,
		FinishReason: mapOpenAIFinish(choice.FinishReason),
		Model:        oai.Model,
		Usage: types.Usage{
			PromptTokens:     oai.Usage.PromptTokens,
			CompletionTokens: oai.Usage.CompletionTokens,
			TotalTokens:      oai.Usage.TotalTokens,
		},
	}, nil
}

func (a *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	if a.cfg.DiscoveryPath == "" {
		return nil, types.ErrNotSupported
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+a.cfg.DiscoveryPath, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &types.ProviderError{Kind: types.KindTransport, Provider: a.name, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.ProviderError{Kind: types.KindTransport, Provider: a.name, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTP(a.name, "", resp.StatusCode, raw)
	}

	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("unmarshal model list: %w", err)
	}

	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

// toOpenAIMessages converts canonical messages. Image parts become data-URI
// image_url blocks on a mixed-content message.
func toOpenAIMessages(messages []types.Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		if len(m.Parts) == 0 {
			out = append(out, openAIMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := []map[string]any{}
		if m.Content != "" {
			parts = append(parts, map[string]any{"type": "text", "text": m.Content})
		}
		for _, p := range m.Parts {
			parts = append(parts, map[string]any{
				"type": "image_url",
				"image_url": map[string]string{
					"url": "data:" + p.MimeType + ";base64," + p.Data,
				},
			})
		}
		out = append(out, openAIMessage{Role: m.Role, Content: parts})
	}
	return out
}

func mapOpenAIFinish(reason string) string {
	switch reason {
	case "stop":
		return types.FinishStop
	case "length":
		return types.FinishLength
	case "content_filter":
		return types.FinishSafety
	case "tool_calls", "function_call":
		return types.FinishToolCall
	default:
		return reason
	}
}

// classifyHTTP maps a vendor error response to the taxonomy. The message is
// pulled from the OpenAI-style error envelope when present, falling back to
// the raw body.
func classifyHTTP(provider, model string, status int, body []byte) *types.ProviderError {
	message := string(body)
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
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

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIRequestBody struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
}

type openAIResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
