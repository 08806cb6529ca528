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

// GeminiAdapter speaks the Google generative-language REST API.
type GeminiAdapter struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
}

func NewGeminiAdapter(name string, cfg config.ProviderConfig, client *http.Client) *GeminiAdapter {
	return &GeminiAdapter{name: name, cfg: cfg, client: client}
}

func (a *GeminiAdapter) Name() string { return a.name }

func (a *GeminiAdapter) Capabilities() Capabilities {
	return Capabilities{Vision: true, Tools: true, Streaming: a.cfg.SupportsStreaming}
}

func (a *GeminiAdapter) Generate(ctx context.Context, req *types.ChatRequest) (*types.ChatReply, error) {
	body := geminiRequestBody{}

	// Gemini takes system text out of band and knows only user/model roles.
	var systemParts []geminiPart
	for _, m := range req.Messages {
		if m.Role == "system" {
			systemParts = append(systemParts, geminiPart{Text: m.Content})
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		content := geminiContent{Role: role}
		if m.Content != "" {
			content.Parts = append(content.Parts, geminiPart{Text: m.Content})
		}
		for _, p := range m.Parts {
			content.Parts = append(content.Parts, geminiPart{
				InlineData: &geminiInlineData{MimeType: p.MimeType, Data: p.Data},
			})
		}
		body.Contents = append(body.Contents, content)
	}
	if len(systemParts) > 0 {
		body.SystemInstruction = &geminiContent{Parts: systemParts}
	}

	if req.Temperature != nil || req.MaxTokens != nil {
		body.GenerationConfig = &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}

	safety := req.Safety
	if safety == nil {
		safety = a.cfg.Safety
	}
	for category, threshold := range safety {
		body.SafetySettings = append(body.SafetySettings, geminiSafetySetting{
			Category:  category,
			Threshold: threshold,
		})
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, types.WrapProviderError(a.name, req.Model, fmt.Errorf("marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.cfg.BaseURL, req.Model, a.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, types.WrapProviderError(a.name, req.Model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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
		return nil, classifyGeminiError(a.name, req.Model, resp.StatusCode, raw)
	}

	var gr geminiResponseBody
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, &types.ProviderError{Kind: types.KindTransport, Provider: a.name, Model: req.Model,
			Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	// A prompt-level block carries no candidates at all.
	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		return nil, types.NewProviderError(types.KindSafetyBlock, a.name, req.Model,
			"prompt blocked: "+gr.PromptFeedback.BlockReason)
	}
	if len(gr.Candidates) == 0 {
		return nil, types.NewProviderError(types.KindUnknown, a.name, req.Model, "response contained no candidates")
	}

	cand := gr.Candidates[0]
	if cand.FinishReason == "SAFETY" {
		return nil, types.NewProviderError(types.KindSafetyBlock, a.name, req.Model, "candidate blocked by safety settings")
	}

	var text strings.Builder
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}

	reply := &types.ChatReply{
		Text:         text.String(),
		FinishReason: mapGeminiFinish(cand.FinishReason),
		Model:        req.Model,
	}
	if gr.UsageMetadata != nil {
		reply.Usage = types.Usage{
			PromptTokens:     gr.UsageMetadata.PromptTokenCount,
			CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gr.UsageMetadata.TotalTokenCount,
		}
	}
	return reply, nil
}

func (a *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/models?key=%s", a.cfg.BaseURL, a.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

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
		return nil, classifyGeminiError(a.name, "", resp.StatusCode, raw)
	}

	var list struct {
		Models []struct {
			Name                       string   `json:"name"`
			SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
		} `json:"models"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("unmarshal model list: %w", err)
	}

	var models []string
	for _, m := range list.Models {
		chatCapable := false
		for _, method := range m.SupportedGenerationMethods {
			if method == "generateContent" {
				chatCapable = true
				break
			}
		}
		if !chatCapable {
			continue
		}
		// The API returns fully qualified names like "models/gemini-2.0-flash".
		models = append(models, strings.TrimPrefix(m.Name, "models/"))
	}
	return models, nil
}

func classifyGeminiError(provider, model string, status int, body []byte) *types.ProviderError {
	message := string(body)
	var envelope struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
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

func mapGeminiFinish(reason string) string {
	switch reason {
	case "STOP":
		return types.FinishStop
	case "MAX_TOKENS":
		return types.FinishLength
	case "SAFETY":
		return types.FinishSafety
	default:
		return types.FinishStop
	}
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequestBody struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SafetySettings    []geminiSafetySetting   `json:"safetySettings,omitempty"`
}

type geminiResponseBody struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}
