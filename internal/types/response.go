package types

import "encoding/json"

// Finish reasons normalized across providers.
const (
	FinishStop     = "stop"
	FinishSafety   = "safety"
	FinishLength   = "length"
	FinishToolCall = "tool_call"
	FinishError    = "error"
)

// ChatReply is the normalized result of one provider call.
type ChatReply struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
	Model        string `json:"model"`
	Usage        Usage  `json:"usage"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Attempt records one rung of the failover ladder.
type Attempt struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Outcome   string `json:"outcome"`
	LatencyMs int64  `json:"latency_ms"`
}

// ToolInvocation records one executed tool call.
type ToolInvocation struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
	Result    string          `json:"result"`
	LatencyMs int64           `json:"latency_ms"`
}

// AIResponse is the facade's answer to an AIRequest.
type AIResponse struct {
	Text               string           `json:"text"`
	ConversationID     int64            `json:"conversation_id"`
	ProviderUsed       string           `json:"provider_used"`
	ModelUsed          string           `json:"model_used"`
	Attempts           []Attempt        `json:"attempts"`
	ToolInvocations    []ToolInvocation `json:"tool_invocations,omitempty"`
	RAGContextIncluded bool             `json:"rag_context_included"`
	Usage              Usage            `json:"usage"`
}
