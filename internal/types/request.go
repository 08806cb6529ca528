package types

import "time"

// Mode names an expert prompt preamble selected by intent detection.
type Mode string

const (
	ModeGeneral     Mode = "general"
	ModeDebug       Mode = "debug"
	ModeCodeReview  Mode = "code_review"
	ModeProduction  Mode = "production"
	ModeSecurity    Mode = "security"
	ModePerformance Mode = "performance"
	ModeLearning    Mode = "learning"
)

// Attachment is one inbound image, base64-encoded.
type Attachment struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// AIRequest is an inbound call into the gateway facade.
type AIRequest struct {
	// Identity (set by auth middleware)
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`

	// Request content
	Message        string       `json:"message"`
	Attachments    []Attachment `json:"images,omitempty"`
	ConversationID *int64       `json:"conversation_id,omitempty"`
	Provider       string       `json:"provider,omitempty"`
	Model          string       `json:"model,omitempty"`
	ModeHint       Mode         `json:"mode,omitempty"`
	ToolsEnabled   bool         `json:"tools_enabled,omitempty"`
	RAGEnabled     *bool        `json:"rag_enabled,omitempty"`

	// Internal tracking
	ReceivedAt time.Time `json:"-"`
}

// WantsRAG reports whether live user data should be injected. Defaults to
// true whenever the user is known.
func (r *AIRequest) WantsRAG() bool {
	if r.RAGEnabled != nil {
		return *r.RAGEnabled
	}
	return r.UserID != ""
}

// Validate checks the request invariant: message and attachments must not
// both be empty.
func (r *AIRequest) Validate() error {
	if r.Message == "" && len(r.Attachments) == 0 {
		return ErrEmptyRequest
	}
	return nil
}

// Message is one turn in the conversation vector handed to provider adapters.
// Parts carries image attachments on the final user turn for vision-capable
// providers; text-only providers must never receive a message with parts.
type Message struct {
	Role    string       `json:"role"`
	Content string       `json:"content"`
	Parts   []Attachment `json:"parts,omitempty"`
}

// ChatRequest is the canonical, provider-neutral form of a single model call.
// All provider-specific wire formats are produced from this type.
type ChatRequest struct {
	Messages    []Message         `json:"messages"`
	Model       string            `json:"model"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   *int              `json:"max_tokens,omitempty"`
	Safety      map[string]string `json:"safety_settings,omitempty"`
}

// HasAttachments reports whether any message carries image parts.
func (c *ChatRequest) HasAttachments() bool {
	for _, m := range c.Messages {
		if len(m.Parts) > 0 {
			return true
		}
	}
	return false
}
