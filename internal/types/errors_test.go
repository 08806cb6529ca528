package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify_StatusCodesWin(t *testing.T) {
	tests := []struct {
		status  int
		message string
		want    ErrorKind
	}{
		{401, "whatever", KindAuth},
		{403, "forbidden", KindAuth},
		{429, "slow down", KindRateLimit},
		{404, "nope", KindModelNotFound},
		{500, "internal", KindUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.status, tt.message); got != tt.want {
			t.Errorf("Classify(%d, %q) = %s, want %s", tt.status, tt.message, got, tt.want)
		}
	}
}

func TestClassifyMessage_SubstringTable(t *testing.T) {
	tests := []struct {
		message string
		want    ErrorKind
	}{
		{"Incorrect API key provided", KindAuth},
		{"authentication failed", KindAuth},
		{"You exceeded your current quota", KindRateLimit},
		{"rate_limit_exceeded", KindRateLimit},
		{"The model `gpt-9` does not exist", KindModelNotFound},
		{"404 no such model", KindModelNotFound},
		{"response blocked by safety settings", KindSafetyBlock},
		{"flagged by content policy", KindSafetyBlock},
		{"context deadline exceeded", KindTransport},
		{"connection refused", KindTransport},
		{"unexpected EOF", KindTransport},
		{"something strange happened", KindUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyMessage(tt.message); got != tt.want {
			t.Errorf("ClassifyMessage(%q) = %s, want %s", tt.message, got, tt.want)
		}
	}
}

func TestKindOf_UnwrapsProviderError(t *testing.T) {
	base := NewProviderError(KindSafetyBlock, "gemini", "gemini-2.0-flash", "blocked")
	wrapped := fmt.Errorf("attempt failed: %w", base)

	if got := KindOf(wrapped); got != KindSafetyBlock {
		t.Errorf("KindOf(wrapped) = %s, want %s", got, KindSafetyBlock)
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if got := KindOf(errors.New("dial tcp: connection refused")); got != KindTransport {
		t.Errorf("expected KindTransport, got %s", got)
	}
}

func TestAIRequest_Validate(t *testing.T) {
	empty := &AIRequest{}
	if err := empty.Validate(); err == nil {
		t.Error("expected error for empty request")
	}

	withMsg := &AIRequest{Message: "hi"}
	if err := withMsg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	withImage := &AIRequest{Attachments: []Attachment{{MimeType: "image/png", Data: "aGk="}}}
	if err := withImage.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAIRequest_WantsRAG(t *testing.T) {
	off := false
	tests := []struct {
		name string
		req  AIRequest
		want bool
	}{
		{"known user defaults on", AIRequest{UserID: "u1"}, true},
		{"anonymous defaults off", AIRequest{}, false},
		{"explicit override wins", AIRequest{UserID: "u1", RAGEnabled: &off}, false},
	}
	for _, tt := range tests {
		if got := tt.req.WantsRAG(); got != tt.want {
			t.Errorf("%s: WantsRAG() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
