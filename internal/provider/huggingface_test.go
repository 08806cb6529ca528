package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edusuite/sage-gateway/internal/config"
	"github.com/edusuite/sage-gateway/internal/types"
)

func hfTestCfg(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		Type:    "huggingface",
		BaseURL: baseURL,
		APIKey:  "hf-test",
		Model:   "mistralai/Mistral-7B-Instruct-v0.3",
		Timeout: 5 * time.Second,
	}
}

func TestHuggingFaceAdapter_Generate(t *testing.T) {
	temp := 0.4
	maxTokens := 512

	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/mistralai/Mistral-7B-Instruct-v0.3" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer hf-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"generated_text":"Photosynthesis converts light into chemical energy."}]`)
	}))
	defer srv.Close()

	a := NewHuggingFaceAdapter("huggingface", hfTestCfg(srv.URL), srv.Client())
	reply, err := a.Generate(context.Background(), &types.ChatRequest{
		Model:       "mistralai/Mistral-7B-Instruct-v0.3",
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Messages: []types.Message{
			{Role: "system", Content: "You are a science tutor."},
			{Role: "user", Content: "Explain photosynthesis."},
		},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.HasPrefix(reply.Text, "Photosynthesis") {
		t.Errorf("unexpected reply text %q", reply.Text)
	}
	if reply.FinishReason != types.FinishStop {
		t.Errorf("expected finish stop, got %s", reply.FinishReason)
	}

	var sent hfRequestBody
	if err := json.Unmarshal(gotBody, &sent); err != nil {
		t.Fatalf("unmarshal sent body: %v", err)
	}
	if !strings.Contains(sent.Inputs, "You are a science tutor.") {
		t.Errorf("expected system text in prompt, got %q", sent.Inputs)
	}
	if !strings.HasSuffix(sent.Inputs, "Assistant:") {
		t.Errorf("expected prompt to end with assistant cue, got %q", sent.Inputs)
	}
	if sent.Parameters.Temperature == nil || *sent.Parameters.Temperature != 0.4 {
		t.Errorf("expected temperature 0.4, got %v", sent.Parameters.Temperature)
	}
	if sent.Parameters.MaxNewTokens == nil || *sent.Parameters.MaxNewTokens != 512 {
		t.Errorf("expected max_new_tokens 512, got %v", sent.Parameters.MaxNewTokens)
	}
	if sent.Parameters.ReturnFullText {
		t.Error("expected return_full_text false")
	}
	if !strings.Contains(string(gotBody), `"return_full_text":false`) {
		t.Errorf("expected return_full_text on the wire, got %s", gotBody)
	}
}

func TestHuggingFaceAdapter_RejectsImageParts(t *testing.T) {
	a := NewHuggingFaceAdapter("huggingface", hfTestCfg("http://unused"), http.DefaultClient)
	_, err := a.Generate(context.Background(), &types.ChatRequest{
		Model: "mistralai/Mistral-7B-Instruct-v0.3",
		Messages: []types.Message{{
			Role:    "user",
			Content: "Describe",
			Parts:   []types.Attachment{{MimeType: "image/png", Data: "aGVsbG8="}},
		}},
	})
	if types.KindOf(err) != types.KindContentFormat {
		t.Errorf("expected content format error, got %v", err)
	}
}

func TestHuggingFaceAdapter_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":"Rate limit reached. Please log in or use your apiToken"}`)
	}))
	defer srv.Close()

	a := NewHuggingFaceAdapter("huggingface", hfTestCfg(srv.URL), srv.Client())
	_, err := a.Generate(context.Background(), &types.ChatRequest{
		Model:    "mistralai/Mistral-7B-Instruct-v0.3",
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *types.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if pe.Kind != types.KindRateLimit {
		t.Errorf("expected rate limit kind, got %s", pe.Kind)
	}
	if !strings.Contains(pe.Message, "Rate limit reached") {
		t.Errorf("expected envelope message surfaced, got %q", pe.Message)
	}
}

func TestHuggingFaceAdapter_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	a := NewHuggingFaceAdapter("huggingface", hfTestCfg(srv.URL), srv.Client())
	_, err := a.Generate(context.Background(), &types.ChatRequest{
		Model:    "mistralai/Mistral-7B-Instruct-v0.3",
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error for empty generation result")
	}
}

func TestHuggingFaceAdapter_NoDiscovery(t *testing.T) {
	a := NewHuggingFaceAdapter("huggingface", hfTestCfg("http://unused"), http.DefaultClient)
	if _, err := a.ListModels(context.Background()); !errors.Is(err, types.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}
