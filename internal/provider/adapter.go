package provider

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/edusuite/sage-gateway/internal/config"
	"github.com/edusuite/sage-gateway/internal/types"
)

// Capabilities describes what a backend can do.
type Capabilities struct {
	Vision    bool
	Tools     bool
	Streaming bool
}

// Adapter translates the canonical ChatRequest into one vendor's API call and
// normalizes the result. Adapters never retry; escalation belongs to the
// failover orchestrator. Errors returned by Generate are always classified
// *types.ProviderError values.
type Adapter interface {
	Name() string
	Generate(ctx context.Context, req *types.ChatRequest) (*types.ChatReply, error)
	// ListModels returns the provider's available model identifiers.
	// Adapters without a discovery endpoint return types.ErrNotSupported.
	ListModels(ctx context.Context) ([]string, error)
	Capabilities() Capabilities
}

// Registry manages provider adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

func (r *Registry) Register(name string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = adapter
}

func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// FirstVision returns the first vision-capable adapter in the given order.
func (r *Registry) FirstVision(order []string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range order {
		if a, ok := r.adapters[name]; ok && a.Capabilities().Vision {
			return a, true
		}
	}
	return nil, false
}

// BuildFromConfig builds provider adapters from the providers config.
// Providers without an API key are skipped; the local adapter is registered
// only when its model file exists on disk.
func BuildFromConfig(provCfg *config.ProvidersConfig) *Registry {
	registry := NewRegistry()
	for name, cfg := range provCfg.Providers {
		if cfg.Type == "local" {
			if cfg.LocalModelPath == "" {
				continue
			}
			if _, err := os.Stat(cfg.LocalModelPath); err != nil {
				continue
			}
			registry.Register(name, NewLocalAdapter(name, cfg, newHTTPClient(cfg)))
			continue
		}

		if cfg.APIKey == "" {
			continue
		}

		client := newHTTPClient(cfg)
		var adapter Adapter
		switch cfg.Type {
		case "gemini":
			adapter = NewGeminiAdapter(name, cfg, client)
		case "anthropic":
			adapter = NewAnthropicAdapter(name, cfg, client)
		case "huggingface":
			adapter = NewHuggingFaceAdapter(name, cfg, client)
		default:
			// OpenAI-compatible: openai, groq, deepseek, mistral
			adapter = NewOpenAIAdapter(name, cfg, client)
		}
		registry.Register(name, adapter)
	}
	return registry
}

func newHTTPClient(cfg config.ProviderConfig) *http.Client {
	maxConns := cfg.MaxConcurrent
	if maxConns == 0 {
		maxConns = 16
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        maxConns,
			MaxIdleConnsPerHost: maxConns,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}
