package config

import (
	"os"
	"strconv"
	"time"
)

type ProvidersConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig is the static descriptor of one backend.
type ProviderConfig struct {
	Type              string            `yaml:"type"`
	BaseURL           string            `yaml:"base_url"`
	APIKey            string            `yaml:"api_key"`
	Model             string            `yaml:"model"`
	Temperature       *float64          `yaml:"temperature,omitempty"`
	MaxTokens         *int              `yaml:"max_tokens,omitempty"`
	SupportsVision    bool              `yaml:"supports_vision"`
	SupportsStreaming bool              `yaml:"supports_streaming"`
	DiscoveryPath     string            `yaml:"discovery_path,omitempty"`
	PriorityModels    []string          `yaml:"priority_models,omitempty"`
	Safety            map[string]string `yaml:"safety_settings,omitempty"`
	Timeout           time.Duration     `yaml:"timeout"`
	MaxConcurrent     int               `yaml:"max_concurrent"`
	Headers           map[string]string `yaml:"headers,omitempty"`
	LocalModelPath    string            `yaml:"local_model_path,omitempty"`
	LocalEndpoint     string            `yaml:"local_endpoint,omitempty"`
}

// ProvidersFromEnv builds the provider map from the well-known environment
// variables. Used when no providers.yaml is present; the YAML file takes
// precedence when both exist.
func ProvidersFromEnv() *ProvidersConfig {
	p := map[string]ProviderConfig{
		"openai": {
			Type:              "openai",
			BaseURL:           "https://api.openai.com/v1",
			APIKey:            os.Getenv("OPENAI_API_KEY"),
			Model:             envOr("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature:       envFloat("OPENAI_TEMPERATURE"),
			MaxTokens:         envInt("OPENAI_MAX_TOKENS"),
			SupportsVision:    true,
			SupportsStreaming: true,
			DiscoveryPath:     "/models",
			PriorityModels:    []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"},
			Timeout:           30 * time.Second,
			MaxConcurrent:     64,
		},
		"gemini": {
			Type:              "gemini",
			BaseURL:           "https://generativelanguage.googleapis.com/v1beta",
			APIKey:            os.Getenv("GEMINI_API_KEY"),
			Model:             os.Getenv("GEMINI_MODEL"),
			Temperature:       envFloat("GEMINI_TEMPERATURE"),
			MaxTokens:         envInt("GEMINI_MAX_TOKENS"),
			SupportsVision:    true,
			SupportsStreaming: true,
			DiscoveryPath:     "/models",
			PriorityModels:    []string{"gemini-2.0-flash", "gemini-1.5-flash", "gemini-1.5-pro", "gemini-pro"},
			Safety: map[string]string{
				"HARM_CATEGORY_HARASSMENT":        "BLOCK_ONLY_HIGH",
				"HARM_CATEGORY_HATE_SPEECH":       "BLOCK_ONLY_HIGH",
				"HARM_CATEGORY_SEXUALLY_EXPLICIT": "BLOCK_ONLY_HIGH",
				"HARM_CATEGORY_DANGEROUS_CONTENT": "BLOCK_ONLY_HIGH",
			},
			Timeout:       30 * time.Second,
			MaxConcurrent: 64,
		},
		"claude": {
			Type:              "anthropic",
			BaseURL:           "https://api.anthropic.com/v1",
			APIKey:            os.Getenv("CLAUDE_API_KEY"),
			Model:             envOr("CLAUDE_MODEL", "claude-3-5-sonnet-20241022"),
			Temperature:       envFloat("CLAUDE_TEMPERATURE"),
			MaxTokens:         envInt("CLAUDE_MAX_TOKENS"),
			SupportsVision:    true,
			SupportsStreaming: true,
			Headers:           map[string]string{"anthropic-version": "2023-06-01"},
			Timeout:           30 * time.Second,
			MaxConcurrent:     32,
		},
		"groq": {
			Type:              "openai",
			BaseURL:           "https://api.groq.com/openai/v1",
			APIKey:            os.Getenv("GROQ_API_KEY"),
			Model:             "llama-3.3-70b-versatile",
			Temperature:       envFloat("GROQ_TEMPERATURE"),
			MaxTokens:         envInt("GROQ_MAX_TOKENS"),
			SupportsStreaming: true,
			DiscoveryPath:     "/models",
			PriorityModels:    []string{"llama-3.3-70b", "llama-3.1-70b", "llama-3.1-8b", "mixtral-8x7b"},
			Timeout:           30 * time.Second,
			MaxConcurrent:     32,
		},
		"deepseek": {
			Type:              "openai",
			BaseURL:           "https://api.deepseek.com/v1",
			APIKey:            os.Getenv("DEEPSEEK_API_KEY"),
			Model:             "deepseek-chat",
			Temperature:       envFloat("DEEPSEEK_TEMPERATURE"),
			MaxTokens:         envInt("DEEPSEEK_MAX_TOKENS"),
			SupportsStreaming: true,
			Timeout:           30 * time.Second,
			MaxConcurrent:     32,
		},
		"mistral": {
			Type:              "openai",
			BaseURL:           "https://api.mistral.ai/v1",
			APIKey:            os.Getenv("MISTRAL_API_KEY"),
			Model:             envOr("MISTRAL_MODEL", "mistral-small-latest"),
			Temperature:       envFloat("MISTRAL_TEMPERATURE"),
			MaxTokens:         envInt("MISTRAL_MAX_TOKENS"),
			SupportsStreaming: true,
			DiscoveryPath:     "/models",
			PriorityModels:    []string{"mistral-large", "mistral-medium", "mistral-small"},
			Timeout:           30 * time.Second,
			MaxConcurrent:     32,
		},
		"huggingface": {
			Type:    "huggingface",
			BaseURL: "https://api-inference.huggingface.co",
			APIKey:  os.Getenv("HUGGINGFACE_API_KEY"),
			Model:   envOr("HUGGINGFACE_MODEL", "mistralai/Mistral-7B-Instruct-v0.3"),
			Timeout: 30 * time.Second,
		},
		"local": {
			Type:           "local",
			LocalModelPath: os.Getenv("LOCAL_MODEL_PATH"),
			LocalEndpoint:  envOr("LOCAL_MODEL_ENDPOINT", "http://127.0.0.1:8081"),
			Model:          "local",
			Timeout:        60 * time.Second,
		},
	}
	return &ProvidersConfig{Providers: p}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string) *float64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

func envInt(key string) *int {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}
