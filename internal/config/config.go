package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Memory    MemoryConfig    `yaml:"memory"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Guard     GuardConfig     `yaml:"guard"`
	Routing   RoutingConfig   `yaml:"routing"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

// MemoryConfig configures the per-user semantic memory store.
type MemoryConfig struct {
	QdrantHost     string `yaml:"qdrant_host"`
	QdrantPort     int    `yaml:"qdrant_port"`
	Collection     string `yaml:"collection"`
	EmbedModel     string `yaml:"embed_model"`
	EmbedDimension uint64 `yaml:"embed_dimension"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

type GuardConfig struct {
	Secrets    SecretsGuardConfig    `yaml:"secrets"`
	Injection  InjectionGuardConfig  `yaml:"injection"`
	ToolPolicy ToolPolicyGuardConfig `yaml:"tool_policy"`
}

type SecretsGuardConfig struct {
	Enabled bool `yaml:"enabled"`
}

type InjectionGuardConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BlockThreshold float64 `yaml:"block_threshold"`
	FlagThreshold  float64 `yaml:"flag_threshold"`
}

type ToolPolicyGuardConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

// RoutingConfig governs the failover orchestrator.
type RoutingConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	FallbackChain   []string             `yaml:"fallback_chain"`
	AttemptTimeout  time.Duration        `yaml:"attempt_timeout"`
	OverallTimeout  time.Duration        `yaml:"overall_timeout"`
	HistoryTurns    int                  `yaml:"history_turns"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "sage",
			User:            "sage",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Memory: MemoryConfig{
			QdrantHost:     "localhost",
			QdrantPort:     6334,
			Collection:     "sage_memories",
			EmbedModel:     "text-embedding-004",
			EmbedDimension: 768,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Guard: GuardConfig{
			Secrets: SecretsGuardConfig{Enabled: true},
			Injection: InjectionGuardConfig{
				Enabled:        true,
				BlockThreshold: 0.9,
				FlagThreshold:  0.7,
			},
			ToolPolicy: ToolPolicyGuardConfig{
				Enabled:           false,
				BundlePath:        "/etc/sage/policies",
				EvaluationTimeout: 100 * time.Millisecond,
			},
		},
		Routing: RoutingConfig{
			DefaultProvider: "gemini",
			FallbackChain:   []string{"gemini", "openai", "groq", "deepseek", "mistral", "claude", "huggingface"},
			AttemptTimeout:  30 * time.Second,
			OverallTimeout:  90 * time.Second,
			HistoryTurns:    10,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 15 * time.Second,
			},
		},
	}
}
