package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"

	"github.com/edusuite/sage-gateway/internal/auth"
	"github.com/edusuite/sage-gateway/internal/config"
	"github.com/edusuite/sage-gateway/internal/gateway"
	"github.com/edusuite/sage-gateway/internal/guard"
	"github.com/edusuite/sage-gateway/internal/memory"
	"github.com/edusuite/sage-gateway/internal/orchestrator"
	"github.com/edusuite/sage-gateway/internal/provider"
	"github.com/edusuite/sage-gateway/internal/rag"
	"github.com/edusuite/sage-gateway/internal/ratelimit"
	"github.com/edusuite/sage-gateway/internal/service"
	"github.com/edusuite/sage-gateway/internal/store"
	"github.com/edusuite/sage-gateway/internal/telemetry"
	"github.com/edusuite/sage-gateway/internal/tools"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (gateway will start but auth will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (auth cache and rate limits disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	// Build provider registry
	providerRegistry := provider.BuildFromConfig(loader.Providers())
	loader.OnReload(func() {
		newRegistry := provider.BuildFromConfig(loader.Providers())
		*providerRegistry = *newRegistry
		logger.Info("provider registry reloaded")
	})

	// Failover orchestrator
	cbCfg := cfg.Routing.CircuitBreaker
	health := orchestrator.NewHealthTracker(cbCfg.FailureThreshold, cbCfg.RecoveryProbeInterval)
	orch := orchestrator.New(providerRegistry,
		func() config.RoutingConfig { return loader.Config().Routing },
		loader.Providers,
		health,
	)

	// Semantic memory (optional; chat degrades gracefully without it)
	var memoryStore *memory.Store
	if geminiKey := os.Getenv("GEMINI_API_KEY"); geminiKey != "" {
		qdrantClient, err := qdrant.NewClient(&qdrant.Config{
			Host: cfg.Memory.QdrantHost,
			Port: cfg.Memory.QdrantPort,
		})
		if err != nil {
			logger.Warn("qdrant not reachable (semantic memory disabled)", "error", err)
		} else {
			embedder, err := memory.NewGenAIEmbedder(context.Background(), geminiKey, cfg.Memory.EmbedModel)
			if err != nil {
				logger.Warn("embedder init failed (semantic memory disabled)", "error", err)
			} else {
				memoryStore = memory.NewStore(qdrantClient, embedder, cfg.Memory.Collection, cfg.Memory.EmbedDimension)
				if err := memoryStore.Init(context.Background()); err != nil {
					logger.Warn("memory collection init failed", "error", err)
				} else {
					logger.Info("semantic memory enabled", "collection", cfg.Memory.Collection)
				}
			}
		}
	}

	// Inbound guards
	guardCfg := func() config.GuardConfig { return loader.Config().Guard }
	guards := guard.NewChain(
		guard.NewSecretScanner(func() config.SecretsGuardConfig { return guardCfg().Secrets }),
		guard.NewInjectionScanner(func() config.InjectionGuardConfig { return guardCfg().Injection }),
	)

	toolPolicy := guard.NewToolPolicy(func() config.ToolPolicyGuardConfig { return guardCfg().ToolPolicy })
	if guardCfg().ToolPolicy.Enabled {
		if err := toolPolicy.Load(); err != nil {
			logger.Error("failed to load tool policy bundle", "error", err)
			os.Exit(1)
		}
		logger.Info("tool policy loaded", "bundle", guardCfg().ToolPolicy.BundlePath)
	}

	// Tool registry
	toolRegistry := tools.NewRegistry()
	tools.RegisterBuiltins(toolRegistry)

	// Stores and metrics
	conversations := store.NewPGConversationStore(dbPool)
	school := store.NewSchoolStore(dbPool)
	metrics := telemetry.NewMetrics()
	budget := ratelimit.NewBudgetTracker(rdb)

	manager := service.NewManager(service.Options{
		Executor:      orch,
		Conversations: conversations,
		RAG:           rag.NewBuilder(school),
		Memory:        memoryStore,
		ToolRegistry:  toolRegistry,
		ToolPolicy:    toolPolicy,
		Guards:        guards,
		Budget:        budget,
		Metrics:       metrics,
		Routing:       func() config.RoutingConfig { return loader.Config().Routing },
	})

	keyStore := auth.NewCachedKeyStore(dbPool, rdb)
	handler := gateway.NewHandler(manager, conversations, providerRegistry,
		loader.Providers,
		func() config.RoutingConfig { return loader.Config().Routing },
	)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	// Unauthenticated routes
	r.Get("/sage/v1/health", healthHandler)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(keyStore))
		r.Use(ratelimit.Middleware(ratelimit.NewLimiter(rdb), budget, metrics))
		handler.Routes(r)
	})

	// Metrics server on its own port
	if cfg.Telemetry.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("metrics server starting", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
