package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/edusuite/sage-gateway/internal/config"
	"github.com/edusuite/sage-gateway/internal/provider"
	"github.com/edusuite/sage-gateway/internal/types"
)

// Result is the outcome of one trip through the failover ladder.
type Result struct {
	Reply         *types.ChatReply
	Provider      string
	Model         string
	Attempts      []types.Attempt
	Offline       bool
	SafetyRefused bool
}

// Orchestrator executes a ChatRequest against the provider chain until one
// succeeds, a terminal error occurs, or the ladder is exhausted. The chain is
// traversed strictly in order; there is no concurrent fan-out.
type Orchestrator struct {
	registry  *provider.Registry
	routing   func() config.RoutingConfig
	providers func() *config.ProvidersConfig
	discovery *Discovery
	health    *HealthTracker
}

func New(registry *provider.Registry, routing func() config.RoutingConfig, providers func() *config.ProvidersConfig, health *HealthTracker) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		routing:   routing,
		providers: providers,
		discovery: NewDiscovery(),
		health:    health,
	}
}

// Execute runs the ladder: remote chain → discovery retry on the primary →
// local model → offline text. preferred names the caller's provider choice;
// req.Model carries the caller's model choice (both may be empty).
func (o *Orchestrator) Execute(ctx context.Context, req *types.ChatRequest, preferred string) (*Result, error) {
	routing := o.routing()

	overallCtx, cancel := context.WithTimeout(ctx, routing.OverallTimeout)
	defer cancel()

	candidates := o.candidates(preferred, req.HasAttachments())
	requestedModel := req.Model

	var attempts []types.Attempt

	for _, name := range candidates {
		if overallCtx.Err() != nil {
			break
		}
		adapter, ok := o.registry.Get(name)
		if !ok {
			continue
		}
		if o.health != nil && !o.health.IsAvailable(name) {
			slog.Warn("provider skipped, circuit open", "provider", name)
			continue
		}

		cfg := o.providerConfig(name)
		model := o.modelFor(overallCtx, adapter, cfg, requestedModel)
		if model == "" {
			continue
		}

		tried := map[string]bool{}
		for {
			reply, attempt, err := o.attempt(overallCtx, adapter, cfg, model, req)
			attempts = append(attempts, attempt)

			if err == nil {
				if o.health != nil {
					o.health.RecordSuccess(name)
				}
				return &Result{Reply: reply, Provider: name, Model: model, Attempts: attempts}, nil
			}

			kind := types.KindOf(err)
			slog.Warn("provider attempt failed",
				"provider", name, "model", model, "kind", string(kind), "error", err)

			switch kind {
			case types.KindAuth:
				// Terminal: the key problem is local, other providers won't fix it.
				return &Result{Attempts: attempts}, err

			case types.KindSafetyBlock:
				return &Result{
					Reply:         &types.ChatReply{Text: RefusalText, FinishReason: types.FinishSafety, Model: model},
					Provider:      name,
					Model:         model,
					Attempts:      attempts,
					SafetyRefused: true,
				}, nil

			case types.KindModelNotFound:
				o.discovery.Invalidate(name)
				tried[model] = true
				if next := o.nextModel(overallCtx, adapter, cfg, tried); next != "" {
					model = next
					continue
				}
			default:
				if o.health != nil {
					o.health.RecordFailure(name)
				}
			}
			break
		}
	}

	// Remote chain exhausted. Rung 1: re-discover on the primary and try its
	// best listing once.
	if len(candidates) > 0 && overallCtx.Err() == nil {
		primary := candidates[0]
		if adapter, ok := o.registry.Get(primary); ok {
			cfg := o.providerConfig(primary)
			o.discovery.Invalidate(primary)
			if model, err := o.discovery.BestModel(overallCtx, adapter, cfg.PriorityModels); err == nil && model != "" && !attempted(attempts, primary, model) {
				reply, attempt, err := o.attempt(overallCtx, adapter, cfg, model, req)
				attempts = append(attempts, attempt)
				if err == nil {
					return &Result{Reply: reply, Provider: primary, Model: model, Attempts: attempts}, nil
				}
			}
		}
	}

	// Rung 2: the local model, when its weights are present.
	if adapter, ok := o.registry.Get("local"); ok && overallCtx.Err() == nil && !req.HasAttachments() {
		reply, attempt, err := o.attempt(overallCtx, adapter, o.providerConfig("local"), "local", req)
		attempts = append(attempts, attempt)
		if err == nil {
			return &Result{Reply: reply, Provider: "local", Model: reply.Model, Attempts: attempts}, nil
		}
	}

	// Rung 3: deterministic offline text.
	return &Result{
		Reply:    &types.ChatReply{Text: OfflineText, FinishReason: types.FinishStop},
		Provider: "offline",
		Attempts: attempts,
		Offline:  true,
	}, nil
}

// candidates derives the per-call provider order: the preferred (or default)
// provider pinned to the front of the static chain, duplicates removed
// preserving order, restricted to registered adapters. When attachments are
// present the chain is restricted to vision-capable providers, with the
// first such provider pinned to the front when the head lacks vision; a
// text-only adapter must never receive image parts, not even on failover.
func (o *Orchestrator) candidates(preferred string, needVision bool) []string {
	routing := o.routing()

	head := preferred
	if head == "" {
		head = routing.DefaultProvider
	}

	ordered := append([]string{head}, routing.FallbackChain...)

	if needVision {
		if a, ok := o.registry.Get(head); !ok || !a.Capabilities().Vision {
			if va, ok := o.registry.FirstVision(ordered); ok {
				ordered = append([]string{va.Name()}, ordered...)
			}
		}
	}

	seen := map[string]bool{}
	var out []string
	for _, name := range ordered {
		if name == "" || name == "local" || seen[name] {
			continue
		}
		seen[name] = true
		a, ok := o.registry.Get(name)
		if !ok {
			continue
		}
		if needVision && !a.Capabilities().Vision {
			continue
		}
		out = append(out, name)
	}
	return out
}

// modelFor picks the model for one provider: the requested model, else the
// configured default, else discovery, else the safe priority constant.
func (o *Orchestrator) modelFor(ctx context.Context, a provider.Adapter, cfg config.ProviderConfig, requested string) string {
	if requested != "" {
		return requested
	}
	if cfg.Model != "" {
		return cfg.Model
	}
	if best, err := o.discovery.BestModel(ctx, a, cfg.PriorityModels); err == nil && best != "" {
		return best
	}
	if len(cfg.PriorityModels) > 0 {
		return cfg.PriorityModels[0]
	}
	return ""
}

// nextModel picks the next untried model after a model-not-found failure:
// the configured default first, then a fresh discovery listing.
func (o *Orchestrator) nextModel(ctx context.Context, a provider.Adapter, cfg config.ProviderConfig, tried map[string]bool) string {
	if cfg.Model != "" && !tried[cfg.Model] {
		return cfg.Model
	}
	if best, err := o.discovery.BestModel(ctx, a, cfg.PriorityModels); err == nil && best != "" && !tried[best] {
		return best
	}
	return ""
}

func (o *Orchestrator) attempt(ctx context.Context, a provider.Adapter, cfg config.ProviderConfig, model string, req *types.ChatRequest) (*types.ChatReply, types.Attempt, error) {
	routing := o.routing()
	attemptCtx, cancel := context.WithTimeout(ctx, routing.AttemptTimeout)
	defer cancel()

	call := *req
	call.Model = model
	// Provider-configured defaults apply only where the caller left the knob unset.
	if call.Temperature == nil {
		call.Temperature = cfg.Temperature
	}
	if call.MaxTokens == nil {
		call.MaxTokens = cfg.MaxTokens
	}

	start := time.Now()
	reply, err := a.Generate(attemptCtx, &call)
	latency := time.Since(start).Milliseconds()

	if err == nil && reply.Text == "" && reply.FinishReason == types.FinishStop {
		// A blank success is a provider bug; treat it as unknown and fail over.
		err = types.NewProviderError(types.KindUnknown, a.Name(), model, "provider returned empty text")
		reply = nil
	}

	outcome := "ok"
	if err != nil {
		outcome = string(types.KindOf(err))
	}

	return reply, types.Attempt{
		Provider:  a.Name(),
		Model:     model,
		Outcome:   outcome,
		LatencyMs: latency,
	}, err
}

func (o *Orchestrator) providerConfig(name string) config.ProviderConfig {
	if pc := o.providers(); pc != nil {
		return pc.Providers[name]
	}
	return config.ProviderConfig{}
}

func attempted(attempts []types.Attempt, provider, model string) bool {
	for _, a := range attempts {
		if a.Provider == provider && a.Model == model {
			return true
		}
	}
	return false
}
