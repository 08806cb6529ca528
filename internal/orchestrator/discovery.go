package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/edusuite/sage-gateway/internal/provider"
)

// Discovery caches the best available model per provider. The choice lives
// for the process lifetime unless invalidated by a model-not-found failure,
// after which the next lookup re-queries the provider.
type Discovery struct {
	mu    sync.Mutex
	cache map[string]string
}

func NewDiscovery() *Discovery {
	return &Discovery{cache: make(map[string]string)}
}

// BestModel returns the preferred available model for the adapter, querying
// its discovery endpoint on a cache miss. priorities is the ranked substring
// preference list; the first listed model matching the highest-ranked
// substring wins, falling back to the provider's first listed model.
func (d *Discovery) BestModel(ctx context.Context, a provider.Adapter, priorities []string) (string, error) {
	d.mu.Lock()
	if cached, ok := d.cache[a.Name()]; ok {
		d.mu.Unlock()
		return cached, nil
	}
	d.mu.Unlock()

	models, err := a.ListModels(ctx)
	if err != nil {
		return "", err
	}
	if len(models) == 0 {
		return "", nil
	}

	best := RankModels(models, priorities)
	d.mu.Lock()
	d.cache[a.Name()] = best
	d.mu.Unlock()

	slog.Info("model discovered", "provider", a.Name(), "model", best, "available", len(models))
	return best, nil
}

// Invalidate drops the cached choice for a provider so the next BestModel
// call re-discovers.
func (d *Discovery) Invalidate(providerName string) {
	d.mu.Lock()
	delete(d.cache, providerName)
	d.mu.Unlock()
}

// RankModels picks the first model matching the highest-ranked priority
// substring. With no match (or no priorities) the provider's own first
// listing wins.
func RankModels(models []string, priorities []string) string {
	for _, want := range priorities {
		for _, m := range models {
			if strings.Contains(m, want) {
				return m
			}
		}
	}
	return models[0]
}
