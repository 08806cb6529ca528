package orchestrator

import (
	"context"
	"testing"

	"github.com/edusuite/sage-gateway/internal/types"
)

func TestRankModels(t *testing.T) {
	tests := []struct {
		name       string
		models     []string
		priorities []string
		want       string
	}{
		{
			name:       "highest priority wins",
			models:     []string{"gemini-pro", "gemini-2.0-flash", "gemini-1.5-pro"},
			priorities: []string{"gemini-2.0-flash", "gemini-1.5-flash", "gemini-pro"},
			want:       "gemini-2.0-flash",
		},
		{
			name:       "substring match",
			models:     []string{"models/gemini-1.5-flash-002"},
			priorities: []string{"gemini-2.0-flash", "gemini-1.5-flash"},
			want:       "models/gemini-1.5-flash-002",
		},
		{
			name:       "no match falls back to first listing",
			models:     []string{"llama-3.3-70b", "mixtral-8x7b"},
			priorities: []string{"gemini-2.0-flash"},
			want:       "llama-3.3-70b",
		},
		{
			name:   "no priorities",
			models: []string{"gpt-4o", "gpt-4o-mini"},
			want:   "gpt-4o",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RankModels(tt.models, tt.priorities); got != tt.want {
				t.Errorf("RankModels() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBestModelCachesUntilInvalidated(t *testing.T) {
	a := &fakeAdapter{name: "gemini", models: []string{"gemini-2.0-flash"}}
	d := NewDiscovery()

	got, err := d.BestModel(context.Background(), a, nil)
	if err != nil || got != "gemini-2.0-flash" {
		t.Fatalf("BestModel() = %q, %v", got, err)
	}

	// The cached answer survives the listing changing underneath.
	a.models = []string{"gemini-3.0"}
	got, _ = d.BestModel(context.Background(), a, nil)
	if got != "gemini-2.0-flash" {
		t.Errorf("cached BestModel() = %q", got)
	}

	d.Invalidate("gemini")
	got, _ = d.BestModel(context.Background(), a, nil)
	if got != "gemini-3.0" {
		t.Errorf("post-invalidate BestModel() = %q", got)
	}
}

func TestBestModelNoDiscoveryEndpoint(t *testing.T) {
	a := &fakeAdapter{name: "claude"} // nil models => ErrNotSupported
	d := NewDiscovery()
	if _, err := d.BestModel(context.Background(), a, nil); err != types.ErrNotSupported {
		t.Errorf("err = %v, want ErrNotSupported", err)
	}
}
