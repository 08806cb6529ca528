package ratelimit

import (
	"context"
	"testing"
)

func TestBudgetTracker_NilRedis_FailOpen(t *testing.T) {
	b := NewBudgetTracker(nil)
	result, err := b.CheckDailyTokens(context.Background(), "student-1", 50000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Error("expected allowed when Redis is nil")
	}
	if result.LimitTokens != 50000 {
		t.Errorf("expected limit=50000, got %d", result.LimitTokens)
	}
}

func TestBudgetTracker_NilRedis_RecordUsage(t *testing.T) {
	b := NewBudgetTracker(nil)
	// RecordUsage should be a no-op with nil Redis
	err := b.RecordUsage(context.Background(), "student-1", 1200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBudgetTracker_NilRedis_ZeroTokens(t *testing.T) {
	b := NewBudgetTracker(nil)
	err := b.RecordUsage(context.Background(), "student-1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
