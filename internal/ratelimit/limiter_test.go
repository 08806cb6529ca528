package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_NilRedis_FailOpen(t *testing.T) {
	l := NewLimiter(nil)
	result, err := l.Check(context.Background(), "rpm:key-1", 30, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Error("expected allowed when Redis is nil")
	}
	if result.Remaining != 29 {
		t.Errorf("expected remaining=29, got %d", result.Remaining)
	}
	if result.ResetAt.Before(time.Now()) {
		t.Error("expected ResetAt in the future")
	}
}

func TestLimiter_NilRedis_NeverThrottles(t *testing.T) {
	l := NewLimiter(nil)
	// Without Redis every check passes (fail open)
	for i := 0; i < 100; i++ {
		result, _ := l.Check(context.Background(), "rpm:key-1", 10, time.Minute)
		if !result.Allowed {
			t.Fatalf("expected allowed on check %d", i)
		}
	}
}
