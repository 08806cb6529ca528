package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BudgetResult is the outcome of a token budget check.
type BudgetResult struct {
	Allowed     bool
	UsedTokens  int64
	LimitTokens int64
}

// BudgetTracker tracks daily token usage per user via Redis.
type BudgetTracker struct {
	rdb *redis.Client
}

// NewBudgetTracker creates a budget tracker. If rdb is nil, all checks pass.
func NewBudgetTracker(rdb *redis.Client) *BudgetTracker {
	return &BudgetTracker{rdb: rdb}
}

func dailyBudgetKey(userID string) string {
	day := time.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf("sage:budget:daily:%s:%s", userID, day)
}

// CheckDailyTokens checks if the user is under their daily token budget.
func (b *BudgetTracker) CheckDailyTokens(ctx context.Context, userID string, limitTokens int64) (BudgetResult, error) {
	if b.rdb == nil {
		return BudgetResult{Allowed: true, LimitTokens: limitTokens}, nil
	}

	key := dailyBudgetKey(userID)
	used, err := b.rdb.Get(ctx, key).Int64()
	if err != nil && err != redis.Nil {
		// Fail open on Redis errors
		return BudgetResult{Allowed: true, LimitTokens: limitTokens}, nil
	}

	return BudgetResult{
		Allowed:     used < limitTokens,
		UsedTokens:  used,
		LimitTokens: limitTokens,
	}, nil
}

// RecordUsage adds consumed tokens to the user's daily counter.
func (b *BudgetTracker) RecordUsage(ctx context.Context, userID string, tokens int64) error {
	if b.rdb == nil || tokens <= 0 {
		return nil
	}

	key := dailyBudgetKey(userID)
	pipe := b.rdb.Pipeline()
	pipe.IncrBy(ctx, key, tokens)
	// Expire at end of day UTC + 1 hour buffer
	now := time.Now().UTC()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	ttl := endOfDay.Sub(now) + time.Hour
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}
