package memory

import (
	"context"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// The gateway must run without a vector store: every operation on a disabled
// store is an empty no-op.
func TestDisabledStoreNoOps(t *testing.T) {
	ctx := context.Background()
	for name, s := range map[string]*Store{
		"nil store":  nil,
		"nil client": NewStore(nil, nil, "sage_memories", 768),
	} {
		t.Run(name, func(t *testing.T) {
			if err := s.Init(ctx); err != nil {
				t.Errorf("Init: %v", err)
			}
			if err := s.Remember(ctx, "u1", "q", "a", ""); err != nil {
				t.Errorf("Remember: %v", err)
			}
			if got, err := s.Search(ctx, "u1", "q", 5, ""); err != nil || got != nil {
				t.Errorf("Search = %v, %v", got, err)
			}
			if got, err := s.Recent(ctx, "u1", 5); err != nil || got != nil {
				t.Errorf("Recent = %v, %v", got, err)
			}
			if err := s.Clear(ctx, "u1"); err != nil {
				t.Errorf("Clear: %v", err)
			}
			if got := s.ContextFor(ctx, "u1", "q", 500); got != "" {
				t.Errorf("ContextFor = %q", got)
			}
		})
	}
}

func TestRecordFromPayload(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	payload := qdrant.NewValueMap(map[string]any{
		"user_id":   "u1",
		"text":      "Q: what is osmosis?\nA: …",
		"question":  "what is osmosis?",
		"subject":   "biology",
		"timestamp": now.Unix(),
	})

	r := recordFromPayload(payload)
	if r.UserID != "u1" || r.Subject != "biology" {
		t.Errorf("record = %+v", r)
	}
	if !r.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", r.Timestamp, now)
	}
}

func TestRecordFromPayloadMissingFields(t *testing.T) {
	r := recordFromPayload(map[string]*qdrant.Value{})
	if r.UserID != "" || !r.Timestamp.IsZero() {
		t.Errorf("record = %+v, want zero values", r)
	}
}
