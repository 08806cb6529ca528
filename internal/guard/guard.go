// Package guard screens inbound chat requests before any provider sees
// them: credential leaks, prompt-injection phrasing, and an OPA policy over
// tool execution.
package guard

import (
	"context"

	"github.com/edusuite/sage-gateway/internal/types"
)

// Action is a guard decision.
type Action string

const (
	ActionPass  Action = "pass"
	ActionFlag  Action = "flag"
	ActionBlock Action = "block"
)

// Result is returned by each guard.
type Result struct {
	Action     Action
	GuardName  string
	Message    string
	Detections int
	Score      float64
}

// Guard is the interface all inbound screens implement.
type Guard interface {
	Name() string
	Enabled() bool
	ScanRequest(ctx context.Context, req *types.AIRequest) Result
}

// Chain runs guards in order, stopping on the first Block.
type Chain struct {
	guards []Guard
}

func NewChain(guards ...Guard) *Chain {
	return &Chain{guards: guards}
}

// Run executes all enabled guards. Returns every result and the first
// blocking one (nil when nothing blocked).
func (c *Chain) Run(ctx context.Context, req *types.AIRequest) ([]Result, *Result) {
	var results []Result
	for _, g := range c.guards {
		if !g.Enabled() {
			continue
		}
		r := g.ScanRequest(ctx, req)
		results = append(results, r)
		if r.Action == ActionBlock {
			return results, &r
		}
	}
	return results, nil
}
