package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/edusuite/sage-gateway/internal/types"
)

// Marker is the literal prefix the model emits to invoke a tool.
const Marker = "TOOL_CALL:"

// ModelCall re-invokes the model with an extended conversation. The loop
// stays ignorant of providers; the caller binds this to the orchestrator.
type ModelCall func(ctx context.Context, messages []types.Message) (*types.ChatReply, error)

// PolicyFunc decides whether the current caller may run a tool. nil allows
// everything.
type PolicyFunc func(ctx context.Context, tool string) error

type Call struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// Loop drives the two-pass tool protocol. Exactly one tool execution and one
// follow-up model call happen per request; a tool result asking for another
// tool is returned as-is.
type Loop struct {
	registry *Registry
}

func NewLoop(registry *Registry) *Loop {
	return &Loop{registry: registry}
}

// Run inspects the first reply for a tool invocation. Without the marker (or
// on any parse, policy or execution failure) the first reply is returned
// unchanged; tool plumbing must never turn a usable answer into an error.
func (l *Loop) Run(ctx context.Context, messages []types.Message, first *types.ChatReply, call ModelCall, policy PolicyFunc) (*types.ChatReply, []types.ToolInvocation) {
	if l == nil || l.registry == nil || first == nil {
		return first, nil
	}

	tc, ok := ParseToolCall(first.Text)
	if !ok {
		return first, nil
	}

	if policy != nil {
		if err := policy(ctx, tc.Tool); err != nil {
			slog.Warn("tool denied by policy", "tool", tc.Tool, "error", err)
			return first, nil
		}
	}

	start := time.Now()
	result, err := l.registry.Execute(ctx, tc.Tool, tc.Arguments)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		slog.Warn("tool execution failed", "tool", tc.Tool, "error", err)
		return first, nil
	}

	rawArgs, _ := json.Marshal(tc.Arguments)
	invocation := types.ToolInvocation{
		Tool:      tc.Tool,
		Arguments: rawArgs,
		Result:    result,
		LatencyMs: latency,
	}

	followup := make([]types.Message, 0, len(messages)+2)
	followup = append(followup, messages...)
	followup = append(followup,
		types.Message{Role: "assistant", Content: first.Text},
		types.Message{Role: "system", Content: fmt.Sprintf(
			"You previously chose tool `%s`; its result was `%s`; produce the user-facing answer.",
			tc.Tool, result)},
	)

	second, err := call(ctx, followup)
	if err != nil {
		slog.Warn("tool follow-up call failed", "tool", tc.Tool, "error", err)
		return first, []types.ToolInvocation{invocation}
	}
	return second, []types.ToolInvocation{invocation}
}

// ParseToolCall extracts the first balanced JSON object after the marker.
func ParseToolCall(text string) (Call, bool) {
	var tc Call

	idx := strings.Index(text, Marker)
	if idx < 0 {
		return tc, false
	}
	rest := text[idx+len(Marker):]

	obj, ok := firstJSONObject(rest)
	if !ok {
		return tc, false
	}
	if err := json.Unmarshal([]byte(obj), &tc); err != nil || tc.Tool == "" {
		return tc, false
	}
	if tc.Arguments == nil {
		tc.Arguments = map[string]any{}
	}
	return tc, true
}

// firstJSONObject scans for the first balanced {...} block, honoring string
// literals and escapes.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
