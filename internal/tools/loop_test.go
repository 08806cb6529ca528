package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/edusuite/sage-gateway/internal/types"
)

func TestLoopRunsToolAndFollowsUp(t *testing.T) {
	loop := NewLoop(builtinRegistry(t))

	messages := []types.Message{
		{Role: "system", Content: "preamble"},
		{Role: "user", Content: "what is 6*7?"},
	}
	first := &types.ChatReply{Text: `TOOL_CALL: {"tool": "calculator", "arguments": {"expression": "6*7"}}`}

	var followup []types.Message
	second, invocations := loop.Run(context.Background(), messages, first,
		func(ctx context.Context, msgs []types.Message) (*types.ChatReply, error) {
			followup = msgs
			return &types.ChatReply{Text: "6 times 7 is 42."}, nil
		}, nil)

	if second.Text != "6 times 7 is 42." {
		t.Errorf("second reply = %q", second.Text)
	}
	if len(invocations) != 1 || invocations[0].Tool != "calculator" || invocations[0].Result != "42" {
		t.Errorf("invocations = %+v", invocations)
	}

	// The follow-up conversation carries the original turns, the model's
	// tool request, and the result system message.
	if len(followup) != 4 {
		t.Fatalf("followup has %d messages", len(followup))
	}
	last := followup[3]
	if last.Role != "system" || !strings.Contains(last.Content, "calculator") || !strings.Contains(last.Content, "42") {
		t.Errorf("result message = %+v", last)
	}
}

func TestLoopNoMarkerPassesThrough(t *testing.T) {
	loop := NewLoop(builtinRegistry(t))
	first := &types.ChatReply{Text: "just an answer"}

	second, invocations := loop.Run(context.Background(), nil, first,
		func(ctx context.Context, msgs []types.Message) (*types.ChatReply, error) {
			t.Fatal("model must not be called twice without a marker")
			return nil, nil
		}, nil)

	if second != first || invocations != nil {
		t.Errorf("reply = %+v, invocations = %+v", second, invocations)
	}
}

func TestLoopUnknownToolReturnsFirstReply(t *testing.T) {
	loop := NewLoop(builtinRegistry(t))
	first := &types.ChatReply{Text: `TOOL_CALL: {"tool": "teleport", "arguments": {}}`}

	second, invocations := loop.Run(context.Background(), nil, first,
		func(ctx context.Context, msgs []types.Message) (*types.ChatReply, error) {
			t.Fatal("unknown tool must not trigger a follow-up call")
			return nil, nil
		}, nil)

	if second != first {
		t.Error("first reply should be returned unchanged")
	}
	if invocations != nil {
		t.Errorf("invocations = %+v", invocations)
	}
}

func TestLoopFollowupFailureKeepsFirstReply(t *testing.T) {
	loop := NewLoop(builtinRegistry(t))
	first := &types.ChatReply{Text: `TOOL_CALL: {"tool": "calculator", "arguments": {"expression": "1+1"}}`}

	second, invocations := loop.Run(context.Background(), nil, first,
		func(ctx context.Context, msgs []types.Message) (*types.ChatReply, error) {
			return nil, errors.New("all providers down")
		}, nil)

	if second != first {
		t.Error("first reply should survive a failed follow-up")
	}
	// The tool did run; the trail records it even though the follow-up failed.
	if len(invocations) != 1 || invocations[0].Result != "2" {
		t.Errorf("invocations = %+v", invocations)
	}
}

func TestLoopPolicyDenialKeepsFirstReply(t *testing.T) {
	loop := NewLoop(builtinRegistry(t))
	first := &types.ChatReply{Text: `TOOL_CALL: {"tool": "calculator", "arguments": {"expression": "1+1"}}`}

	second, invocations := loop.Run(context.Background(), nil, first,
		func(ctx context.Context, msgs []types.Message) (*types.ChatReply, error) {
			t.Fatal("denied tool must not trigger a follow-up call")
			return nil, nil
		},
		func(ctx context.Context, tool string) error {
			return errors.New("role may not use " + tool)
		})

	if second != first || invocations != nil {
		t.Errorf("reply = %+v, invocations = %+v", second, invocations)
	}
}
