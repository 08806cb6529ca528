// Package service is the gateway facade: it assembles the prompt, runs the
// guard chain, drives the failover orchestrator and the tool loop, and
// persists the exchange.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/edusuite/sage-gateway/internal/config"
	"github.com/edusuite/sage-gateway/internal/guard"
	"github.com/edusuite/sage-gateway/internal/memory"
	"github.com/edusuite/sage-gateway/internal/orchestrator"
	"github.com/edusuite/sage-gateway/internal/prompt"
	"github.com/edusuite/sage-gateway/internal/rag"
	"github.com/edusuite/sage-gateway/internal/ratelimit"
	"github.com/edusuite/sage-gateway/internal/store"
	"github.com/edusuite/sage-gateway/internal/telemetry"
	"github.com/edusuite/sage-gateway/internal/tools"
	"github.com/edusuite/sage-gateway/internal/types"
)

const (
	maxTitleLen      = 60
	memoryMaxChars   = 2000
	rememberTimeout  = 10 * time.Second
	untitledFallback = "New conversation"
)

// BlockedError is returned when an inbound guard rejects the request. The
// HTTP layer maps it to 451.
type BlockedError struct {
	Guard   string
	Message string
}

func (e *BlockedError) Error() string { return e.Message }

// Executor runs a chat request through the provider ladder.
type Executor interface {
	Execute(ctx context.Context, req *types.ChatRequest, preferred string) (*orchestrator.Result, error)
}

// Manager wires the per-request pipeline over process-wide singletons. All
// fields are read-only after construction; a Manager is safe for concurrent
// use.
type Manager struct {
	exec          Executor
	conversations store.ConversationStore
	ragBuilder    *rag.Builder
	memory        *memory.Store
	toolLoop      *tools.Loop
	toolRegistry  *tools.Registry
	toolPolicy    *guard.ToolPolicy
	guards        *guard.Chain
	budget        *ratelimit.BudgetTracker
	metrics       *telemetry.Metrics
	routing       func() config.RoutingConfig
}

type Options struct {
	Executor      Executor
	Conversations store.ConversationStore
	RAG           *rag.Builder
	Memory        *memory.Store
	ToolRegistry  *tools.Registry
	ToolPolicy    *guard.ToolPolicy
	Guards        *guard.Chain
	Budget        *ratelimit.BudgetTracker
	Metrics       *telemetry.Metrics
	Routing       func() config.RoutingConfig
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		exec:          opts.Executor,
		conversations: opts.Conversations,
		ragBuilder:    opts.RAG,
		memory:        opts.Memory,
		toolRegistry:  opts.ToolRegistry,
		toolPolicy:    opts.ToolPolicy,
		guards:        opts.Guards,
		budget:        opts.Budget,
		metrics:       opts.Metrics,
		routing:       opts.Routing,
	}
	if opts.ToolRegistry != nil {
		m.toolLoop = tools.NewLoop(opts.ToolRegistry)
	}
	if m.routing == nil {
		m.routing = func() config.RoutingConfig { return config.DefaultConfig().Routing }
	}
	return m
}

// Chat runs one request end to end and returns the reply with its attempt
// trail. Provider errors surface only when the whole ladder failed with a
// terminal kind; everything else degrades to the offline text.
func (m *Manager) Chat(ctx context.Context, req *types.AIRequest) (*types.AIResponse, error) {
	started := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	if m.guards != nil {
		flagged, blocked := m.guards.Run(ctx, req)
		for _, fr := range flagged {
			if fr.Action == guard.ActionFlag && m.metrics != nil {
				m.metrics.RecordGuardAction(fr.GuardName, "flag")
			}
		}
		if blocked != nil {
			slog.Warn("request blocked by guard",
				"request_id", req.RequestID,
				"guard", blocked.GuardName,
				"detections", blocked.Detections,
				"user_id", req.UserID,
			)
			if m.metrics != nil {
				m.metrics.RecordGuardAction(blocked.GuardName, "block")
			}
			return nil, &BlockedError{Guard: blocked.GuardName, Message: blocked.Message}
		}
	}

	conv, err := m.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	messages, ragIncluded := m.assembleMessages(ctx, req, conv)

	chatReq := &types.ChatRequest{Messages: messages, Model: req.Model}
	result, err := m.exec.Execute(ctx, chatReq, req.Provider)
	if result != nil {
		m.recordAttempts(result.Attempts)
	}
	if err != nil {
		m.recordRequest(req, result, "error", started)
		return nil, err
	}

	reply := result.Reply
	attempts := result.Attempts
	var invocations []types.ToolInvocation

	if req.ToolsEnabled && m.toolLoop != nil && !result.Offline && !result.SafetyRefused {
		reply, invocations = m.toolLoop.Run(ctx, messages, reply,
			m.followupCall(result.Provider, &attempts),
			m.policyFor(req))
		for _, inv := range invocations {
			if m.metrics != nil {
				m.metrics.RecordToolInvocation(inv.Tool, "ok")
			}
		}
	}

	m.persistExchange(ctx, req, conv, reply, result, started)

	if !result.Offline && !result.SafetyRefused {
		m.rememberAsync(req, reply.Text)
		m.recordUsage(req, reply.Usage)
	}

	m.recordRequest(req, result, "ok", started)
	if result.Offline && m.metrics != nil {
		m.metrics.RecordOffline()
	}

	return &types.AIResponse{
		Text:               reply.Text,
		ConversationID:     conv.ID,
		ProviderUsed:       result.Provider,
		ModelUsed:          result.Model,
		Attempts:           attempts,
		ToolInvocations:    invocations,
		RAGContextIncluded: ragIncluded,
		Usage:              reply.Usage,
	}, nil
}

// resolveConversation loads the caller's thread or starts a new one titled
// from the first message.
func (m *Manager) resolveConversation(ctx context.Context, req *types.AIRequest) (*store.Conversation, error) {
	if m.conversations == nil {
		return &store.Conversation{UserID: req.UserID}, nil
	}
	if req.ConversationID != nil {
		return m.conversations.Get(ctx, req.UserID, *req.ConversationID)
	}
	return m.conversations.Create(ctx, req.UserID, titleFrom(req.Message), req.Model)
}

func titleFrom(message string) string {
	title := strings.TrimSpace(message)
	if title == "" {
		return untitledFallback
	}
	if len(title) > maxTitleLen {
		title = title[:maxTitleLen]
	}
	return title
}

// assembleMessages builds the conversation vector: expert system prompt
// (plus tool preamble), RAG context, semantic memory, stored history, then
// the new user turn carrying any attachments.
func (m *Manager) assembleMessages(ctx context.Context, req *types.AIRequest, conv *store.Conversation) ([]types.Message, bool) {
	system, mode := prompt.Compose(req.ModeHint, req.Message)
	if req.ToolsEnabled && m.toolRegistry != nil {
		system += "\n\n" + m.toolRegistry.Preamble()
	}

	messages := []types.Message{{Role: "system", Content: system}}

	ragIncluded := false
	if req.WantsRAG() {
		if block := m.ragBuilder.ContextFor(ctx, req.UserID); block != "" {
			messages = append(messages, types.Message{Role: "system", Content: block})
			ragIncluded = true
		}
	}

	if memBlock := m.memory.ContextFor(ctx, req.UserID, req.Message, memoryMaxChars); memBlock != "" {
		messages = append(messages, types.Message{Role: "system", Content: memBlock})
	}

	if m.conversations != nil && conv.ID != 0 {
		n := m.routing().HistoryTurns
		if n <= 0 {
			n = 10
		}
		turns, err := m.conversations.RecentTurns(ctx, conv.ID, n)
		if err != nil {
			slog.Warn("history load failed", "conversation_id", conv.ID, "error", err)
		}
		for _, t := range turns {
			messages = append(messages, types.Message{Role: t.Role, Content: t.Content})
		}
	}

	messages = append(messages, types.Message{
		Role:    "user",
		Content: req.Message,
		Parts:   req.Attachments,
	})

	slog.Debug("prompt assembled",
		"request_id", req.RequestID,
		"mode", string(mode),
		"messages", len(messages),
		"rag", ragIncluded,
	)
	return messages, ragIncluded
}

// followupCall binds the tool loop's second model pass to the orchestrator,
// pinned to the provider that served the first reply. Its attempts join the
// request's trail.
func (m *Manager) followupCall(provider string, attempts *[]types.Attempt) tools.ModelCall {
	return func(ctx context.Context, messages []types.Message) (*types.ChatReply, error) {
		result, err := m.exec.Execute(ctx, &types.ChatRequest{Messages: messages}, provider)
		if result != nil {
			*attempts = append(*attempts, result.Attempts...)
			m.recordAttempts(result.Attempts)
		}
		if err != nil {
			return nil, err
		}
		if result.Offline {
			return nil, fmt.Errorf("all providers unavailable for tool follow-up")
		}
		return result.Reply, nil
	}
}

func (m *Manager) policyFor(req *types.AIRequest) tools.PolicyFunc {
	if m.toolPolicy == nil {
		return nil
	}
	return func(ctx context.Context, tool string) error {
		return m.toolPolicy.Allow(ctx, req.UserID, req.Role, tool)
	}
}

// persistExchange stores the user and assistant turns. Persistence failures
// are logged, never surfaced: the user already has their answer.
func (m *Manager) persistExchange(ctx context.Context, req *types.AIRequest, conv *store.Conversation, reply *types.ChatReply, result *orchestrator.Result, started time.Time) {
	if m.conversations == nil || conv.ID == 0 {
		return
	}

	if _, err := m.conversations.AppendTurn(ctx, &store.Turn{
		ConversationID: conv.ID,
		Role:           "user",
		Content:        req.Message,
		TokensUsed:     reply.Usage.PromptTokens,
	}); err != nil {
		slog.Error("failed to persist user turn", "conversation_id", conv.ID, "error", err)
		return
	}

	if _, err := m.conversations.AppendTurn(ctx, &store.Turn{
		ConversationID: conv.ID,
		Role:           "assistant",
		Content:        reply.Text,
		TokensUsed:     reply.Usage.CompletionTokens,
		Model:          result.Model,
		ResponseTimeMs: time.Since(started).Milliseconds(),
	}); err != nil {
		slog.Error("failed to persist assistant turn", "conversation_id", conv.ID, "error", err)
	}
}

// rememberAsync writes the exchange to semantic memory off the request path.
func (m *Manager) rememberAsync(req *types.AIRequest, answer string) {
	if m.memory == nil {
		return
	}
	userID, question := req.UserID, req.Message
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), rememberTimeout)
		defer cancel()
		if err := m.memory.Remember(ctx, userID, question, answer, ""); err != nil {
			slog.Warn("memory write failed", "user_id", userID, "error", err)
		}
	}()
}

func (m *Manager) recordUsage(req *types.AIRequest, usage types.Usage) {
	if m.budget == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.budget.RecordUsage(ctx, req.UserID, int64(usage.TotalTokens)); err != nil {
		slog.Warn("budget record failed", "user_id", req.UserID, "error", err)
	}
}

func (m *Manager) recordAttempts(attempts []types.Attempt) {
	if m.metrics == nil {
		return
	}
	for _, a := range attempts {
		m.metrics.RecordAttempt(a.Provider, a.Outcome)
	}
}

func (m *Manager) recordRequest(req *types.AIRequest, result *orchestrator.Result, status string, started time.Time) {
	if m.metrics == nil {
		return
	}
	labels := telemetry.RequestLabels{
		Role:       req.Role,
		Status:     status,
		DurationMs: float64(time.Since(started).Milliseconds()),
	}
	if result != nil {
		labels.Provider = result.Provider
		labels.Model = result.Model
		labels.Attempts = len(result.Attempts)
		if result.Reply != nil {
			labels.PromptTokens = result.Reply.Usage.PromptTokens
			labels.CompletionTokens = result.Reply.Usage.CompletionTokens
		}
	}
	m.metrics.RecordRequest(labels)
}
