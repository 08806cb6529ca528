// Package gateway exposes the HTTP surface: chat, conversation management
// and model listing.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edusuite/sage-gateway/internal/auth"
	"github.com/edusuite/sage-gateway/internal/config"
	"github.com/edusuite/sage-gateway/internal/httputil"
	"github.com/edusuite/sage-gateway/internal/provider"
	"github.com/edusuite/sage-gateway/internal/service"
	"github.com/edusuite/sage-gateway/internal/store"
	"github.com/edusuite/sage-gateway/internal/types"
)

// ChatService is the facade the chat endpoint drives.
type ChatService interface {
	Chat(ctx context.Context, req *types.AIRequest) (*types.AIResponse, error)
}

// Handler holds dependencies for the gateway HTTP handlers.
type Handler struct {
	chat          ChatService
	conversations store.ConversationStore
	registry      *provider.Registry
	providersCfg  func() *config.ProvidersConfig
	routing       func() config.RoutingConfig
}

func NewHandler(chat ChatService, conversations store.ConversationStore, registry *provider.Registry, providersCfg func() *config.ProvidersConfig, routing func() config.RoutingConfig) *Handler {
	return &Handler{
		chat:          chat,
		conversations: conversations,
		registry:      registry,
		providersCfg:  providersCfg,
		routing:       routing,
	}
}

// Routes mounts the authenticated API onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/chat", h.Chat)
	r.Get("/v1/conversations", h.ListConversations)
	r.Get("/v1/conversations/{id}", h.GetConversation)
	r.Delete("/v1/conversations/{id}", h.DeleteConversation)
	r.Get("/v1/models", h.ListModels)
}

// Chat handles POST /v1/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var req types.AIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	defer r.Body.Close()

	req.RequestID = reqID
	req.UserID = authInfo.UserID
	req.Role = authInfo.Role
	req.ReceivedAt = time.Now()

	resp, err := h.chat.Chat(r.Context(), &req)
	if err != nil {
		h.writeChatError(w, reqID, err)
		return
	}

	slog.Info("chat completed",
		"request_id", reqID,
		"user_id", authInfo.UserID,
		"role", authInfo.Role,
		"conversation_id", resp.ConversationID,
		"provider", resp.ProviderUsed,
		"model", resp.ModelUsed,
		"attempts", len(resp.Attempts),
		"tools", len(resp.ToolInvocations),
		"rag", resp.RAGContextIncluded,
		"total_tokens", resp.Usage.TotalTokens,
		"duration_ms", time.Since(req.ReceivedAt).Milliseconds(),
	)

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeChatError(w http.ResponseWriter, reqID string, err error) {
	var blocked *service.BlockedError
	switch {
	case errors.As(err, &blocked):
		httputil.WriteContentBlockedError(w, reqID, blocked.Message)
	case errors.Is(err, types.ErrEmptyRequest):
		httputil.WriteBadRequestError(w, reqID, "message and images are both empty")
	case errors.Is(err, store.ErrNotFound):
		httputil.WriteNotFoundError(w, reqID, "Conversation not found")
	default:
		slog.Error("chat request failed", "request_id", reqID, "error", err)
		httputil.WriteServiceUnavailableError(w, reqID, "No provider available: "+err.Error())
	}
}

// ListConversations handles GET /v1/conversations
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	convs, err := h.conversations.List(r.Context(), authInfo.UserID, limit)
	if err != nil {
		slog.Error("conversation list failed", "request_id", reqID, "user_id", authInfo.UserID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to list conversations")
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, conversationList{Conversations: convs})
}

// GetConversation handles GET /v1/conversations/{id}. The body carries the
// conversation plus its recent turns.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid conversation id")
		return
	}

	conv, err := h.conversations.Get(r.Context(), authInfo.UserID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteNotFoundError(w, reqID, "Conversation not found")
			return
		}
		slog.Error("conversation get failed", "request_id", reqID, "conversation_id", id, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to load conversation")
		return
	}

	n := h.routing().HistoryTurns
	if n <= 0 {
		n = 10
	}
	turns, err := h.conversations.RecentTurns(r.Context(), id, n)
	if err != nil {
		slog.Error("turn load failed", "request_id", reqID, "conversation_id", id, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to load conversation")
		return
	}
	if turns == nil {
		turns = []store.Turn{}
	}
	writeJSON(w, http.StatusOK, conversationDetail{Conversation: *conv, Turns: turns})
}

// DeleteConversation handles DELETE /v1/conversations/{id}
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid conversation id")
		return
	}

	if err := h.conversations.Delete(r.Context(), authInfo.UserID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteNotFoundError(w, reqID, "Conversation not found")
			return
		}
		slog.Error("conversation delete failed", "request_id", reqID, "conversation_id", id, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListModels handles GET /v1/models. It reports the registered providers and
// their configured models; it does not hit provider discovery endpoints.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	if _, ok := auth.AuthFromContext(r.Context()); !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	provCfg := h.providersCfg()
	models := []modelObject{}
	for name, cfg := range provCfg.Providers {
		adapter, ok := h.registry.Get(name)
		if !ok {
			continue
		}
		caps := adapter.Capabilities()
		models = append(models, modelObject{
			ID:       cfg.Model,
			Object:   "model",
			Provider: name,
			Vision:   caps.Vision,
		})
	}
	writeJSON(w, http.StatusOK, modelListResponse{Object: "list", Data: models})
}

type conversationList struct {
	Conversations []store.Conversation `json:"conversations"`
}

type conversationDetail struct {
	Conversation store.Conversation `json:"conversation"`
	Turns        []store.Turn       `json:"turns"`
}

type modelObject struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Provider string `json:"provider"`
	Vision   bool   `json:"vision"`
}

type modelListResponse struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
