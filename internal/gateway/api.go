// ABOUTME: HTTP API handlers for the conversation endpoints
// ABOUTME: JSON in/out, with error kinds mapped onto HTTP status codes

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/OHMS-DeAI/ohms-gateway/internal/conversation"
	"github.com/OHMS-DeAI/ohms-gateway/internal/store"
)

// CreateConversationRequest is the JSON request body for POST /api/conversations.
type CreateConversationRequest struct {
	Model string `json:"model"`
}

// SendMessageRequest is the JSON request body for POST /api/conversations/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SwitchModelRequest is the JSON request body for POST /api/conversations/{id}/model.
type SwitchModelRequest struct {
	Model string `json:"model"`
}

// ModelResponse is one catalog entry in GET /api/models.
type ModelResponse struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"display_name"`
	Description     string   `json:"description,omitempty"`
	Capabilities    []string `json:"capabilities,omitempty"`
	Available       bool     `json:"available"`
	RatePerKilotoks float64  `json:"rate_per_kilotokens"`
}

// UsageResponse is a session's token accounting in JSON form.
type UsageResponse struct {
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	TotalTokens   int     `json:"total_tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// MessageResponse is one history entry in JSON form.
type MessageResponse struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Model     string `json:"model"`
	Timestamp string `json:"timestamp"`
}

// ConversationResponse is a session snapshot in JSON form. Messages are
// only populated for single-conversation reads.
type ConversationResponse struct {
	ID           string            `json:"id"`
	Owner        string            `json:"owner"`
	Model        string            `json:"model"`
	CreatedAt    string            `json:"created_at"`
	LastActivity string            `json:"last_activity"`
	Busy         bool              `json:"busy"`
	MessageCount int               `json:"message_count"`
	Usage        UsageResponse     `json:"usage"`
	Messages     []MessageResponse `json:"messages,omitempty"`
}

// ExchangeResponse is the result of one send: the user message and the
// assistant reply.
type ExchangeResponse struct {
	User      MessageResponse `json:"user"`
	Assistant MessageResponse `json:"assistant"`
}

// QuotaResponse is the backend-reported allowance in JSON form.
type QuotaResponse struct {
	TokensUsed   int64  `json:"tokens_used"`
	TokenLimit   int64  `json:"token_limit"`
	MessagesUsed int64  `json:"messages_used"`
	MessageLimit int64  `json:"message_limit"`
	UpdatedAt    string `json:"updated_at"`
}

// statusForKind maps a conversation error classification to an HTTP status.
func statusForKind(err error) int {
	switch conversation.KindOf(err) {
	case conversation.KindNotInitialized:
		return http.StatusServiceUnavailable
	case conversation.KindInvalidModel:
		return http.StatusBadRequest
	case conversation.KindNoActiveConversation:
		return http.StatusConflict
	case conversation.KindSessionNotFound:
		return http.StatusNotFound
	case conversation.KindBackendUnavailable:
		return http.StatusBadGateway
	case conversation.KindRateLimitExceeded, conversation.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case conversation.KindAuthenticationFailed:
		return http.StatusUnauthorized
	case conversation.KindContentFiltered:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}

// sendConversationError maps a manager error to its HTTP status.
func (g *Gateway) sendConversationError(w http.ResponseWriter, err error) {
	g.sendJSONError(w, statusForKind(err), err.Error())
}

func messageResponse(m conversation.Message) MessageResponse {
	return MessageResponse{
		Role:      string(m.Role),
		Content:   m.Content,
		Model:     m.Model,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func conversationResponse(s *conversation.Session, includeMessages bool) ConversationResponse {
	resp := ConversationResponse{
		ID:           s.ID,
		Owner:        s.Owner,
		Model:        s.Model,
		CreatedAt:    s.CreatedAt.UTC().Format(time.RFC3339Nano),
		LastActivity: s.LastActivity.UTC().Format(time.RFC3339Nano),
		Busy:         s.Busy,
		MessageCount: len(s.Messages),
		Usage: UsageResponse{
			InputTokens:   s.Usage.InputTokens,
			OutputTokens:  s.Usage.OutputTokens,
			TotalTokens:   s.Usage.TotalTokens,
			EstimatedCost: s.Usage.EstimatedCost,
		},
	}
	if includeMessages {
		resp.Messages = make([]MessageResponse, len(s.Messages))
		for i, m := range s.Messages {
			resp.Messages[i] = messageResponse(m)
		}
	}
	return resp
}

// handleModels handles GET /api/models.
func (g *Gateway) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	models := g.manager.Models()
	out := make([]ModelResponse, len(models))
	for i, m := range models {
		out[i] = ModelResponse{
			ID:              m.ID,
			DisplayName:     m.DisplayName,
			Description:     m.Description,
			Capabilities:    m.Capabilities,
			Available:       m.Available,
			RatePerKilotoks: m.RatePerKilotoks,
		}
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"models": out})
}

// handleQuota handles GET /api/quota.
func (g *Gateway) handleQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	q := g.manager.Quota()
	if q == nil {
		g.sendJSONError(w, http.StatusNotFound, "quota not loaded")
		return
	}
	g.writeJSON(w, http.StatusOK, QuotaResponse{
		TokensUsed:   q.TokensUsed,
		TokenLimit:   q.TokenLimit,
		MessagesUsed: q.MessagesUsed,
		MessageLimit: q.MessageLimit,
		UpdatedAt:    q.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// handleUsageStats handles GET /api/usage with optional model, since, and
// until query parameters.
func (g *Gateway) handleUsageStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var filter store.UsageFilter
	if model := r.URL.Query().Get("model"); model != "" {
		filter.Model = &model
	}
	for param, dst := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		if raw := r.URL.Query().Get(param); raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				g.sendJSONError(w, http.StatusBadRequest, param+" must be RFC3339")
				return
			}
			*dst = &ts
		}
	}

	stats, err := g.store.GetUsageStats(r.Context(), filter)
	if err != nil {
		g.logger.Error("usage stats query failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"total_input_tokens":  stats.TotalInput,
		"total_output_tokens": stats.TotalOutput,
		"total_tokens":        stats.TotalTokens,
		"exchange_count":      stats.ExchangeCount,
	})
}

// handleConversations handles /api/conversations: GET lists, POST creates.
func (g *Gateway) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sessions := g.manager.GetConversations()
		out := make([]ConversationResponse, len(sessions))
		for i, s := range sessions {
			out[i] = conversationResponse(s, false)
		}
		g.writeJSON(w, http.StatusOK, map[string]any{"conversations": out})

	case http.MethodPost:
		req, err := decodeCreateRequest(r.Body)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		sess, err := g.manager.CreateConversation(req.Model)
		if err != nil {
			g.sendConversationError(w, err)
			return
		}
		g.writeJSON(w, http.StatusCreated, conversationResponse(sess, true))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleConversationRoutes dispatches /api/conversations/{id}[/...] paths.
func (g *Gateway) handleConversationRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		g.sendJSONError(w, http.StatusBadRequest, "conversation id is required")
		return
	}

	switch sub {
	case "":
		g.handleConversation(w, r, id)
	case "messages":
		g.handleConversationMessages(w, r, id)
	case "model":
		g.handleConversationModel(w, r, id)
	case "transcript":
		g.handleConversationTranscript(w, r, id)
	default:
		g.sendJSONError(w, http.StatusNotFound, "unknown endpoint")
	}
}

// handleConversation handles GET and DELETE on /api/conversations/{id}.
func (g *Gateway) handleConversation(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		sess, err := g.manager.GetConversation(id)
		if err != nil {
			g.sendConversationError(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, conversationResponse(sess, true))

	case http.MethodDelete:
		// Idempotent: deleting an unknown id is still a 204. The archive
		// keeps its copy either way.
		g.manager.DeleteConversation(id)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleConversationMessages handles POST /api/conversations/{id}/messages.
// The message is bound to the addressed conversation; the active pointer is
// never consulted, so concurrent requests to different ids cannot cross.
func (g *Gateway) handleConversationMessages(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		g.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}

	pair, err := g.manager.SendMessageTo(r.Context(), id, req.Content)
	if err != nil {
		g.sendConversationError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, ExchangeResponse{
		User:      messageResponse(pair.User),
		Assistant: messageResponse(pair.Assistant),
	})
}

// handleConversationModel handles POST /api/conversations/{id}/model.
func (g *Gateway) handleConversationModel(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req SwitchModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Model == "" {
		g.sendJSONError(w, http.StatusBadRequest, "model is required")
		return
	}

	if err := g.manager.SwitchModelOn(id, req.Model); err != nil {
		g.sendConversationError(w, err)
		return
	}
	sess, err := g.manager.GetConversation(id)
	if err != nil {
		g.sendConversationError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, conversationResponse(sess, false))
}

// decodeCreateRequest parses and validates a CreateConversationRequest.
func decodeCreateRequest(r io.Reader) (*CreateConversationRequest, error) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if req.Model == "" {
		return nil, errors.New("model is required")
	}
	return &req, nil
}
