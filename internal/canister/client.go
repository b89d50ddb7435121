// ABOUTME: Client frames conversation backend calls as JSON envelopes over the transport adapter
// ABOUTME: Classifies canister error codes into the conversation error taxonomy

package canister

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/OHMS-DeAI/ohms-gateway/internal/cache"
	"github.com/OHMS-DeAI/ohms-gateway/internal/conversation"
	"github.com/OHMS-DeAI/ohms-gateway/internal/transport"
)

// Transport is what the client needs from the adapter layer.
type Transport interface {
	Call(ctx context.Context, destination any, opts transport.CallOptions) ([]byte, error)
	Query(ctx context.Context, destination any, fields map[string]any) (*transport.QueryResponse, error)
	Identity() *transport.Identity
}

// Client implements conversation.Backend against one model canister.
type Client struct {
	t          Transport
	canisterID transport.Principal
	quotaCache *cache.TTL // nil unless EnableQuotaCache was called
	logger     *slog.Logger
}

// NewClient builds a client for the canister identified by canisterID in
// canonical text form.
func NewClient(t Transport, canisterID string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p, err := transport.PrincipalFromText(canisterID)
	if err != nil {
		return nil, fmt.Errorf("canister id: %w", err)
	}
	return &Client{
		t:          t,
		canisterID: p,
		logger:     logger.With("component", "canister", "canister_id", canisterID),
	}, nil
}

// EnableQuotaCache caches quota lookups per caller for ttl, so frequent
// sends don't hammer the canister with quota_status queries.
func (c *Client) EnableQuotaCache(ttl time.Duration) {
	c.quotaCache = cache.New(ttl, 1024)
}

// Close releases the quota cache's cleanup goroutine, if one was enabled.
func (c *Client) Close() {
	if c.quotaCache != nil {
		c.quotaCache.Close()
	}
}

// Owner returns the bound caller principal, or the anonymous principal
// when no identity is bound yet.
func (c *Client) Owner() string {
	if id := c.t.Identity(); id != nil {
		return id.Principal.String()
	}
	return transport.AnonymousPrincipal
}

// modelEntry is the canister's catalog wire shape.
type modelEntry struct {
	ModelID         string   `json:"model_id"`
	DisplayName     string   `json:"display_name"`
	Description     string   `json:"description"`
	Capabilities    []string `json:"capabilities"`
	IsAvailable     bool     `json:"is_available"`
	RatePerKilotoks float64  `json:"rate_per_kilotokens"`
}

// ListModels queries the canister's model catalog.
func (c *Client) ListModels(ctx context.Context) ([]conversation.ModelInfo, error) {
	resp, err := c.t.Query(ctx, c.canisterID, map[string]any{"method_name": "list_models"})
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	if len(resp.Reply) == 0 {
		return nil, conversation.NewError(conversation.KindBackendUnavailable, "empty reply from canister")
	}

	var envelope struct {
		Models []modelEntry `json:"models"`
	}
	if err := json.Unmarshal(resp.Reply, &envelope); err != nil {
		return nil, fmt.Errorf("decoding model catalog: %w", err)
	}

	models := make([]conversation.ModelInfo, 0, len(envelope.Models))
	for _, m := range envelope.Models {
		models = append(models, conversation.ModelInfo{
			ID:              m.ModelID,
			DisplayName:     m.DisplayName,
			Description:     m.Description,
			Capabilities:    m.Capabilities,
			Available:       m.IsAvailable,
			RatePerKilotoks: m.RatePerKilotoks,
		})
	}

	c.logger.Debug("model catalog loaded", "models", len(models))
	return models, nil
}

// Chat performs one update call round trip and returns the assistant reply.
func (c *Client) Chat(ctx context.Context, req conversation.ChatRequest) (string, error) {
	arg, err := json.Marshal(map[string]string{
		"session_id": req.SessionID,
		"model":      req.Model,
		"prompt":     req.Prompt,
		"principal":  c.Owner(),
	})
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	reply, err := c.t.Call(ctx, c.canisterID, transport.CallOptions{Method: "chat", Arg: arg})
	if err != nil {
		return "", classifyTransportErr(err)
	}

	var envelope struct {
		Reply string `json:"reply"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(reply, &envelope); err != nil {
		return "", fmt.Errorf("decoding chat reply: %w", err)
	}
	if envelope.Error != nil {
		return "", conversation.NewError(classifyCode(envelope.Error.Code), "%s", envelope.Error.Message)
	}
	return envelope.Reply, nil
}

// QuotaStatus queries the caller's current allowance. With a quota cache
// enabled, results are reused within the cache window.
func (c *Client) QuotaStatus(ctx context.Context) (*conversation.Quota, error) {
	owner := c.Owner()
	if c.quotaCache != nil {
		if cached, ok := c.quotaCache.Get(owner); ok {
			q := *(cached.(*conversation.Quota))
			return &q, nil
		}
	}

	resp, err := c.t.Query(ctx, c.canisterID, map[string]any{
		"method_name": "quota_status",
		"principal":   owner,
	})
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	if len(resp.Reply) == 0 {
		return nil, conversation.NewError(conversation.KindBackendUnavailable, "empty reply from canister")
	}

	var wire struct {
		TokensUsed   int64 `json:"tokens_used"`
		TokenLimit   int64 `json:"token_limit"`
		MessagesUsed int64 `json:"messages_used"`
		MessageLimit int64 `json:"message_limit"`
	}
	if err := json.Unmarshal(resp.Reply, &wire); err != nil {
		return nil, fmt.Errorf("decoding quota status: %w", err)
	}

	q := &conversation.Quota{
		TokensUsed:   wire.TokensUsed,
		TokenLimit:   wire.TokenLimit,
		MessagesUsed: wire.MessagesUsed,
		MessageLimit: wire.MessageLimit,
		UpdatedAt:    time.Now(),
	}
	if c.quotaCache != nil {
		c.quotaCache.Set(owner, q)
	}
	return q, nil
}

// classifyCode maps a canister error code to a taxonomy kind.
func classifyCode(code string) conversation.Kind {
	switch code {
	case "rate_limited":
		return conversation.KindRateLimitExceeded
	case "quota_exceeded":
		return conversation.KindQuotaExceeded
	case "unauthorized", "authentication_failed":
		return conversation.KindAuthenticationFailed
	case "content_filtered":
		return conversation.KindContentFiltered
	case "unavailable":
		return conversation.KindBackendUnavailable
	default:
		return conversation.KindInternalError
	}
}

// classifyTransportErr surfaces a classification already present in a
// transport error; everything unclassified stays a plain error for the
// manager to coerce to internal.
func classifyTransportErr(err error) error {
	if conversation.KindOf(err) != conversation.KindInternalError {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"):
		return conversation.WrapError(conversation.KindRateLimitExceeded, err, "canister call rejected")
	case strings.Contains(msg, "quota"):
		return conversation.WrapError(conversation.KindQuotaExceeded, err, "canister call rejected")
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"):
		return conversation.WrapError(conversation.KindBackendUnavailable, err, "canister unreachable")
	default:
		return err
	}
}
