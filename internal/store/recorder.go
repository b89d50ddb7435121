// ABOUTME: Recorder mirrors manager state changes into the archive store
// ABOUTME: Write-through on events; archive failures are logged, never surfaced to callers

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/OHMS-DeAI/ohms-gateway/internal/conversation"
)

// Recorder persists conversation activity as it happens. It listens for
// manager events and writes sessions, messages, and usage rows to the
// store. The manager's in-memory state stays authoritative; the archive
// is a trailing copy, and persistence failures do not affect the
// conversation flow.
type Recorder struct {
	store   Store
	mgr     *conversation.Manager
	logger  *slog.Logger
	cancels []func()
}

// NewRecorder attaches a recorder to the manager's event feed. Call
// Detach to stop recording.
func NewRecorder(st Store, mgr *conversation.Manager, logger *slog.Logger) *Recorder {
	r := &Recorder{
		store:  st,
		mgr:    mgr,
		logger: logger.With("component", "recorder"),
	}
	r.cancels = append(r.cancels,
		mgr.On(conversation.EventConversationCreated, r.onCreated),
		mgr.On(conversation.EventMessage, r.onMessage),
	)
	return r
}

// Detach unsubscribes the recorder from the manager. The archive keeps
// whatever was written; deleting a conversation never purges its rows.
func (r *Recorder) Detach() {
	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil
}

func (r *Recorder) onCreated(ev conversation.Event) {
	sess, ok := ev.Data.(*conversation.Session)
	if !ok {
		r.logger.Warn("unexpected payload for conversation_created event", "session_id", ev.SessionID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.SaveSession(ctx, sessionRow(sess)); err != nil {
		r.logger.Error("failed to archive new session", "session_id", sess.ID, "error", err)
	}
}

func (r *Recorder) onMessage(ev conversation.Event) {
	pair, ok := ev.Data.(conversation.MessagePair)
	if !ok {
		r.logger.Warn("unexpected payload for message event", "session_id", ev.SessionID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, msg := range []conversation.Message{pair.User, pair.Assistant} {
		row := &Message{
			ID:        uuid.New().String(),
			SessionID: ev.SessionID,
			Role:      string(msg.Role),
			Content:   msg.Content,
			Model:     msg.Model,
			CreatedAt: msg.Timestamp,
		}
		if err := r.store.SaveMessage(ctx, row); err != nil {
			r.logger.Error("failed to archive message",
				"session_id", ev.SessionID, "role", row.Role, "error", err)
		}
	}

	usage := &Usage{
		ID:           uuid.New().String(),
		SessionID:    ev.SessionID,
		Model:        pair.Assistant.Model,
		InputTokens:  int64(conversation.EstimateTokens(pair.User.Content)),
		OutputTokens: int64(conversation.EstimateTokens(pair.Assistant.Content)),
		CreatedAt:    pair.Assistant.Timestamp,
	}
	if err := r.store.SaveUsage(ctx, usage); err != nil {
		r.logger.Error("failed to archive token usage", "session_id", ev.SessionID, "error", err)
	}

	// Refresh the session row with the post-exchange totals.
	sess, err := r.mgr.GetConversation(ev.SessionID)
	if err != nil {
		// Deleted between the event and now; the archived rows stand.
		r.logger.Debug("session gone before archive refresh", "session_id", ev.SessionID)
		return
	}
	if err := r.store.SaveSession(ctx, sessionRow(sess)); err != nil {
		r.logger.Error("failed to refresh archived session", "session_id", sess.ID, "error", err)
	}
}

func sessionRow(sess *conversation.Session) *Session {
	return &Session{
		ID:            sess.ID,
		Owner:         sess.Owner,
		Model:         sess.Model,
		CreatedAt:     sess.CreatedAt,
		LastActivity:  sess.LastActivity,
		InputTokens:   int64(sess.Usage.InputTokens),
		OutputTokens:  int64(sess.Usage.OutputTokens),
		TotalTokens:   int64(sess.Usage.TotalTokens),
		EstimatedCost: sess.Usage.EstimatedCost,
	}
}
