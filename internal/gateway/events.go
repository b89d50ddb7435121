// ABOUTME: Server-Sent Events bridge from the manager's event feed to HTTP clients
// ABOUTME: GET /api/events streams conversation activity until the client disconnects

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/OHMS-DeAI/ohms-gateway/internal/conversation"
)

// SSEEvent represents a Server-Sent Event.
type SSEEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// sseEventTypes are the manager event types streamed to clients.
var sseEventTypes = []conversation.EventType{
	conversation.EventConversationCreated,
	conversation.EventMessage,
	conversation.EventModelSwitched,
	conversation.EventError,
	conversation.EventQuotaUpdated,
}

// handleEvents handles GET /api/events as an SSE stream. Manager callbacks
// run on the emitting goroutine, so events go through a buffered channel;
// a slow client drops events rather than blocking sends.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events := make(chan conversation.Event, 64)
	var unsubs []func()
	for _, t := range sseEventTypes {
		unsubs = append(unsubs, g.manager.On(t, func(ev conversation.Event) {
			select {
			case events <- ev:
			default:
				g.logger.Warn("dropping event for slow SSE client", "event_type", string(ev.Type))
			}
		}))
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "connected", map[string]string{"status": "ok"})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			sse := managerEventToSSE(ev)
			g.writeSSEEvent(w, sse.Event, sse.Data)
			flusher.Flush()
		}
	}
}

// managerEventToSSE converts a manager event payload to a JSON-friendly shape.
func managerEventToSSE(ev conversation.Event) SSEEvent {
	out := SSEEvent{Event: string(ev.Type)}

	switch data := ev.Data.(type) {
	case *conversation.Session:
		out.Data = conversationResponse(data, false)
	case conversation.MessagePair:
		out.Data = map[string]any{
			"session_id": ev.SessionID,
			"user":       messageResponse(data.User),
			"assistant":  messageResponse(data.Assistant),
		}
	case conversation.ModelSwitch:
		out.Data = map[string]string{
			"session_id": ev.SessionID,
			"from":       data.From,
			"to":         data.To,
		}
	case *conversation.Error:
		out.Data = map[string]string{
			"session_id": ev.SessionID,
			"kind":       string(data.Kind),
			"error":      data.Error(),
		}
	case conversation.Quota:
		out.Data = QuotaResponse{
			TokensUsed:   data.TokensUsed,
			TokenLimit:   data.TokenLimit,
			MessagesUsed: data.MessagesUsed,
			MessageLimit: data.MessageLimit,
			UpdatedAt:    data.UpdatedAt.UTC().Format(time.RFC3339Nano),
		}
	default:
		out.Data = map[string]string{"session_id": ev.SessionID}
	}
	return out
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
