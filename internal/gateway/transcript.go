// ABOUTME: Transcript rendering for GET /api/conversations/{id}/transcript
// ABOUTME: Builds a markdown transcript and converts it to HTML with goldmark

package gateway

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/OHMS-DeAI/ohms-gateway/internal/conversation"
)

// buildTranscriptMarkdown renders a session's history as markdown. Model
// replies are written verbatim, so markdown in the reply text renders.
func buildTranscriptMarkdown(sess *conversation.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Conversation %s\n\n", sess.ID)
	fmt.Fprintf(&b, "Model: `%s` · Messages: %d · Tokens: %d\n\n",
		sess.Model, len(sess.Messages), sess.Usage.TotalTokens)

	for _, msg := range sess.Messages {
		var heading string
		switch msg.Role {
		case conversation.RoleUser:
			heading = "You"
		case conversation.RoleAssistant:
			heading = msg.Model
		default:
			heading = string(msg.Role)
		}
		fmt.Fprintf(&b, "## %s — %s\n\n", heading, msg.Timestamp.UTC().Format(time.RFC3339))
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

// handleConversationTranscript handles GET /api/conversations/{id}/transcript.
// Responds with HTML by default, or raw markdown when format=markdown.
func (g *Gateway) handleConversationTranscript(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sess, err := g.manager.GetConversation(id)
	if err != nil {
		g.sendConversationError(w, err)
		return
	}

	md := buildTranscriptMarkdown(sess)
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(md))
		return
	}

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &htmlBuf); err != nil {
		g.logger.Error("failed to convert transcript markdown", "session_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to render transcript")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(htmlBuf.Bytes())
}
