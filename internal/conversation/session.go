// ABOUTME: Session, Message, and token accounting types for conversations
// ABOUTME: Sessions are owned by the Manager; callers only ever see snapshots

package conversation

import "time"

// Role identifies who produced a message. Fixed at creation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single immutable entry in a session's history. Model records
// the model in effect when the message was produced; it may differ from the
// session's current model after a switch.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
	Model     string
}

// TokenUsage holds a session's running totals. Totals are monotonically
// non-decreasing for the session's lifetime, and TotalTokens always equals
// InputTokens + OutputTokens.
type TokenUsage struct {
	InputTokens   int
	OutputTokens  int
	TotalTokens   int
	EstimatedCost float64
}

// Session is one conversation thread: an owner, a current model, an
// append-only message history, and accumulated token usage.
type Session struct {
	ID           string
	Owner        string
	Model        string
	Messages     []Message
	CreatedAt    time.Time
	LastActivity time.Time
	Usage        TokenUsage
	Busy         bool
}

// clone returns a snapshot safe to hand outside the manager's lock.
func (s *Session) clone() *Session {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return &out
}

// ModelInfo describes one entry of the backend's model catalog. The catalog
// is the sole source of truth for model validation.
type ModelInfo struct {
	ID              string
	DisplayName     string
	Description     string
	Capabilities    []string
	Available       bool
	RatePerKilotoks float64 // per-1000-token cost; 0 for all current models
}

// Quota is the caller's backend-reported allowance.
type Quota struct {
	TokensUsed   int64
	TokenLimit   int64
	MessagesUsed int64
	MessageLimit int64
	UpdatedAt    time.Time
}

// MessagePair is the payload of a message event: the user message and the
// assistant reply from one successful exchange.
type MessagePair struct {
	User      Message
	Assistant Message
}

// ModelSwitch is the payload of a model_switched event.
type ModelSwitch struct {
	From string
	To   string
}
