// ABOUTME: Store interface and archive row types for gateway persistence
// ABOUTME: Defines Session, Message, Usage rows and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Session is the archived snapshot of one conversation's accounting state.
type Session struct {
	ID            string
	Owner         string
	Model         string
	CreatedAt     time.Time
	LastActivity  time.Time
	InputTokens   int64
	OutputTokens  int64
	TotalTokens   int64
	EstimatedCost float64
}

// Message is one archived history entry.
type Message struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	Model     string
	CreatedAt time.Time
}

// Usage is one exchange's token consumption.
type Usage struct {
	ID           string
	SessionID    string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CreatedAt    time.Time
}

// UsageFilter narrows a usage aggregation.
type UsageFilter struct {
	Model *string
	Since *time.Time
	Until *time.Time
}

// UsageStats is an aggregated usage report.
type UsageStats struct {
	TotalInput    int64
	TotalOutput   int64
	TotalTokens   int64
	ExchangeCount int64
}

// Store is the persistence interface for the conversation archive.
type Store interface {
	// Sessions (SaveSession upserts; DeleteSession also removes the
	// session's messages and usage rows)
	SaveSession(ctx context.Context, sess *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]*Session, error)
	DeleteSession(ctx context.Context, id string) error

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	GetSessionMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error)

	// Token usage
	SaveUsage(ctx context.Context, usage *Usage) error
	GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error)

	// Close releases any resources held by the store
	Close() error
}
