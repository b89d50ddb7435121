// ABOUTME: Manager is the single authoritative owner of all active conversations
// ABOUTME: Sole point of mutation for session state and token accounting, sole emitter of events

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ChatRequest is one backend round trip: a prompt for a model within a session.
type ChatRequest struct {
	SessionID string
	Model     string
	Prompt    string
}

// Backend is the call strategy the manager performs its round trips
// through. The production implementation sits on the transport adapter;
// tests substitute their own.
type Backend interface {
	// Owner returns the canonical text form of the caller identity bound
	// to the underlying transport.
	Owner() string
	ListModels(ctx context.Context) ([]ModelInfo, error)
	Chat(ctx context.Context, req ChatRequest) (string, error)
	QuotaStatus(ctx context.Context) (*Quota, error)
}

// sessionState pairs a session with its send queue. sendMu serializes
// SendMessage per session so only one backend round trip is outstanding at
// a time; later sends wait for earlier ones.
type sessionState struct {
	sendMu sync.Mutex
	sess   *Session
}

// Manager owns the session collection. Construct one per consumer with
// NewManager; there is no shared instance.
type Manager struct {
	mu        sync.RWMutex
	backend   Backend
	owner     string
	sessions  map[string]*sessionState
	activeID  string
	models    []ModelInfo
	quota     *Quota
	lastErr   error
	lastStamp time.Time

	seq    atomic.Uint64
	events *eventBus
	logger *slog.Logger
}

// NewManager creates an uninitialized manager. Every operation other than
// On fails with KindNotInitialized until Initialize succeeds.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "conversation")
	return &Manager{
		sessions: make(map[string]*sessionState),
		events:   newEventBus(logger),
		logger:   logger,
	}
}

// Initialize binds the manager to a backend and loads the model catalog,
// which becomes the sole source of truth for model validation. Fails with
// KindBackendUnavailable when the backend cannot be reached.
func (m *Manager) Initialize(ctx context.Context, backend Backend) error {
	if backend == nil {
		return m.syncFail(NewError(KindInternalError, "backend is nil"))
	}

	models, err := backend.ListModels(ctx)
	if err != nil {
		cerr := WrapError(KindBackendUnavailable, err, "loading model catalog")
		m.mu.Lock()
		m.lastErr = cerr
		m.mu.Unlock()
		m.events.emit(Event{Type: EventError, Data: cerr})
		return cerr
	}

	m.mu.Lock()
	m.backend = backend
	m.owner = backend.Owner()
	m.models = models
	m.lastErr = nil
	m.mu.Unlock()

	m.logger.Info("conversation manager initialized",
		"owner", backend.Owner(),
		"models", len(models))

	m.refreshQuota(ctx, backend)
	return nil
}

// CreateConversation registers a new empty session for model and makes it
// the active session. The id stays unique under interleaved calls: a
// monotonic counter plus a random suffix, never wall-clock alone.
func (m *Manager) CreateConversation(model string) (*Session, error) {
	m.mu.Lock()

	if m.backend == nil {
		return nil, m.syncFailLocked(NewError(KindNotInitialized, "manager is not initialized"))
	}
	if !m.modelAvailableLocked(model) {
		return nil, m.syncFailLocked(NewError(KindInvalidModel, "model %q is not in the catalog or unavailable", model))
	}

	id := fmt.Sprintf("conv_%d_%s", m.seq.Add(1), uuid.New().String()[:8])
	ts := m.now()
	sess := &Session{
		ID:           id,
		Owner:        m.owner,
		Model:        model,
		Messages:     []Message{},
		CreatedAt:    ts,
		LastActivity: ts,
	}
	m.sessions[id] = &sessionState{sess: sess}
	m.activeID = id
	snap := sess.clone()
	m.mu.Unlock()

	m.logger.Debug("conversation created", "session_id", id, "model", model)
	m.events.emit(Event{Type: EventConversationCreated, SessionID: id, Data: snap})
	return snap, nil
}

// SendMessage sends text to the active session's model and returns the
// exchanged pair. The user message is appended optimistically before the
// round trip and survives a backend failure; no assistant message is
// appended in that case.
func (m *Manager) SendMessage(ctx context.Context, text string) (*MessagePair, error) {
	m.mu.Lock()
	if m.backend == nil {
		return nil, m.syncFailLocked(NewError(KindNotInitialized, "manager is not initialized"))
	}
	if m.activeID == "" {
		return nil, m.syncFailLocked(NewError(KindNoActiveConversation, "no active conversation"))
	}
	sessionID := m.activeID
	st := m.sessions[sessionID]
	backend := m.backend
	m.mu.Unlock()

	return m.send(ctx, sessionID, st, backend, text)
}

// SendMessageTo sends text to the session with the given id, regardless of
// which session is active. The session is resolved and the send bound to it
// in one step, so concurrent callers targeting different sessions never
// cross-route. The active pointer is untouched.
func (m *Manager) SendMessageTo(ctx context.Context, id, text string) (*MessagePair, error) {
	m.mu.Lock()
	if m.backend == nil {
		return nil, m.syncFailLocked(NewError(KindNotInitialized, "manager is not initialized"))
	}
	st, ok := m.sessions[id]
	if !ok {
		return nil, m.syncFailLocked(NewError(KindSessionNotFound, "session %s not found", id))
	}
	backend := m.backend
	m.mu.Unlock()

	return m.send(ctx, id, st, backend, text)
}

// send performs the optimistic-append round trip for one resolved session.
func (m *Manager) send(ctx context.Context, sessionID string, st *sessionState, backend Backend, text string) (*MessagePair, error) {
	// One round trip per session at a time; later sends queue here.
	st.sendMu.Lock()
	defer st.sendMu.Unlock()

	m.mu.Lock()
	if _, ok := m.sessions[sessionID]; !ok {
		// Deleted while we waited in the send queue.
		return nil, m.syncFailLocked(NewError(KindSessionNotFound, "session %s no longer exists", sessionID))
	}
	model := st.sess.Model
	userMsg := Message{Role: RoleUser, Content: text, Timestamp: m.now(), Model: model}
	st.sess.Messages = append(st.sess.Messages, userMsg)
	st.sess.Busy = true
	m.mu.Unlock()

	reply, err := backend.Chat(ctx, ChatRequest{SessionID: sessionID, Model: model, Prompt: text})

	m.mu.Lock()
	st.sess.Busy = false
	if err != nil {
		cerr := WrapError(KindInternalError, err, "backend chat failed")
		m.lastErr = cerr
		m.mu.Unlock()
		m.logger.Error("send failed", "session_id", sessionID, "kind", string(cerr.Kind), "error", err)
		m.events.emit(Event{Type: EventError, SessionID: sessionID, Data: cerr})
		return nil, cerr
	}

	asstMsg := Message{Role: RoleAssistant, Content: reply, Timestamp: m.now(), Model: model}
	st.sess.Messages = append(st.sess.Messages, asstMsg)
	st.sess.LastActivity = asstMsg.Timestamp

	usage := &st.sess.Usage
	usage.InputTokens += EstimateTokens(text)
	usage.OutputTokens += EstimateTokens(reply)
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	usage.EstimatedCost = EstimateCost(usage.TotalTokens, m.rateForLocked(model))
	m.lastErr = nil
	m.mu.Unlock()

	pair := MessagePair{User: userMsg, Assistant: asstMsg}
	m.events.emit(Event{Type: EventMessage, SessionID: sessionID, Data: pair})

	m.refreshQuota(ctx, backend)
	return &pair, nil
}

// SwitchModel changes the active session's model. Stored messages keep the
// model they were produced under.
func (m *Manager) SwitchModel(newModel string) error {
	m.mu.Lock()
	if m.backend == nil {
		return m.syncFailLocked(NewError(KindNotInitialized, "manager is not initialized"))
	}
	if m.activeID == "" {
		return m.syncFailLocked(NewError(KindNoActiveConversation, "no active conversation"))
	}
	return m.switchModelLocked(m.activeID, newModel)
}

// SwitchModelOn changes the model of the session with the given id,
// regardless of which session is active. The active pointer is untouched.
func (m *Manager) SwitchModelOn(id, newModel string) error {
	m.mu.Lock()
	if m.backend == nil {
		return m.syncFailLocked(NewError(KindNotInitialized, "manager is not initialized"))
	}
	if _, ok := m.sessions[id]; !ok {
		return m.syncFailLocked(NewError(KindSessionNotFound, "session %s not found", id))
	}
	return m.switchModelLocked(id, newModel)
}

// switchModelLocked validates and applies the switch, releasing m.mu.
func (m *Manager) switchModelLocked(sessionID, newModel string) error {
	if !m.modelAvailableLocked(newModel) {
		return m.syncFailLocked(NewError(KindInvalidModel, "model %q is not in the catalog or unavailable", newModel))
	}

	st := m.sessions[sessionID]
	from := st.sess.Model
	st.sess.Model = newModel
	m.mu.Unlock()

	m.logger.Debug("model switched", "session_id", sessionID, "from", from, "to", newModel)
	m.events.emit(Event{Type: EventModelSwitched, SessionID: sessionID, Data: ModelSwitch{From: from, To: newModel}})
	return nil
}

// Activate makes id the active session. Subsequent sends go to it.
func (m *Manager) Activate(id string) error {
	m.mu.Lock()
	if m.backend == nil {
		return m.syncFailLocked(NewError(KindNotInitialized, "manager is not initialized"))
	}
	if _, ok := m.sessions[id]; !ok {
		return m.syncFailLocked(NewError(KindSessionNotFound, "session %s not found", id))
	}
	m.activeID = id
	m.mu.Unlock()
	return nil
}

// GetConversation returns a snapshot of one session. Pure read: no state
// change, no events.
func (m *Manager) GetConversation(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.sessions[id]
	if !ok {
		return nil, NewError(KindSessionNotFound, "session %s not found", id)
	}
	return st.sess.clone(), nil
}

// GetConversations returns snapshots of every session, oldest first.
func (m *Manager) GetConversations() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, st := range m.sessions {
		out = append(out, st.sess.clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ActiveConversation returns a snapshot of the active session, if any.
func (m *Manager) ActiveConversation() (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.activeID == "" {
		return nil, false
	}
	st, ok := m.sessions[m.activeID]
	if !ok {
		return nil, false
	}
	return st.sess.clone(), true
}

// DeleteConversation removes a session. Deleting the active session clears
// the active pointer; deleting an unknown id is a no-op.
func (m *Manager) DeleteConversation(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return
	}
	delete(m.sessions, id)
	if m.activeID == id {
		m.activeID = ""
	}
	m.logger.Debug("conversation deleted", "session_id", id)
}

// On subscribes fn to one event type and returns an unsubscribe function.
// Subscriptions fan out; see the package documentation.
func (m *Manager) On(t EventType, fn func(Event)) func() {
	return m.events.subscribe(t, fn)
}

// Models returns a copy of the loaded model catalog.
func (m *Manager) Models() []ModelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ModelInfo, len(m.models))
	copy(out, m.models)
	return out
}

// Quota returns the last backend-reported quota, or nil if none was loaded.
func (m *Manager) Quota() *Quota {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.quota == nil {
		return nil
	}
	q := *m.quota
	return &q
}

// LastError returns the most recent operation failure, cleared by the next
// successful send.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// IsInitialized reports whether Initialize has succeeded.
func (m *Manager) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend != nil
}

// refreshQuota reloads the quota after a state change. Best effort: quota
// staleness never fails the operation that triggered the refresh.
func (m *Manager) refreshQuota(ctx context.Context, backend Backend) {
	q, err := backend.QuotaStatus(ctx)
	if err != nil {
		m.logger.Debug("quota refresh failed", "error", err)
		return
	}
	if q == nil {
		return
	}

	m.mu.Lock()
	m.quota = q
	m.mu.Unlock()
	m.events.emit(Event{Type: EventQuotaUpdated, Data: *q})
}

// modelAvailableLocked checks model against the catalog. Callers hold m.mu.
func (m *Manager) modelAvailableLocked(model string) bool {
	for _, mi := range m.models {
		if mi.ID == model {
			return mi.Available
		}
	}
	return false
}

// rateForLocked returns the per-kilo token rate for model. Callers hold m.mu.
func (m *Manager) rateForLocked(model string) float64 {
	for _, mi := range m.models {
		if mi.ID == model {
			return mi.RatePerKilotoks
		}
	}
	return 0
}

// syncFailLocked records a precondition failure and releases m.mu.
// Precondition failures never touch the backend and emit no events.
func (m *Manager) syncFailLocked(e *Error) error {
	m.lastErr = e
	m.mu.Unlock()
	return e
}

// syncFail is syncFailLocked for callers not holding m.mu.
func (m *Manager) syncFail(e *Error) error {
	m.mu.Lock()
	m.lastErr = e
	m.mu.Unlock()
	return e
}

// now returns a strictly increasing timestamp. Wall-clock reads within the
// same tick are nudged forward a nanosecond so message order and
// LastActivity stay strictly monotonic. Callers hold m.mu.
func (m *Manager) now() time.Time {
	t := time.Now()
	if !t.After(m.lastStamp) {
		t = m.lastStamp.Add(time.Nanosecond)
	}
	m.lastStamp = t
	return t
}
