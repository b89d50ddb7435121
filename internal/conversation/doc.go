// Package conversation owns all active LLM conversations for a gateway
// instance: session state, message history, token accounting, and the
// event feed UIs subscribe to.
//
// # Manager
//
// The Manager is the single authoritative owner of the session collection.
// It is constructed explicitly and injected — there is no package-level
// instance — so tests build a fresh manager per case:
//
//	m := conversation.NewManager(logger)
//	if err := m.Initialize(ctx, backend); err != nil { ... }
//	sess, err := m.CreateConversation("ohms-7b")
//	reply, err := m.SendMessage(ctx, "hello")
//
// All mutation goes through manager operations. Reads return snapshots;
// callers never see live message slices.
//
// # Sending
//
// SendMessage appends the user message optimistically, performs one backend
// round trip, then appends the assistant reply. On backend failure the user
// message stays in history — there is no rollback — and an error event
// fires. Sends on the same session are serialized: a second SendMessage
// issued before the first resolves waits its turn, so assistant replies can
// never reorder against their user messages.
//
// # Token accounting
//
// Token counts use a fixed 4-bytes-per-token heuristic over the UTF-8 text
// of each exchange. This is a local approximation for quota display, not
// model-accurate tokenization. Cost is (total/1000) × the model's per-kilo
// rate, which is zero for every currently supported model.
//
// # Events
//
// On(type, fn) subscribes fn and returns an unsubscribe function. Unlike
// the single-listener bus this replaces, subscriptions fan out: every
// registered listener for a type receives every event. Callbacks run
// synchronously on the emitting goroutine and must not block.
package conversation
