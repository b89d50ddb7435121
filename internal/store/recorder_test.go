// ABOUTME: Tests for the event-driven archive recorder
// ABOUTME: Drives a real manager through create/send and checks the archived rows

package store

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OHMS-DeAI/ohms-gateway/internal/conversation"
)

type stubBackend struct {
	reply string
}

func (b *stubBackend) Owner() string { return "2vxsx-fae" }

func (b *stubBackend) ListModels(ctx context.Context) ([]conversation.ModelInfo, error) {
	return []conversation.ModelInfo{
		{ID: "llama-3.1-8b", DisplayName: "Llama 3.1 8B", Available: true},
	}, nil
}

func (b *stubBackend) Chat(ctx context.Context, req conversation.ChatRequest) (string, error) {
	return b.reply, nil
}

func (b *stubBackend) QuotaStatus(ctx context.Context) (*conversation.Quota, error) {
	return nil, nil
}

func newRecordedManager(t *testing.T) (*conversation.Manager, *SQLiteStore) {
	t.Helper()
	st := newTestStore(t)
	mgr := conversation.NewManager(slog.Default())
	require.NoError(t, mgr.Initialize(context.Background(), &stubBackend{reply: "hello there"}))

	rec := NewRecorder(st, mgr, slog.Default())
	t.Cleanup(rec.Detach)
	return mgr, st
}

func TestRecorderArchivesNewSession(t *testing.T) {
	mgr, st := newRecordedManager(t)

	sess, err := mgr.CreateConversation("llama-3.1-8b")
	require.NoError(t, err)

	// Callbacks run synchronously on the emitting goroutine, so the row
	// is visible as soon as CreateConversation returns.
	row, err := st.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "2vxsx-fae", row.Owner)
	assert.Equal(t, "llama-3.1-8b", row.Model)
	assert.Equal(t, int64(0), row.TotalTokens)
}

func TestRecorderArchivesExchange(t *testing.T) {
	mgr, st := newRecordedManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateConversation("llama-3.1-8b")
	require.NoError(t, err)

	pair, err := mgr.SendMessage(ctx, "hi")
	require.NoError(t, err)

	msgs, err := st.GetSessionMessages(ctx, sess.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "hello there", msgs[1].Content)

	stats, err := st.GetUsageStats(ctx, UsageFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ExchangeCount)
	assert.Equal(t, int64(conversation.EstimateTokens(pair.User.Content)), stats.TotalInput)
	assert.Equal(t, int64(conversation.EstimateTokens(pair.Assistant.Content)), stats.TotalOutput)

	// Session row reflects the post-exchange totals.
	row, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, stats.TotalTokens, row.TotalTokens)
	assert.True(t, row.LastActivity.After(row.CreatedAt))
}

func TestRecorderSurvivesDelete(t *testing.T) {
	mgr, st := newRecordedManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateConversation("llama-3.1-8b")
	require.NoError(t, err)
	_, err = mgr.SendMessage(ctx, "hi")
	require.NoError(t, err)

	// Deleting the live conversation never purges the archive.
	mgr.DeleteConversation(sess.ID)

	row, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, row.ID)

	msgs, err := st.GetSessionMessages(ctx, sess.ID, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestRecorderDetachStopsRecording(t *testing.T) {
	st := newTestStore(t)
	mgr := conversation.NewManager(slog.Default())
	require.NoError(t, mgr.Initialize(context.Background(), &stubBackend{reply: "ok"}))

	rec := NewRecorder(st, mgr, slog.Default())
	rec.Detach()

	sess, err := mgr.CreateConversation("llama-3.1-8b")
	require.NoError(t, err)

	_, err = st.GetSession(context.Background(), sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
