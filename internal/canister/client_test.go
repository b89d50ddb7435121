// ABOUTME: Tests for the canister client and HTTP agent
// ABOUTME: Verifies envelope framing, error-code classification, and boundary HTTP behavior

package canister

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OHMS-DeAI/ohms-gateway/internal/conversation"
	"github.com/OHMS-DeAI/ohms-gateway/internal/transport"
)

// fakeTransport implements Transport with canned replies.
type fakeTransport struct {
	callReply  []byte
	callErr    error
	callOpts   transport.CallOptions
	queryReply []byte
	queryErr   error
	identity   *transport.Identity
}

func (f *fakeTransport) Call(ctx context.Context, destination any, opts transport.CallOptions) ([]byte, error) {
	f.callOpts = opts
	return f.callReply, f.callErr
}

func (f *fakeTransport) Query(ctx context.Context, destination any, fields map[string]any) (*transport.QueryResponse, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &transport.QueryResponse{Reply: f.queryReply, RequestID: "req-1"}, nil
}

func (f *fakeTransport) Identity() *transport.Identity { return f.identity }

func TestNewClient_RejectsBadCanisterID(t *testing.T) {
	_, err := NewClient(&fakeTransport{}, "NOT VALID", nil)
	require.Error(t, err)
}

func TestClient_Owner(t *testing.T) {
	ft := &fakeTransport{}
	c, err := NewClient(ft, "ryjl3-tyaaa-aaaaa-aaaba-cai", nil)
	require.NoError(t, err)
	assert.Equal(t, transport.AnonymousPrincipal, c.Owner(), "anonymous before identity bind")

	p, err := transport.PrincipalFromText("aaaaa-aa")
	require.NoError(t, err)
	ft.identity = &transport.Identity{Principal: p}
	assert.Equal(t, "aaaaa-aa", c.Owner())
}

func TestClient_ListModels(t *testing.T) {
	ft := &fakeTransport{
		queryReply: []byte(`{"models":[{"model_id":"M1","display_name":"Model One","capabilities":["chat"],"is_available":true}]}`),
	}
	c, err := NewClient(ft, "ryjl3-tyaaa-aaaaa-aaaba-cai", nil)
	require.NoError(t, err)

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "M1", models[0].ID)
	assert.Equal(t, "Model One", models[0].DisplayName)
	assert.True(t, models[0].Available)
	assert.Equal(t, 0.0, models[0].RatePerKilotoks)
}

func TestClient_ListModels_EmptyReplyIsBackendUnavailable(t *testing.T) {
	c, err := NewClient(&fakeTransport{queryReply: nil}, "ryjl3-tyaaa-aaaaa-aaaba-cai", nil)
	require.NoError(t, err)

	_, err = c.ListModels(context.Background())
	assert.True(t, conversation.IsKind(err, conversation.KindBackendUnavailable))
}

func TestClient_Chat(t *testing.T) {
	ft := &fakeTransport{callReply: []byte(`{"reply":"hello there"}`)}
	c, err := NewClient(ft, "ryjl3-tyaaa-aaaaa-aaaba-cai", nil)
	require.NoError(t, err)

	reply, err := c.Chat(context.Background(), conversation.ChatRequest{SessionID: "s1", Model: "M1", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)
	assert.Equal(t, "chat", ft.callOpts.Method)

	var arg map[string]string
	require.NoError(t, json.Unmarshal(ft.callOpts.Arg, &arg))
	assert.Equal(t, "s1", arg["session_id"])
	assert.Equal(t, "M1", arg["model"])
	assert.Equal(t, "hi", arg["prompt"])
}

func TestClient_Chat_ClassifiesCanisterErrorCodes(t *testing.T) {
	cases := []struct {
		code string
		want conversation.Kind
	}{
		{"rate_limited", conversation.KindRateLimitExceeded},
		{"quota_exceeded", conversation.KindQuotaExceeded},
		{"unauthorized", conversation.KindAuthenticationFailed},
		{"content_filtered", conversation.KindContentFiltered},
		{"unavailable", conversation.KindBackendUnavailable},
		{"something_else", conversation.KindInternalError},
	}
	for _, tc := range cases {
		ft := &fakeTransport{callReply: []byte(`{"error":{"code":"` + tc.code + `","message":"nope"}}`)}
		c, err := NewClient(ft, "ryjl3-tyaaa-aaaaa-aaaba-cai", nil)
		require.NoError(t, err)

		_, err = c.Chat(context.Background(), conversation.ChatRequest{SessionID: "s1", Model: "M1", Prompt: "hi"})
		require.Error(t, err, tc.code)
		assert.True(t, conversation.IsKind(err, tc.want), "code %s should map to %s", tc.code, tc.want)
	}
}

func TestClient_QuotaStatus(t *testing.T) {
	ft := &fakeTransport{
		queryReply: []byte(`{"tokens_used":40,"token_limit":1000,"messages_used":2,"message_limit":50}`),
	}
	c, err := NewClient(ft, "ryjl3-tyaaa-aaaaa-aaaba-cai", nil)
	require.NoError(t, err)

	q, err := c.QuotaStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(40), q.TokensUsed)
	assert.Equal(t, int64(1000), q.TokenLimit)
	assert.Equal(t, int64(2), q.MessagesUsed)
	assert.False(t, q.UpdatedAt.IsZero())
}

func TestClient_QuotaCache(t *testing.T) {
	ft := &fakeTransport{
		queryReply: []byte(`{"tokens_used":40,"token_limit":1000,"messages_used":2,"message_limit":50}`),
	}
	c, err := NewClient(ft, "ryjl3-tyaaa-aaaaa-aaaba-cai", nil)
	require.NoError(t, err)
	c.EnableQuotaCache(time.Minute)
	defer c.Close()

	first, err := c.QuotaStatus(context.Background())
	require.NoError(t, err)

	// Second lookup is served from cache even if the transport now fails.
	ft.queryErr = errors.New("canister down")
	second, err := c.QuotaStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.TokensUsed, second.TokensUsed)

	// The cached copy is a snapshot; mutating it doesn't poison the cache.
	second.TokensUsed = 9999
	third, err := c.QuotaStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(40), third.TokensUsed)
}

func TestHTTPAgent_CallAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/canister/aaaaa-aa/call":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "chat", body["method_name"])
			_, _ = w.Write([]byte(`{"reply":"ok"}`))
		case "/api/v2/canister/aaaaa-aa/query":
			_, _ = w.Write([]byte(`{"models":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	agent := NewHTTPAgent(srv.URL, nil)

	reply, err := agent.Call(context.Background(), "aaaaa-aa", transport.CallOptions{Method: "chat", Arg: []byte(`{}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"reply":"ok"}`, string(reply))

	raw, err := agent.Query(context.Background(), "aaaaa-aa", map[string]any{"method_name": "list_models"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"models":[]}`, string(raw.([]byte)))
}

func TestHTTPAgent_CallSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "canister trapped", http.StatusBadGateway)
	}))
	defer srv.Close()

	agent := NewHTTPAgent(srv.URL, nil)
	_, err := agent.Call(context.Background(), "aaaaa-aa", transport.CallOptions{Method: "chat"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "canister trapped")
}

func TestHTTPAgent_FetchRootKey(t *testing.T) {
	key := []byte{1, 2, 3, 4}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/status", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "healthy",
			"root_key": base64.StdEncoding.EncodeToString(key),
		})
	}))
	defer srv.Close()

	agent := NewHTTPAgent(srv.URL, nil)
	got, err := agent.FetchRootKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, key, got)

	st, err := agent.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", st["status"])
}

func TestHTTPAgent_IsAdapterCompatible(t *testing.T) {
	agent := NewHTTPAgent("https://example.com", nil)
	assert.True(t, transport.ValidateCompatibility(agent))

	a, err := transport.New(agent, nil)
	require.NoError(t, err)
	assert.NotNil(t, a)
}
