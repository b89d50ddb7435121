// ABOUTME: Tests for the transport Adapter
// ABOUTME: Covers the compatibility gate, normalization fallbacks, and root-key caching

package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgent is a fully capable delegate.
type fakeAgent struct {
	callDest   string
	callOpts   CallOptions
	callReply  []byte
	callErr    error
	queryDest  string
	queryRaw   any
	queryErr   error
	rootKey    []byte
	fetchCount int
}

func (f *fakeAgent) Call(ctx context.Context, destination string, opts CallOptions) ([]byte, error) {
	f.callDest = destination
	f.callOpts = opts
	return f.callReply, f.callErr
}

func (f *fakeAgent) Query(ctx context.Context, destination string, fields map[string]any) (any, error) {
	f.queryDest = destination
	return f.queryRaw, f.queryErr
}

func (f *fakeAgent) FetchRootKey(ctx context.Context) ([]byte, error) {
	f.fetchCount++
	return f.rootKey, nil
}

// statusAgent adds the optional status capability.
type statusAgent struct {
	fakeAgent
	statusMap map[string]any
}

func (s *statusAgent) Status(ctx context.Context) (map[string]any, error) {
	return s.statusMap, nil
}

// queryOnlyAgent is missing Call and FetchRootKey.
type queryOnlyAgent struct{}

func (queryOnlyAgent) Query(ctx context.Context, destination string, fields map[string]any) (any, error) {
	return nil, nil
}

func TestValidateCompatibility(t *testing.T) {
	assert.True(t, ValidateCompatibility(&fakeAgent{}))
	assert.False(t, ValidateCompatibility(nil))
	assert.False(t, ValidateCompatibility(queryOnlyAgent{}))
	assert.False(t, ValidateCompatibility("not an agent"))
}

func TestNew_RejectsIncompatibleDelegate(t *testing.T) {
	_, err := New(queryOnlyAgent{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Call")
	assert.Contains(t, err.Error(), "FetchRootKey")
	assert.NotContains(t, err.Error(), "Query,")

	_, err = New(nil, nil)
	require.Error(t, err)
}

func TestAdapter_IdentityLifecycle(t *testing.T) {
	a, err := New(&fakeAgent{}, nil)
	require.NoError(t, err)

	assert.Nil(t, a.Identity())
	assert.False(t, a.IsReady(), "not ready before identity bind")

	alice, err := PrincipalFromText("aaaaa-aa")
	require.NoError(t, err)
	a.SetIdentity(Identity{Principal: alice})
	require.NotNil(t, a.Identity())
	assert.Equal(t, "aaaaa-aa", a.Identity().Principal.String())
	assert.True(t, a.IsReady())

	bob, err := PrincipalFromText("bbbbb-bb")
	require.NoError(t, err)
	prev := a.ReplaceIdentity(Identity{Principal: bob})
	require.NotNil(t, prev)
	assert.Equal(t, "aaaaa-aa", prev.Principal.String())
	assert.Equal(t, "bbbbb-bb", a.Identity().Principal.String())
}

// Identity hands out copies: a caller cannot mutate the adapter's binding
// through the returned pointer.
func TestAdapter_IdentityReturnsCopy(t *testing.T) {
	a, err := New(&fakeAgent{}, nil)
	require.NoError(t, err)

	alice, err := PrincipalFromText("aaaaa-aa")
	require.NoError(t, err)
	a.SetIdentity(Identity{Principal: alice})

	bob, err := PrincipalFromText("bbbbb-bb")
	require.NoError(t, err)

	got := a.Identity()
	require.NotNil(t, got)
	got.Principal = bob
	assert.Equal(t, "aaaaa-aa", a.Identity().Principal.String())

	prev := a.ReplaceIdentity(Identity{Principal: bob})
	require.NotNil(t, prev)
	prev.Principal = alice
	assert.Equal(t, "bbbbb-bb", a.Identity().Principal.String())
}

func TestAdapter_Call_NormalizesDestination(t *testing.T) {
	agent := &fakeAgent{callReply: []byte("ok")}
	a, err := New(agent, nil)
	require.NoError(t, err)

	// Canonical text form.
	reply, err := a.Call(context.Background(), "ryjl3-tyaaa-aaaaa-aaaba-cai", CallOptions{Method: "chat"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), reply)
	assert.Equal(t, "ryjl3-tyaaa-aaaaa-aaaba-cai", agent.callDest)

	// Structured form.
	p, err := PrincipalFromText("ryjl3-tyaaa-aaaaa-aaaba-cai")
	require.NoError(t, err)
	_, err = a.Call(context.Background(), p, CallOptions{Method: "chat"})
	require.NoError(t, err)
	assert.Equal(t, "ryjl3-tyaaa-aaaaa-aaaba-cai", agent.callDest)

	// Invalid destinations never reach the delegate.
	_, err = a.Call(context.Background(), "Not A Principal", CallOptions{})
	require.ErrorIs(t, err, ErrInvalidPrincipal)
	_, err = a.Call(context.Background(), 42, CallOptions{})
	require.ErrorIs(t, err, ErrInvalidPrincipal)
}

func TestAdapter_Call_NormalizesEffectiveDestination(t *testing.T) {
	agent := &fakeAgent{}
	a, err := New(agent, nil)
	require.NoError(t, err)

	_, err = a.Call(context.Background(), "aaaaa-aa", CallOptions{Method: "chat", EffectiveDestination: "bbbbb-bb"})
	require.NoError(t, err)
	assert.Equal(t, "bbbbb-bb", agent.callOpts.EffectiveDestination)

	_, err = a.Call(context.Background(), "aaaaa-aa", CallOptions{Method: "chat", EffectiveDestination: "--bad--"})
	require.ErrorIs(t, err, ErrInvalidPrincipal)
}

func TestAdapter_Call_PropagatesDelegateErrorUnmodified(t *testing.T) {
	boom := errors.New("canister rejected the call")
	agent := &fakeAgent{callErr: boom}
	a, err := New(agent, nil)
	require.NoError(t, err)

	_, err = a.Call(context.Background(), "aaaaa-aa", CallOptions{Method: "chat"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, boom.Error(), err.Error(), "error must pass through unwrapped")
}

func TestAdapter_Query_ReshapesReply(t *testing.T) {
	agent := &fakeAgent{queryRaw: []byte(`{"models":[]}`)}
	a, err := New(agent, nil)
	require.NoError(t, err)

	resp, err := a.Query(context.Background(), "aaaaa-aa", map[string]any{"method_name": "list_models"})
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"models":[]}`), resp.Reply)
	assert.NotEmpty(t, resp.RequestID)
}

func TestAdapter_Query_NonBinaryReplyBecomesEmpty(t *testing.T) {
	agent := &fakeAgent{queryRaw: map[string]any{"unexpected": "shape"}}
	a, err := New(agent, nil)
	require.NoError(t, err)

	resp, err := a.Query(context.Background(), "aaaaa-aa", nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Reply, "non-binary reply is substituted with an empty one")
	assert.NotEmpty(t, resp.RequestID)
}

func TestAdapter_Query_PropagatesDelegateError(t *testing.T) {
	boom := errors.New("replica unreachable")
	agent := &fakeAgent{queryErr: boom}
	a, err := New(agent, nil)
	require.NoError(t, err)

	_, err = a.Query(context.Background(), "aaaaa-aa", nil)
	require.ErrorIs(t, err, boom)
}

func TestAdapter_Status_SynthesizedWhenDelegateLacksCapability(t *testing.T) {
	a, err := New(&fakeAgent{}, nil)
	require.NoError(t, err)

	st, err := a.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ready", st["status"])
}

func TestAdapter_Status_DelegatesWhenAvailable(t *testing.T) {
	agent := &statusAgent{statusMap: map[string]any{"status": "healthy", "replica_version": "0.9.1"}}
	a, err := New(agent, nil)
	require.NoError(t, err)

	st, err := a.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", st["status"])
	assert.Equal(t, "0.9.1", st["replica_version"])
}

func TestAdapter_FetchRootKey_CachesAcrossCallsAndIdentitySwaps(t *testing.T) {
	agent := &fakeAgent{rootKey: []byte{0xde, 0xad, 0xbe, 0xef}}
	a, err := New(agent, nil)
	require.NoError(t, err)

	first, err := a.FetchRootKey(context.Background())
	require.NoError(t, err)

	p, err := PrincipalFromText("ccccc-cc")
	require.NoError(t, err)
	a.ReplaceIdentity(Identity{Principal: p})

	second, err := a.FetchRootKey(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, agent.fetchCount, "delegate fetch must run at most once")
}

func TestPrincipalFromText(t *testing.T) {
	valid := []string{"2vxsx-fae", "ryjl3-tyaaa-aaaaa-aaaba-cai", "aaaaa-aa"}
	for _, s := range valid {
		p, err := PrincipalFromText(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, p.String())
	}

	invalid := []string{"", "-leading", "trailing-", "double--dash", "UPPER-case", "spa ce"}
	for _, s := range invalid {
		_, err := PrincipalFromText(s)
		assert.ErrorIs(t, err, ErrInvalidPrincipal, "%q should be rejected", s)
	}
}
