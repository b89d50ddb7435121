// ABOUTME: Adapter wraps an arbitrary wallet-provided agent behind the canonical transport contract
// ABOUTME: Tracks caller identity, caches the root key, and passes delegate errors through unmodified

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Adapter presents the canonical call/query/status/root-key contract over a
// wrapped delegate. The delegate is supplied at construction and never
// swapped; identity is adapter-local and replaceable.
type Adapter struct {
	mu       sync.RWMutex
	caller   Caller
	querier  Querier
	fetcher  RootKeyFetcher
	status   StatusProvider // nil when the delegate has no status capability
	identity *Identity
	rootKey  []byte
	logger   *slog.Logger
}

// ValidateCompatibility reports whether delegate exposes Call, Query, and
// FetchRootKey as invocable capabilities. Status is optional and not part
// of the compatibility gate.
func ValidateCompatibility(delegate any) bool {
	if delegate == nil {
		return false
	}
	_, hasCall := delegate.(Caller)
	_, hasQuery := delegate.(Querier)
	_, hasFetch := delegate.(RootKeyFetcher)
	return hasCall && hasQuery && hasFetch
}

// New constructs an Adapter over delegate. Construction fails immediately
// with a descriptive error if the delegate is missing any required
// capability, so incompatibility never surfaces later on first use.
func New(delegate any, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if delegate == nil {
		return nil, fmt.Errorf("transport delegate is nil")
	}

	caller, hasCall := delegate.(Caller)
	querier, hasQuery := delegate.(Querier)
	fetcher, hasFetch := delegate.(RootKeyFetcher)
	if !hasCall || !hasQuery || !hasFetch {
		var missing []string
		if !hasCall {
			missing = append(missing, "Call")
		}
		if !hasQuery {
			missing = append(missing, "Query")
		}
		if !hasFetch {
			missing = append(missing, "FetchRootKey")
		}
		return nil, fmt.Errorf("incompatible transport delegate %T: missing %s", delegate, strings.Join(missing, ", "))
	}

	status, _ := delegate.(StatusProvider)

	return &Adapter{
		caller:  caller,
		querier: querier,
		fetcher: fetcher,
		status:  status,
		logger:  logger.With("component", "transport"),
	}, nil
}

// SetIdentity binds the caller identity. The cached root key and the
// delegate binding are unaffected.
func (a *Adapter) SetIdentity(id Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.identity = &id
	a.logger.Debug("identity bound", "principal", id.Principal.String())
}

// ReplaceIdentity swaps the bound identity and returns the previous one,
// or nil if none was bound.
func (a *Adapter) ReplaceIdentity(id Identity) *Identity {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.identity
	a.identity = &id
	if prev == nil {
		return nil
	}
	p := *prev
	return &p
}

// Identity returns a copy of the currently bound identity, or nil before
// first bind. Mutating the copy never affects the adapter's binding.
func (a *Adapter) Identity() *Identity {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.identity == nil {
		return nil
	}
	id := *a.identity
	return &id
}

// IsReady reports whether the adapter can serve calls: a delegate is
// present with both call and query capabilities, and an identity is bound.
func (a *Adapter) IsReady() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.caller != nil && a.querier != nil && a.identity != nil
}

// Call normalizes destination and delegates an update call. Delegate errors
// propagate unchanged; retry policy, if any, belongs to the caller.
func (a *Adapter) Call(ctx context.Context, destination any, opts CallOptions) ([]byte, error) {
	dest, err := normalizeDestination(destination)
	if err != nil {
		return nil, err
	}
	if opts.EffectiveDestination != "" {
		eff, err := normalizeDestination(opts.EffectiveDestination)
		if err != nil {
			return nil, fmt.Errorf("effective destination: %w", err)
		}
		opts.EffectiveDestination = eff
	}
	return a.caller.Call(ctx, dest, opts)
}

// Query normalizes destination, delegates, and reshapes the delegate's raw
// return into the canonical envelope. A non-binary delegate result becomes
// an empty reply rather than an error; callers should check for emptiness.
func (a *Adapter) Query(ctx context.Context, destination any, fields map[string]any) (*QueryResponse, error) {
	dest, err := normalizeDestination(destination)
	if err != nil {
		return nil, err
	}

	raw, err := a.querier.Query(ctx, dest, fields)
	if err != nil {
		return nil, err
	}

	resp := &QueryResponse{RequestID: uuid.New().String()}
	if reply, ok := raw.([]byte); ok {
		resp.Reply = reply
	} else {
		a.logger.Debug("non-binary query reply substituted with empty reply",
			"destination", dest,
			"reply_type", fmt.Sprintf("%T", raw))
	}
	return resp, nil
}

// Status delegates when the wrapped transport exposes a status capability
// and otherwise synthesizes a minimal ready placeholder, so callers can
// always call Status safely.
func (a *Adapter) Status(ctx context.Context) (map[string]any, error) {
	if a.status != nil {
		return a.status.Status(ctx)
	}
	return map[string]any{"status": "ready", "synthesized": true}, nil
}

// FetchRootKey delegates once and caches the result for the adapter's
// lifetime. Subsequent calls return the cached bytes without re-fetching,
// even after the identity is replaced.
func (a *Adapter) FetchRootKey(ctx context.Context) ([]byte, error) {
	a.mu.RLock()
	cached := a.rootKey
	a.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	key, err := a.fetcher.FetchRootKey(ctx)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// Another fetch may have raced us; the root key is immutable, keep the first.
	if a.rootKey == nil {
		a.rootKey = key
		a.logger.Debug("root key cached", "bytes", len(key))
	}
	return a.rootKey, nil
}
