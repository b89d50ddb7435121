// Package transport normalizes wallet-provided canister agents into the
// canonical transport contract used by the rest of the gateway.
//
// # Adapter
//
// Wallet and identity providers hand back agent objects of varying shapes.
// The Adapter wraps one of them and exposes a uniform surface:
//
//	a, err := transport.New(delegate, logger)
//	a.SetIdentity(transport.Identity{Principal: p})
//	reply, err := a.Call(ctx, canisterID, transport.CallOptions{Method: "chat", Arg: arg})
//
// A delegate is compatible when it exposes Call, Query, and FetchRootKey
// as invocable capabilities. Compatibility is checked once, at construction,
// via ValidateCompatibility — never lazily at a call site.
//
// # Guarantees
//
//   - Delegate errors propagate to the caller unmodified. The adapter never
//     retries and never masks backend failures.
//   - Query replies are reshaped into a {Reply, RequestID} envelope. A
//     non-binary delegate result becomes an empty reply; callers should
//     check for emptiness.
//   - Status is synthesized as {"status": "ready"} when the delegate has no
//     status capability, so Status is always safe to call.
//   - The root key is fetched once and cached for the adapter's lifetime.
//     Replacing the identity does not invalidate it.
package transport
