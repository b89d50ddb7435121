// Package canister speaks the OHMS model canister's application protocol
// on top of the transport adapter.
//
// Client is the production Backend for the conversation manager: it frames
// list_models / chat / quota_status exchanges as JSON envelopes, sends them
// through the canonical transport contract, and classifies canister error
// codes into the conversation error taxonomy.
//
// HTTPAgent is a minimal concrete delegate for environments without a
// wallet-provided agent. It talks plain HTTPS JSON to a boundary host and
// satisfies the transport capability set (Call, Query, FetchRootKey,
// Status).
package canister
