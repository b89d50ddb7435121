// ABOUTME: Package documentation for the gateway package
// ABOUTME: HTTP API surface over the conversation manager and archive store

// Package gateway exposes the conversation manager over HTTP.
//
// The JSON API covers the model catalog, conversation lifecycle, message
// exchange, quota, and aggregated usage from the archive. GET /api/events
// streams manager activity as Server-Sent Events, and the transcript
// endpoint renders a conversation's history as HTML via goldmark.
//
// Manager error kinds map onto HTTP statuses in statusForKind, so clients
// see 404 for unknown sessions, 429 for rate and quota limits, and 502
// when the model backend is unreachable.
package gateway
