// ABOUTME: Package documentation for the auth package
// ABOUTME: JWT verification and HTTP middleware for the gateway API

// Package auth provides JWT-based authentication for the gateway's HTTP API.
//
// Tokens are HS256-signed JWTs whose "sub" claim carries the caller's
// principal in canonical text form. JWTVerifier handles both generation
// (for the token CLI command) and verification. HTTPAuthMiddleware rejects
// requests without a valid token.
//
// The authenticated principal travels through request handling via
// context.Context, using WithAuth and FromContext; Principal falls back to
// the anonymous principal, matching the transport layer's treatment of
// unbound identities.
package auth
