// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Extracts JWT from Authorization header and adds the principal to context

package auth

import (
	"net/http"
	"strings"

	"github.com/OHMS-DeAI/ohms-gateway/internal/transport"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// HTTPAuthMiddleware creates an HTTP middleware that extracts and validates
// JWT tokens. The token's subject must be a well-formed principal; it is
// added to the request context via WithAuth.
func HTTPAuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			principal, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			if _, err := transport.PrincipalFromText(principal); err != nil {
				http.Error(w, `{"error":"invalid principal in token"}`, http.StatusUnauthorized)
				return
			}

			authCtx := &AuthContext{Principal: principal}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}
