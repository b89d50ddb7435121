// ABOUTME: Gateway orchestrator wiring the conversation manager, archive store, and HTTP server
// ABOUTME: Owns server lifecycle: listener setup, route registration, and graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/OHMS-DeAI/ohms-gateway/internal/auth"
	"github.com/OHMS-DeAI/ohms-gateway/internal/config"
	"github.com/OHMS-DeAI/ohms-gateway/internal/conversation"
	"github.com/OHMS-DeAI/ohms-gateway/internal/store"
)

// Gateway serves the conversation API over HTTP. It owns the HTTP server;
// the manager and store are constructed by the caller and passed in.
type Gateway struct {
	config     *config.Config
	manager    *conversation.Manager
	store      store.Store
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Gateway serving the given manager and archive store.
func New(cfg *config.Config, mgr *conversation.Manager, st store.Store, logger *slog.Logger) *Gateway {
	g := &Gateway{
		config:  cfg,
		manager: mgr,
		store:   st,
		logger:  logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	g.registerRoutes(mux)

	g.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// registerRoutes wires the API handlers, applying JWT auth when a secret
// is configured.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	wrap := func(h http.Handler) http.Handler { return g.logRequests(h) }
	if g.config.Auth.JWTSecret != "" {
		verifier := auth.NewJWTVerifier([]byte(g.config.Auth.JWTSecret))
		authed := auth.HTTPAuthMiddleware(verifier)
		wrap = func(h http.Handler) http.Handler { return authed(g.logRequests(h)) }
		g.logger.Info("HTTP auth middleware enabled")
	} else {
		g.logger.Warn("HTTP auth disabled - no jwt_secret configured")
	}

	mux.Handle("/api/models", wrap(http.HandlerFunc(g.handleModels)))
	mux.Handle("/api/quota", wrap(http.HandlerFunc(g.handleQuota)))
	mux.Handle("/api/usage", wrap(http.HandlerFunc(g.handleUsageStats)))
	mux.Handle("/api/conversations", wrap(http.HandlerFunc(g.handleConversations)))
	mux.Handle("/api/conversations/", wrap(http.HandlerFunc(g.handleConversationRoutes)))
	mux.Handle("/api/events", wrap(http.HandlerFunc(g.handleEvents)))
	mux.HandleFunc("/healthz", g.handleHealth)
	mux.HandleFunc("/readyz", g.handleReady)
}

// logRequests records each API request attributed to the caller principal
// bound by the auth middleware; unauthenticated requests log as anonymous.
func (g *Gateway) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.logger.Debug("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"principal", auth.Principal(r.Context()))
		next.ServeHTTP(w, r)
	})
}

// Run serves HTTP until ctx is canceled or the server fails, then shuts
// down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes the archive store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		g.logger.Error("HTTP server shutdown failed", "error", err)
		firstErr = err
	}
	if err := g.store.Close(); err != nil {
		g.logger.Error("store close failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the manager has a model catalog loaded.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if !g.manager.IsInitialized() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("manager not initialized"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d models)", len(g.manager.Models()))
}
