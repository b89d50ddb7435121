// ABOUTME: HTTPAgent is a concrete transport delegate speaking HTTPS JSON to a boundary host
// ABOUTME: Satisfies the transport capability set for environments without a wallet-provided agent

package canister

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/OHMS-DeAI/ohms-gateway/internal/transport"
)

const defaultRequestTimeout = 30 * time.Second

// HTTPAgent performs canister calls against a boundary host over plain
// HTTPS. The canister's binary protocol is terminated at the boundary; this
// agent only moves JSON envelopes.
type HTTPAgent struct {
	host   string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPAgent creates an agent for the given boundary host, e.g.
// "https://icp-api.io".
func NewHTTPAgent(host string, logger *slog.Logger) *HTTPAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAgent{
		host:   strings.TrimRight(host, "/"),
		client: &http.Client{Timeout: defaultRequestTimeout},
		logger: logger.With("component", "http-agent", "host", host),
	}
}

// Call performs an update call. The reply is the raw response body.
func (a *HTTPAgent) Call(ctx context.Context, destination string, opts transport.CallOptions) ([]byte, error) {
	body := map[string]string{
		"method_name": opts.Method,
		"arg":         base64.StdEncoding.EncodeToString(opts.Arg),
	}
	if opts.EffectiveDestination != "" {
		body["effective_destination"] = opts.EffectiveDestination
	}
	return a.post(ctx, fmt.Sprintf("%s/api/v2/canister/%s/call", a.host, destination), body)
}

// Query performs a read query. The raw body is returned for the adapter to
// reshape into its canonical envelope.
func (a *HTTPAgent) Query(ctx context.Context, destination string, fields map[string]any) (any, error) {
	return a.post(ctx, fmt.Sprintf("%s/api/v2/canister/%s/query", a.host, destination), fields)
}

// FetchRootKey retrieves the subnet root key from the boundary status
// endpoint.
func (a *HTTPAgent) FetchRootKey(ctx context.Context) ([]byte, error) {
	st, err := a.Status(ctx)
	if err != nil {
		return nil, err
	}
	encoded, ok := st["root_key"].(string)
	if !ok || encoded == "" {
		return nil, fmt.Errorf("boundary status has no root_key")
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding root key: %w", err)
	}
	return key, nil
}

// Status fetches the boundary status document.
func (a *HTTPAgent) Status(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.host+"/api/v2/status", nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("boundary status returned %d", resp.StatusCode)
	}

	var st map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decoding status: %w", err)
	}
	return st, nil
}

func (a *HTTPAgent) post(ctx context.Context, url string, body any) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading reply: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("boundary returned %d: %s", resp.StatusCode, strings.TrimSpace(string(reply)))
	}
	return reply, nil
}

// The agent must satisfy the full delegate capability set.
var (
	_ transport.Caller         = (*HTTPAgent)(nil)
	_ transport.Querier        = (*HTTPAgent)(nil)
	_ transport.RootKeyFetcher = (*HTTPAgent)(nil)
	_ transport.StatusProvider = (*HTTPAgent)(nil)
)
