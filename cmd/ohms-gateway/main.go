// ABOUTME: Entry point for the ohms-gateway server
// ABOUTME: Serves the conversation API in front of the OHMS model canister

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/OHMS-DeAI/ohms-gateway/internal/auth"
	"github.com/OHMS-DeAI/ohms-gateway/internal/canister"
	"github.com/OHMS-DeAI/ohms-gateway/internal/config"
	"github.com/OHMS-DeAI/ohms-gateway/internal/conversation"
	"github.com/OHMS-DeAI/ohms-gateway/internal/gateway"
	"github.com/OHMS-DeAI/ohms-gateway/internal/store"
	"github.com/OHMS-DeAI/ohms-gateway/internal/transport"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
        _                                     _
   ___ | |__  _ __ ___  ___        __ _  __ _| |_ _____      ____ _ _   _
  / _ \| '_ \| '_ ' _ \/ __|_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | (_) | | | | | | | | \__ \_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
  \___/|_| |_|_| |_| |_|___/      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                  |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: OHMS_CONFIG env var > XDG_CONFIG_HOME/ohms/gateway.yaml > ~/.config/ohms/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("OHMS_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "ohms", "gateway.yaml")
}

// getDataPath returns the path to the ohms data directory.
// Priority: XDG_DATA_HOME/ohms > ~/.local/share/ohms
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "ohms")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: ohms-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                      Start the gateway server")
		fmt.Println("  init                       Create a new config file with sane defaults")
		fmt.Println("  token --principal TEXT     Generate an API token for a principal")
		fmt.Println("  health                     Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Canister:  %s @ %s\n", cfg.Canister.CanisterID, cfg.Canister.Host)
	fmt.Println()

	logger.Info("starting ohms-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"canister_id", cfg.Canister.CanisterID,
	)

	// Archive store
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// Transport: HTTP agent wrapped by the capability adapter
	agent := canister.NewHTTPAgent(cfg.Canister.Host, logger)
	adapter, err := transport.New(agent, logger)
	if err != nil {
		return fmt.Errorf("creating transport adapter: %w", err)
	}
	if cfg.Canister.Identity != "" {
		principal, err := transport.PrincipalFromText(cfg.Canister.Identity)
		if err != nil {
			return fmt.Errorf("parsing canister.identity: %w", err)
		}
		adapter.SetIdentity(transport.Identity{Principal: principal})
	}

	client, err := canister.NewClient(adapter, cfg.Canister.CanisterID, logger)
	if err != nil {
		return fmt.Errorf("creating canister client: %w", err)
	}
	client.EnableQuotaCache(cfg.Quota.RefreshInterval)
	defer client.Close()

	// Conversation manager bound to the canister backend
	manager := conversation.NewManager(logger)
	if err := manager.Initialize(ctx, client); err != nil {
		return fmt.Errorf("initializing conversation manager: %w", err)
	}

	// Write-through archive of every conversation and exchange
	recorder := store.NewRecorder(st, manager, logger)
	defer recorder.Detach()

	gw := gateway.New(cfg, manager, st, logger)
	return gw.Run(ctx)
}

// runInit writes a starter config file with a freshly generated JWT secret.
func runInit() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "gateway.db")

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	configContent := fmt.Sprintf(`# ohms-gateway configuration
# Generated by ohms-gateway init

server:
  http_addr: "localhost:8090"

canister:
  host: "https://icp-api.io"
  canister_id: "rdmx6-jaaaa-aaaaa-aaadq-cai"
  # identity: leave unset for anonymous calls
  identity: ""

database:
  path: "%s"

auth:
  jwt_secret: "%s"
  token_ttl: "24h"

quota:
  refresh_interval: "5m"

logging:
  level: "info"
  format: "text"
`, dbPath, jwtSecret)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	fmt.Println("  Edit canister.canister_id before running 'ohms-gateway serve'.")
	return nil
}

// runToken generates a signed API token for a principal using the
// configured JWT secret.
func runToken() error {
	var principalText string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--principal" || arg == "-p":
			if i+1 >= len(args) {
				return fmt.Errorf("--principal requires a value")
			}
			principalText = args[i+1]
			i++
		case strings.HasPrefix(arg, "--principal="):
			principalText = strings.TrimPrefix(arg, "--principal=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}
	if principalText == "" {
		return fmt.Errorf("--principal flag is required")
	}
	if _, err := transport.PrincipalFromText(principalText); err != nil {
		return fmt.Errorf("invalid principal %q: %w", principalText, err)
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret not configured in %s", getConfigPath())
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	token, err := verifier.Generate(principalText, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	cyan := color.New(color.FgCyan)
	cyan.Printf("  Token for %s (valid %s):\n\n", principalText, cfg.Auth.TokenTTL)
	fmt.Println(token)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/readyz", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
