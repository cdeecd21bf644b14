// ABOUTME: Entry point for ember-gateway, the Ember desktop app's local API gateway
// ABOUTME: Serves authenticated tool invocation, health and diagnostics on a leased port

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/emberworks/ember-gateway/internal/auth"
	"github.com/emberworks/ember-gateway/internal/config"
	"github.com/emberworks/ember-gateway/internal/gateway"
	"github.com/emberworks/ember-gateway/internal/health"
	"github.com/emberworks/ember-gateway/internal/ratelimit"
	"github.com/emberworks/ember-gateway/internal/secrets"
	"github.com/emberworks/ember-gateway/internal/store"
	"github.com/emberworks/ember-gateway/internal/tools"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                 _
   ___ _ __ ___ | |__   ___ _ __
  / _ \ '_ ' _ \| '_ \ / _ \ '__|
 |  __/ | | | | | |_) |  __/ |
  \___|_| |_| |_|_.__/ \___|_|   gateway
`

// getConfigPath returns the path to the gateway config file.
// Priority: EMBER_CONFIG env var > XDG_CONFIG_HOME/ember/gateway.yaml > ~/.config/ember/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("EMBER_CONFIG"); envPath != "" {
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

	return filepath.Join(configDir, "ember", "gateway.yaml")
}

// getDataPath returns the path to the ember data directory.
// Priority: XDG_DATA_HOME/ember > ~/.local/share/ember
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "ember")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: ember-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                    Start the gateway server")
		fmt.Println("  init                     Create a new config file interactively")
		fmt.Println("  token issue --role ROLE  Issue the API credential")
		fmt.Println("  token rotate             Replace the credential, keeping role and permissions")
		fmt.Println("  health                   Check gateway health")
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
		err = runToken(ctx)
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

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	if cfg.Server.PreferredPort > 0 {
		green.Print("    ▶ ")
		fmt.Printf("Port:      %d (preferred)\n", cfg.Server.PreferredPort)
	}
	fmt.Println()

	logger.Info("starting ember-gateway", "config", configPath)

	srv, cleanup, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return srv.Start(ctx)
}

// buildServer wires the full dependency graph from configuration. The
// returned cleanup closes the config store.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gateway.Server, func(), error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening config store: %w", err)
	}
	cleanup := func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close config store", "error", err)
		}
	}

	sec, err := secrets.Open(ctx, secretConfig(cfg))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("opening secret store: %w", err)
	}
	logger.Info("secret store ready", "driver", sec.Driver())

	authMgr := auth.NewManager(sec, cfg.Auth.MinTokenLength)

	limiter := ratelimit.New(ratelimit.Options{
		Points:        cfg.RateLimit.Points,
		Duration:      cfg.RateLimit.Duration,
		BlockDuration: cfg.RateLimit.BlockDuration,
	})

	agg := health.NewAggregator(cfg.Health.CheckTimeout)
	agg.Register(health.ComponentConfigStore, health.ConfigStoreChecker(st))
	agg.Register(health.ComponentAPIAuthToken, health.TokenChecker(authMgr))

	registry := tools.NewRegistry()
	providers, err := tools.LoadManifests(cfg.Providers.ManifestDir)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("loading provider manifests: %w", err)
	}
	for _, p := range providers {
		if err := registry.Register(ctx, p); err != nil {
			logger.Warn("skipping provider", "provider", p.Name(), "error", err)
		}
	}
	toolGateway := tools.NewGateway(registry, cfg.Providers.InvokeTimeout, cfg.Providers.ConnectTimeout)

	return gateway.New(cfg, st, authMgr, limiter, agg, toolGateway, logger), cleanup, nil
}

// secretConfig maps the YAML secret-store section onto the secrets package.
func secretConfig(cfg *config.Config) secrets.Config {
	return secrets.Config{
		Driver:          cfg.SecretStore.Driver,
		Service:         cfg.SecretStore.Service,
		FallbackEnabled: cfg.SecretStore.FallbackEnabled,
		FilePath:        cfg.SecretStore.FilePath,
		Passphrase:      cfg.SecretStore.Passphrase,
	}
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

// runToken issues or rotates the gateway credential. The value is printed
// exactly once and never persisted outside the secret store.
func runToken(ctx context.Context) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: ember-gateway token <issue|rotate>")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	sec, err := secrets.Open(ctx, secretConfig(cfg))
	if err != nil {
		return fmt.Errorf("opening secret store: %w", err)
	}
	mgr := auth.NewManager(sec, cfg.Auth.MinTokenLength)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	switch os.Args[2] {
	case "issue":
		role, perms, err := parseIssueArgs(os.Args[3:])
		if err != nil {
			return err
		}
		tok, err := mgr.Issue(ctx, role, perms)
		if err != nil {
			return fmt.Errorf("issuing token: %w", err)
		}
		green.Println("  ✓ Token issued")
		fmt.Printf("  Role:        %s\n", tok.Role)
		fmt.Printf("  Permissions: %s\n", strings.Join(tok.Permissions, ", "))
		fmt.Printf("  Token:       %s\n", tok.Value)
		fmt.Println()
		yellow.Println("  Store this value now; it will not be shown again.")
		return nil

	case "rotate":
		tok, err := mgr.Rotate(ctx)
		if errors.Is(err, auth.ErrTokenMissing) {
			return fmt.Errorf("no token issued yet; run: ember-gateway token issue --role operator")
		}
		if err != nil {
			return fmt.Errorf("rotating token: %w", err)
		}
		green.Println("  ✓ Token rotated")
		fmt.Printf("  Role:        %s\n", tok.Role)
		fmt.Printf("  Token:       %s\n", tok.Value)
		fmt.Println()
		yellow.Println("  The previous credential no longer authenticates.")
		return nil

	default:
		return fmt.Errorf("unknown token subcommand: %s", os.Args[2])
	}
}

// parseIssueArgs reads --role and optional --perms from the argument list.
// Supports both "--role value" and "--role=value" formats.
func parseIssueArgs(args []string) (auth.Role, []string, error) {
	var roleStr, permsStr string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--role" || arg == "-r":
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--role requires a value")
			}
			roleStr = args[i+1]
			i++
		case strings.HasPrefix(arg, "--role="):
			roleStr = strings.TrimPrefix(arg, "--role=")
		case arg == "--perms" || arg == "-p":
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--perms requires a value")
			}
			permsStr = args[i+1]
			i++
		case strings.HasPrefix(arg, "--perms="):
			permsStr = strings.TrimPrefix(arg, "--perms=")
		case strings.HasPrefix(arg, "-"):
			return "", nil, fmt.Errorf("unknown flag: %s", arg)
		default:
			return "", nil, fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if roleStr == "" {
		return "", nil, fmt.Errorf("--role flag is required (admin, operator or read-only)")
	}
	role := auth.Role(roleStr)

	var perms []string
	if permsStr != "" {
		for _, p := range strings.Split(permsStr, ",") {
			if p = strings.TrimSpace(p); p != "" {
				perms = append(perms, p)
			}
		}
	} else {
		perms = auth.DefaultPermissions(role)
	}
	return role, perms, nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// The serving port is dynamic; the last bound port is recorded in the
	// config store at startup.
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening config store: %w", err)
	}
	defer st.Close()

	setting, err := st.GetSetting(ctx, "server.last_port")
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("gateway has never started; no port recorded")
	}
	if err != nil {
		return fmt.Errorf("reading recorded port: %w", err)
	}

	url := fmt.Sprintf("http://%s:%s/health", cfg.Server.Host, setting.Value)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var report health.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return fmt.Errorf("decoding health report: %w", err)
	}

	fmt.Printf("status: %s\n", report.Status)
	for name, comp := range report.Components {
		line := fmt.Sprintf("  %-14s %s", name, comp.Status)
		if len(comp.Issues) > 0 {
			line += "  (" + strings.Join(comp.Issues, ", ") + ")"
		}
		fmt.Println(line)
	}
	if report.Status == health.StatusError {
		os.Exit(1)
	}
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("ember-gateway configuration setup")
	fmt.Println("=================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "gateway.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	preferredPort := prompt(reader, "Preferred port (0 for OS-assigned)", "0")
	rangeMin := prompt(reader, "Port range min (0 to disable)", "0")
	rangeMax := prompt(reader, "Port range max", "0")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Secret store
	fmt.Println("\n--- Secret Store Configuration ---")
	driver := prompt(reader, "Secret store driver (auto/keychain/file)", "auto")

	// Rate limiting
	fmt.Println("\n--- Rate Limit Configuration ---")
	points := prompt(reader, "Requests per window", "60")
	window := prompt(reader, "Window duration", "1m")

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# ember-gateway configuration\n")
	cfg.WriteString("# Generated by ember-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString("  host: \"127.0.0.1\"\n")
	cfg.WriteString(fmt.Sprintf("  preferred_port: %s\n", preferredPort))
	cfg.WriteString(fmt.Sprintf("  port_range_min: %s\n", rangeMin))
	cfg.WriteString(fmt.Sprintf("  port_range_max: %s\n", rangeMax))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("secret_store:\n")
	cfg.WriteString(fmt.Sprintf("  driver: \"%s\"\n", driver))
	cfg.WriteString("\n")

	cfg.WriteString("rate_limit:\n")
	cfg.WriteString(fmt.Sprintf("  points: %s\n", points))
	cfg.WriteString(fmt.Sprintf("  duration: \"%s\"\n", window))
	cfg.WriteString("\n")

	cfg.WriteString("providers:\n")
	cfg.WriteString(fmt.Sprintf("  manifest_dir: \"%s\"\n", filepath.Join(defaultDataPath, "providers")))
	cfg.WriteString("  invoke_timeout: \"30s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nNext steps:")
	fmt.Println("  ember-gateway token issue --role operator")
	fmt.Println("  ember-gateway serve")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
