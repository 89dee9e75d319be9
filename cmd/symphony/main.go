// ABOUTME: Entry point for the symphony conversation server
// ABOUTME: Wires config, store, model gateway, tool registry, hub, orchestrator, and transport

package main

import (
	"context"
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

	"github.com/symphonylabs/symphony/internal/config"
	"github.com/symphonylabs/symphony/internal/gateway"
	"github.com/symphonylabs/symphony/internal/hub"
	"github.com/symphonylabs/symphony/internal/orchestrator"
	"github.com/symphonylabs/symphony/internal/server"
	"github.com/symphonylabs/symphony/internal/store"
	"github.com/symphonylabs/symphony/internal/tools"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                           _
 ___ _   _ _ __ ___  _ __ | |__   ___  _ __  _   _
/ __| | | | '_ ' _ \| '_ \| '_ \ / _ \| '_ \| | | |
\__ \ |_| | | | | | | |_) | | | | (_) | | | | |_| |
|___/\__, |_| |_| |_| .__/|_| |_|\___/|_| |_|\__, |
     |___/          |_|                      |___/
`

// getConfigPath returns the path to the server config file.
// Priority: SYMPHONY_CONFIG env var > XDG_CONFIG_HOME/symphony/server.yaml >
// ~/.config/symphony/server.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SYMPHONY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "server.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "symphony", "server.yaml")
}

// getDataPath returns the path to the symphony data directory.
// Priority: XDG_DATA_HOME/symphony > ~/.local/share/symphony
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "symphony")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: symphony <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the conversation server")
		fmt.Println("  init     Create a starter config file")
		fmt.Println("  health   Check server health")
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

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Listen:   %s\n", cfg.Server.Addr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	fmt.Println()

	logger.Info("starting symphony",
		"config", configPath,
		"addr", cfg.Server.Addr,
		"model", cfg.Assistant.ModelID,
	)

	// History store
	historyStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer historyStore.Close()

	// Model gateway
	completer, err := gateway.NewOpenAIGateway(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, logger)
	if err != nil {
		return fmt.Errorf("creating model gateway: %w", err)
	}

	// Tool routing registry, populated from each service's declared
	// descriptor set
	registry := tools.NewRegistry()
	for _, svc := range cfg.Tools {
		descriptors, err := tools.LoadDescriptors(svc.Descriptors)
		if err != nil {
			return fmt.Errorf("loading descriptors for %s: %w", svc.Name, err)
		}
		registry.Register(tools.Service{Name: svc.Name, BaseURL: svc.BaseURL}, descriptors)
		logger.Info("tool service registered",
			"service", svc.Name,
			"functions", len(descriptors),
		)
	}

	dispatcher := tools.NewDispatcher(registry, cfg.Timeouts.ToolCall, logger)
	broadcastHub := hub.New(logger)
	defer broadcastHub.Close()

	orch := orchestrator.New(orchestrator.Options{
		Store:                historyStore,
		Completer:            completer,
		Dispatcher:           dispatcher,
		Broadcaster:          broadcastHub,
		Catalog:              registry.Catalog(),
		AssistantDescription: cfg.Assistant.Description,
		AssistantModelID:     cfg.Assistant.ModelID,
		ModelTimeout:         cfg.Timeouts.ModelCall,
		ArtifactDir:          getDataPath(),
		Logger:               logger,
	})

	srv := server.New(cfg.Server.Addr, orch, broadcastHub, logger)

	// Orchestrator and transport run until the signal context is cancelled.
	errCh := make(chan error, 2)
	go func() { errCh <- orch.Run(ctx) }()
	go func() { errCh <- srv.Run(ctx) }()

	err = <-errCh
	if err == context.Canceled {
		return nil
	}
	return err
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

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

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

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

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

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.Addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

func runInit() error {
	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "symphony.db")

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	configContent := fmt.Sprintf(`# symphony server configuration
# Generated by symphony init

server:
  addr: "localhost:3001"

database:
  path: "%s"

openai:
  api_key: "${OPENAI_API_KEY}"

assistant:
  model_id: "gpt-4-1106-preview"
  description: "You are a friendly assistant. Keep your responses short."

# tools:
#   - name: "typescript"
#     base_url: "http://localhost:3003"
#     descriptors: "%s"

timeouts:
  model_call: "60s"
  tool_call: "30s"

logging:
  level: "info"
  format: "text"
`, dbPath, filepath.Join(dataPath, "typescript-descriptions.json"))

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	fmt.Println("\nTo start the server:")
	fmt.Println("  symphony serve")

	return nil
}
