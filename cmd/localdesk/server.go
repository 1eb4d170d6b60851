package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/localdesk/internal/api"
	"github.com/kalambet/localdesk/internal/assist"
	"github.com/kalambet/localdesk/internal/config"
	"github.com/kalambet/localdesk/internal/domain"
	"github.com/kalambet/localdesk/internal/engine"
	"github.com/kalambet/localdesk/internal/entity"
	"github.com/kalambet/localdesk/internal/gateway"
	"github.com/kalambet/localdesk/internal/settings"
	"github.com/kalambet/localdesk/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the localdesk server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ephemeral, _ := cmd.Flags().GetBool("ephemeral")
		mcp, _ := cmd.Flags().GetBool("mcp")
		return runServer(ephemeral, mcp)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running localdesk server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show localdesk system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("ephemeral", false, "keep records in memory only")
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdin/stdout")
}

// recordStore is what both the collections and the settings persist to.
type recordStore interface {
	entity.RecordStore
	settings.Store
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "localdesk.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// engineConfig maps the loaded config onto the backend selector.
func engineConfig(cfg config.Config) engine.Config {
	ec := engine.Config{
		Provider:         cfg.AI.Provider,
		GeminiAPIKey:     cfg.Gemini.APIKey,
		OllamaBaseURL:    cfg.Ollama.BaseURL,
		OpenRouterAPIKey: cfg.Proxy.OpenRouterAPIKey,
	}
	ec.Model = cfg.ModelFor(engine.ResolveProvider(ec))
	return ec
}

func runServer(ephemeral, withMCP bool) error {
	fmt.Fprintf(os.Stderr, "localdesk version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice. The health endpoint answers without a token.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("localdesk is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("localdesk is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store recordStore
	if ephemeral {
		store = storage.NewMemoryStore()
		slog.Warn("ephemeral mode: records are kept in memory only")
	} else {
		s, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		s.SetLogger(logger)
		defer func() {
			if err := s.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
			}
		}()
		store = s
	}

	registry := domain.NewRegistry(store, logger)
	registry.InitializeAll()
	settingsMgr := settings.NewManager(store, cfg.App.Currency)

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Without a usable backend the records still work; assist reports 503.
	var assistSvc *assist.Service
	sel, err := engine.Detect(ctx, engineConfig(cfg))
	if err != nil {
		slog.Warn("no AI backend, assist disabled", "error", err)
	} else {
		slog.Info("AI backend selected", "provider", sel.Provider, "model", sel.Model)
		assistSvc = assist.New(sel.Backend, registry,
			assist.WithBaseContext(ctx),
			assist.WithPromptContext(settingsMgr),
			assist.WithLogger(logger),
			assist.WithGatewayOptions(
				gateway.WithTimeout(cfg.AI.Timeout),
				gateway.WithMaxAttachmentBytes(int64(cfg.AI.MaxAttachmentBytes)),
				gateway.WithMetrics(gateway.NewMetrics(metrics)),
			),
		)
	}

	handler := api.NewHandler(api.Deps{
		Registry:       registry,
		Assist:         assistSvc,
		Settings:       settingsMgr,
		Token:          apiToken,
		AllowedOrigins: cfg.Server.Origins(),
		Metrics:        metrics,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "localdesk listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Registry: registry,
			Assist:   assistSvc,
			Settings: settingsMgr,
		}, version)
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("localdesk is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop localdesk (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to localdesk (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	ec := engineConfig(cfg)
	printStatus("AI provider", "%s", engine.ResolveProvider(ec))
	if ec.Model != "" {
		printStatus("AI model", "%s", ec.Model)
	}

	if running {
		if c, err := newAPIClient(); err == nil {
			resp, err := c.get(ctx, "/collections")
			var infos []api.CollectionInfo
			if err == nil && decodeJSON(resp, &infos) == nil {
				for _, info := range infos {
					printStatus(info.Name, "%d", info.Count)
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
