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
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/aiassist/internal/api"
	"github.com/kalambet/aiassist/internal/config"
	"github.com/kalambet/aiassist/internal/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the HTTP API and background workers (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long: `Serve the MCP tools over stdio.

Actions launched through MCP are queued; run "aiassist start" alongside
to execute them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP(cmd.Context())
	},
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runServer(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)
	slog.Info("starting aiassist", "version", version)

	if cfg.Server.Token == "" {
		tok, err := config.EnsureAPIToken(config.NewKeyringStore(config.KeyringService))
		if err != nil {
			return fmt.Errorf("initializing API token: %w", err)
		}
		cfg.Server.Token = tok
	}
	slog.Info("API bearer token available")

	ctx, stop := signalContext(parent)
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("closing resources", "error", err)
		}
	}()

	handler := api.NewAppHandler(api.AppDeps{
		Store:    a.store,
		Actions:  a.actions,
		Registry: a.registry,
		Token:    cfg.Server.Token,
		FilesDir: a.filesDir,
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
	for i := 0; i < cfg.Worker.Count; i++ {
		w := worker.NewWorker(a.store, a.actions, cfg.Worker.PollInterval)
		g.Go(func() error {
			w.Run(gctx)
			return nil
		})
	}
	slog.Info("workers started", "count", cfg.Worker.Count)

	g.Go(func() error {
		slog.Info("aiassist listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runMCP(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx, stop := signalContext(parent)
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:    a.store,
		Actions:  a.actions,
		Registry: a.registry,
	})
	slog.Info("MCP server started (stdio transport)")
	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
