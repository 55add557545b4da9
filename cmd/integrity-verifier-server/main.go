package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/integrity-verifier/internal/auth"
	"github.com/pendergraft/integrity-verifier/internal/config"
	"github.com/pendergraft/integrity-verifier/internal/observability/metrics"
	"github.com/pendergraft/integrity-verifier/internal/server"
	"github.com/pendergraft/integrity-verifier/internal/storage"
)

var version = "dev"

var allowRequestRPC bool

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "integrity-verifier-server",
		Short:   "Integrity verifier server - verifies deployed contracts over HTTP",
		Version: version,
	}

	// Default behavior (no subcommand) is to serve
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe()
	}
	rootCmd.PersistentFlags().BoolVar(&allowRequestRPC, "allow-request-rpc", false,
		"dial RPC URLs from submitted suites for chains without RPC_URL_<CHAIN>")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newKeysCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored verification runs",
	}

	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsDeleteCmd())

	return cmd
}

func newRunsListCmd() *cobra.Command {
	var configName, outcome string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent verification runs",
		Long: `List recent verification runs, newest first.

EXAMPLES:
  integrity-verifier-server runs list
  integrity-verifier-server runs list --config linea-prod --outcome failed
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store storage.Store) error {
				return runRunsList(cmd.Context(), store, cmd.OutOrStdout(), storage.RunFilter{
					ConfigName: configName,
					Outcome:    outcome,
				}, limit)
			})
		},
	}

	cmd.Flags().StringVar(&configName, "config", "", "filter by suite name")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome (passed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")

	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store storage.Store) error {
				if err := store.DeleteRun(cmd.Context(), args[0]); err != nil {
					if errors.Is(err, storage.ErrNotFound) {
						return fmt.Errorf("run not found: %s", args[0])
					}
					return fmt.Errorf("deleting run: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Run deleted: %s\n", args[0])
				return nil
			})
		},
	}
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Generate an API key and the hash to configure",
		Long: `Generate an API key. The server only stores hashes: add the printed
hash to API_KEY_HASHES (comma-separated) and hand the key to the client.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysCreate(cmd.OutOrStdout())
		},
	})

	return cmd
}

func runKeysCreate(out io.Writer) error {
	key, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Key:  %s\n", key)
	fmt.Fprintf(out, "Hash: %s\n", auth.HashAPIKey(key))
	fmt.Fprintln(out, "\n⚠️  Store the key now; it cannot be recovered from the hash.")
	return nil
}

// withStore opens the configured store quietly and runs fn against it
func withStore(fn func(storage.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := storage.New(cfg.Storage, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return fn(store)
}

func runRunsList(ctx context.Context, store storage.RunStore, out io.Writer, filter storage.RunFilter, limit int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := store.ListRuns(ctx, filter, storage.PaginationParams{Limit: limit})
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	if len(result.Data) == 0 {
		fmt.Fprintln(out, "No runs found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUITE\tOUTCOME\tPASSED\tFAILED\tWARNINGS\tSKIPPED\tCREATED")
	for _, r := range result.Data {
		idDisplay := r.ID
		if len(r.ID) > 8 {
			idDisplay = r.ID[:8] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			idDisplay, r.ConfigName, r.Outcome, r.Passed, r.Failed, r.Warnings, r.Skipped,
			r.CreatedAt.Format(time.RFC3339))
	}
	w.Flush()

	if result.HasMore {
		fmt.Fprintln(out, "\nMore runs available; raise --limit to see them")
	}
	return nil
}

// Server command

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if allowRequestRPC {
		cfg.RPC.AllowRequestURLs = true
	}

	logger := setupLogger(cfg)
	logger.Info("starting integrity-verifier-server", "version", version)
	if cfg.RPC.AllowRequestURLs {
		logger.Warn("RPC URLs from submitted suites are dialed for chains without an override")
	}

	metrics.Init(cfg.Metrics.Enabled, "integrity-verifier")

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	srv := server.New(cfg, store, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errChan := make(chan error, 2)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Metrics on their own port keep scrapes off the public listener
	var metricsServer *http.Server
	if cfg.Metrics.Enabled && cfg.Metrics.Port != 0 {
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler:           srv.MetricsHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("metrics listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Warn("metrics shutdown", "error", err)
		}
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
