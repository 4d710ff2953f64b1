package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hyperengineering/sitecms/internal/api"
	"github.com/hyperengineering/sitecms/internal/config"
	"github.com/hyperengineering/sitecms/internal/content"
	"github.com/hyperengineering/sitecms/internal/preview"
	"github.com/hyperengineering/sitecms/internal/session"
	"github.com/hyperengineering/sitecms/internal/sitecache"
	"github.com/hyperengineering/sitecms/internal/snapshot"
	"github.com/hyperengineering/sitecms/internal/store"
	"github.com/hyperengineering/sitecms/internal/worker"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "sitecms",
	Short:        "sitecms - driving school site content service",
	Long:         "Serves the admin API for editing the site config document and the public read path for the landing page.",
	SilenceUsage: true,
	RunE:         run,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the CMS server (default command)",
	Args:  cobra.NoArgs,
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"CMS server URL for client commands (default: $SITECMS_SERVER or http://localhost:8080)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(sectionCmd)
	rootCmd.AddCommand(intentCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(previewCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("configuration loaded")

	// 3. Initialize logger
	logger := newLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	// 4. Initialize store (migrations run on open for SQL backends)
	repo, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "driver", cfg.Database.Driver)

	// 5. Initialize content service and the public read view
	site := sitecache.NewReader(nil, cfg.Snapshot.Path, time.Duration(cfg.Cache.TTL), logger)
	svc := content.NewService(repo,
		content.WithInvalidator(site),
		content.WithLogger(logger.With("component", "content")),
	)
	site.SetSource(svc)
	slog.Info("content service initialized", "cache_ttl", time.Duration(cfg.Cache.TTL).String())

	// 6. Initialize session guard
	secret := cfg.Auth.SessionSecret
	if secret == "" {
		// Only reachable in dev mode; sessions do not survive a restart.
		if secret, err = session.GenerateSecret(); err != nil {
			return err
		}
		slog.Warn("session secret not configured, using an ephemeral secret")
	}
	guard := session.NewGuard(session.Config{
		Password:     cfg.Auth.Password,
		Secret:       secret,
		TTL:          time.Duration(cfg.Auth.SessionTTL),
		SecureCookie: cfg.Auth.SecureCookie,
	})

	// 7. Initialize preview relay
	hub := preview.NewHub(cfg.Server.PublicOrigin, logger)
	slog.Info("preview hub initialized", "origin", hub.Origin())

	// 8. Initialize snapshot worker
	uploader, err := snapshot.NewUploader(cfg.Snapshot.Storage)
	if err != nil {
		return err
	}
	snapshotWorker, err := worker.NewSnapshotWorker(
		snapshot.NewWriter(svc, cfg.Snapshot.Path, uploader),
		cfg.Snapshot.Schedule,
	)
	if err != nil {
		return err
	}

	// 9. Initialize HTTP router
	handler := api.NewHandler(svc, guard, site, hub, repo, Version)
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	// 10. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}
	if !strings.HasPrefix(cfg.Server.PublicOrigin, "https://") && cfg.Auth.SecureCookie {
		slog.Warn("secure session cookie with a non-https origin; browsers will drop the cookie",
			"origin", cfg.Server.PublicOrigin)
	}

	// 11. Worker lifecycle
	var wg sync.WaitGroup
	startWorker(ctx, &wg, "snapshot", snapshotWorker.Run)

	// 12. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		// Any other error indicates an actual server failure that should trigger shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel() // Trigger shutdown on server failure
		}
	}()

	// 13. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 14. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 14a. End preview streams so Shutdown is not held open by them
	hub.Close()

	// 14b. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 14c. Wait for workers to complete
	wg.Wait()

	// 14d. Close store
	if err := repo.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// newLogger builds the process logger from the log config.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
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

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
