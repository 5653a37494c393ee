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
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/maruel/chardb/internal/config"
	"github.com/maruel/chardb/internal/metrics"
	"github.com/maruel/chardb/internal/records"
	"github.com/maruel/chardb/internal/server"
	"github.com/maruel/chardb/internal/server/ratelimit"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long:  "Start the HTTP server. Flags can also be set with environment variables named CHARDB_<FLAG> (e.g. CHARDB_HTTP=:9000).",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080, 0.0.0.0:8080)")
	cmd.Flags().Bool("watch", true, "Shut down when the executable is modified")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	// Normalize addr: ":8080" becomes "localhost:8080"
	addr := viper.GetString("http")
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	if viper.GetBool("watch") {
		if err := watchExecutable(ctx, stop); err != nil {
			return fmt.Errorf("failed to watch executable: %w", err)
		}
	}

	m := metrics.New()
	store := openStore()
	store.Observer = m
	svc := records.NewService(store, &records.LogObserver{}, m)
	svc.MaxPerPage = cfg.MaxPerPage

	limits := ratelimit.NewConfig(cfg.RateLimits.ReadPerMin, cfg.RateLimits.WritePerMin)
	defer limits.Close()

	buildVersion, _, _, _ := getBuildInfo()
	srvCfg := &server.Config{
		Version:             buildVersion,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		JWTSecret:           []byte(cfg.JWTSecret),
		Limits:              limits,
		Metrics:             m,
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(svc, srvCfg),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server",
			"addr", addr,
			"data", store.Path(),
			"config", cfgPath,
			"auth", cfg.JWTSecret != "",
			"version", buildVersion)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

// watchExecutable watches the current executable for modifications and calls
// stop to trigger graceful shutdown when detected.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(exe); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}
