package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"novelshelf/framework"
	"novelshelf/framework/engine"
	"novelshelf/framework/guard"
	"novelshelf/framework/httpserver"
	"novelshelf/internal/config"
	"novelshelf/internal/logging"
	"novelshelf/internal/markdown"
	"novelshelf/internal/metrics"
	"novelshelf/internal/routes"
	"novelshelf/internal/session"
	"novelshelf/internal/views"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Address to listen on (default from NOVELSHELF_LISTEN_ADDR)")

	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := logging.New(cfg.LogLevel)

	observer := metrics.New()
	sessions, err := session.NewStore(cfg.SessionKey, false)
	if err != nil {
		return err
	}
	if cfg.SessionKey == "" {
		logger.Warn().Msg("NOVELSHELF_SESSION_KEY is empty; sessions reset on restart")
	}

	routeEngine, err := newEngine(cfg, observer, &logger)
	if err != nil {
		return err
	}

	cachePolicies := httpserver.DefaultCachePolicies()
	if cfg.CacheLiveNavigation != "" {
		cachePolicies.LiveNavigation = cfg.CacheLiveNavigation
	}
	handler, err := httpserver.New(httpserver.Config{
		Engine:   routeEngine,
		Document: views.Document,
		Static: httpserver.StaticMount{
			URLPrefix: "/static/",
			Dir:       cfg.StaticDir,
		},
		CachePolicies: cachePolicies,
		Logger:        &logger,
		Middleware:    []func(http.Handler) http.Handler{sessions.Middleware},
		Metrics:       observer.Handler(),
		Gzip:          cfg.Gzip,
	})
	if err != nil {
		return fmt.Errorf("handler setup failed: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Bool("auth_guard", cfg.AuthGuard).
			Str("version", version).
			Msg("novelshelf listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newEngine builds the navigation engine over the application table. The auth guard is
// installed only when NOVELSHELF_AUTH_GUARD is set.
func newEngine(cfg config.Config, observer framework.Observer, logger *zerolog.Logger) (*engine.Engine, error) {
	routeTable, err := routes.New(views.NewRegistry(markdown.Options{SiteURL: cfg.SiteURL}))
	if err != nil {
		return nil, fmt.Errorf("build route table: %w", err)
	}

	var guards []framework.Guard
	if cfg.AuthGuard {
		guards = append(guards, guard.RequireAuth(session.Status{}, cfg.LoginPath))
	}

	return engine.New(engine.Config{
		Router:       routeTable,
		Guards:       guards,
		MaxRedirects: cfg.MaxRedirects,
		Observer:     observer,
		Logger:       logger,
	})
}
