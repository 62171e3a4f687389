// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

// Command server runs the Linkrelay companion server: the websocket
// session gateway, the action relay core, and the HTTP login surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linkrelay/linkrelay/internal/auth"
	"github.com/linkrelay/linkrelay/internal/config"
	"github.com/linkrelay/linkrelay/internal/gateway"
	"github.com/linkrelay/linkrelay/internal/handler"
	"github.com/linkrelay/linkrelay/internal/logging"
	"github.com/linkrelay/linkrelay/internal/middleware"
	"github.com/linkrelay/linkrelay/internal/pairing"
	"github.com/linkrelay/linkrelay/internal/presence"
	"github.com/linkrelay/linkrelay/internal/relay"
	"github.com/linkrelay/linkrelay/internal/store"
	"github.com/linkrelay/linkrelay/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Int("port", cfg.Server.Port).
		Int("target_cap", cfg.Relay.TargetCap).
		Dur("cooldown", cfg.Relay.Cooldown).
		Msg("starting linkrelay")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := presence.NewRegistry(cfg.Relay.Cooldown)
	pairingSvc := pairing.NewService(st, reg)
	relayCore := relay.New(reg, st, cfg.Relay.TargetCap)
	chat := handler.NewChat(reg, cfg.Relay.ChatMessagesPerSecond, cfg.Relay.ChatBurst)
	dispatcher := handler.NewDispatcher(relayCore, pairingSvc, chat,
		cfg.Relay.MoodleInfoMaxBytes, cfg.Relay.CustomizationMaxBytes)

	jwtManager := auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	authHandler := auth.NewHandler(st, jwtManager,
		cfg.Security.MinClientVersion, cfg.Security.LoginRateLimit, cfg.Security.LoginRateWindow)

	gw := gateway.New(reg, pairingSvc, dispatcher, jwtManager, cfg.Relay.SessionSendBuffer)
	sweeper := pairing.NewSweeper(pairingSvc, cfg.Relay.ExpirySweepInterval)

	tree := supervisor.NewTree(
		slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
		supervisor.DefaultTreeConfig(),
	)
	tree.AddMessagingService(gw)
	tree.AddMaintenanceService(sweeper)

	treeDone := make(chan error, 1)
	go func() { treeDone <- tree.Serve(ctx) }()

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           buildRouter(cfg, gw, authHandler),
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		stop()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Err(err).Msg("http shutdown incomplete")
	}
	<-treeDone
	return nil
}

// buildStore selects the Postgres permission store when a database URL
// is configured, falling back to the in-memory store for development.
// The circuit breaker wraps Postgres only; the in-memory store cannot
// fail.
func buildStore(ctx context.Context, cfg *config.Config) (store.PermissionStore, error) {
	if cfg.Database.URL == "" {
		logging.Warn().Msg("no database url configured, using in-memory store; data is not persisted")
		return store.NewMemoryStore(), nil
	}

	pg, err := store.NewPostgresStore(ctx, cfg.Database.URL,
		int32(cfg.Database.MaxConns), cfg.Database.QueryTimeout)
	if err != nil {
		return nil, fmt.Errorf("connecting permission store: %w", err)
	}
	return store.NewBreakerStore(pg,
		cfg.Database.BreakerFailureThreshold, cfg.Database.BreakerOpenTimeout), nil
}

func buildRouter(cfg *config.Config, gw *gateway.Gateway, authHandler *auth.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogging)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.PrometheusMetrics)
		if len(cfg.Security.CORSOrigins) > 0 {
			api.Use(cors.Handler(cors.Options{
				AllowedOrigins: cfg.Security.CORSOrigins,
				AllowedMethods: []string{http.MethodPost},
				AllowedHeaders: []string{"Content-Type"},
				MaxAge:         300,
			}))
		}
		api.Mount("/auth", authHandler.Routes())
	})

	r.Get("/ws", gw.HandleWS)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
