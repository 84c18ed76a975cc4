package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reyadatime/reyadatime/internal/api"
	"github.com/reyadatime/reyadatime/internal/app"
	"github.com/reyadatime/reyadatime/internal/auth"
	"github.com/reyadatime/reyadatime/internal/config"
	"github.com/reyadatime/reyadatime/internal/localstore"
	"github.com/reyadatime/reyadatime/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("reyada-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	rt, err := app.Open(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to open runtime", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rt.Close() }()

	validator, err := auth.NewJWTValidator(cfg.Auth.TokenSecret)
	if err != nil {
		logger.Error("failed to build token validator", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:         logger,
		AuthMiddleware: auth.Middleware(logger, validator),
		Catalog:        rt.Catalog,
		Storage:        rt.Storage,
		// Sessions are per request; the caller holds the token.
		Auth: func(acceptLanguage string) api.Authenticator {
			return rt.NewAuth(localstore.NewMemory(), acceptLanguage)
		},
		Readiness: api.CombineReadinessChecks(
			rt.Catalog.HealthCheck,
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("database_driver", cfg.Database.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
