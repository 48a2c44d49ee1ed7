package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/medverify-booking/internal/api"
	"github.com/hackgods/medverify-booking/internal/app"
	"github.com/hackgods/medverify-booking/internal/config"
	"github.com/hackgods/medverify-booking/internal/logger"
)

var version = "dev"

func main() {
	lg, err := logger.New(logger.ConfigFromEnv())
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	lg.Info("api-server starting up", zap.String("version", version))

	cfg, err := config.Load()
	if err != nil {
		lg.Fatal("config load error", zap.Error(err))
	}

	lg.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("storage", cfg.Storage),
		zap.Bool("redis", cfg.RedisEnabled))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, lg)
	if err != nil {
		lg.Fatal("startup error", zap.Error(err))
	}
	defer a.Close(lg)

	handler := api.NewRouter(api.RouterConfig{
		OTP:             a.OTP,
		Identities:      a.IdentityProvider,
		IdentityService: a.Identities,
		Ledger:          a.Ledger,
		Payments:        a.Payments,
		Sessions:        a.Sessions,
		Log:             lg.Named("http"),
		ReconcileLimit:  500,
		PgPool:          a.PgPool,
		Redis:           a.Redis,
		Env:             cfg.Env,
		Version:         version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		lg.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down api-server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		lg.Error("api-server stopped with error", zap.Error(err))
	}
}
