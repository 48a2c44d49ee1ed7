package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/medverify-booking/internal/app"
	"github.com/hackgods/medverify-booking/internal/config"
	"github.com/hackgods/medverify-booking/internal/logger"
)

const reconcileBatch = 500

func main() {
	lg, err := logger.New(logger.ConfigFromEnv())
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	lg.Info("maintenance-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		lg.Fatal("config load error", zap.Error(err))
	}
	if cfg.Storage == config.StorageMemory {
		lg.Fatal("maintenance-worker needs shared storage, STORAGE=memory is not supported")
	}

	lg.Info("running maintenance worker",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, lg)
	if err != nil {
		lg.Fatal("startup error", zap.Error(err))
	}
	defer a.Close(lg)

	// Run once at startup
	runOnce(rootCtx, a, lg)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			lg.Info("shutdown signal received, stopping maintenance worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, a, lg)
		}
	}
}

// runOnce sweeps OTP challenges and reconciles paid transactions. The two
// jobs touch disjoint tables and run side by side.
func runOnce(ctx context.Context, a *app.App, lg *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()

	start := time.Now()
	var g errgroup.Group

	g.Go(func() error {
		n, err := a.OTP.Sweep(runCtx)
		if err != nil {
			return err
		}
		lg.Info("otp sweep complete", zap.Int64("deleted", n))
		return nil
	})

	g.Go(func() error {
		report, err := a.Payments.Reconcile(runCtx, reconcileBatch)
		if err != nil {
			return err
		}
		lg.Info("reconciliation complete",
			zap.Int("checked", report.Checked),
			zap.Int("appointments_repaired", report.AppointmentsRepaired),
			zap.Int("identities_repaired", report.IdentitiesRepaired),
			zap.Int("failures", report.Failures))
		return nil
	})

	if err := g.Wait(); err != nil {
		lg.Error("maintenance run error", zap.Error(err))
		return
	}
	lg.Info("maintenance run complete", zap.Duration("took", time.Since(start)))
}
