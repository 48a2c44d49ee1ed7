package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/hackgods/medverify-booking/internal/apperr"
	"github.com/hackgods/medverify-booking/internal/db"
	"github.com/hackgods/medverify-booking/internal/identity"
	"github.com/hackgods/medverify-booking/internal/logger"
)

func main() {
	users := flag.Int("users", 50, "number of demo applicant identities")
	flag.Parse()

	lg, err := logger.New(logger.ConfigFromEnv())
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	lg.Info("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		lg.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{MaxConns: 2})
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		lg.Fatal("ensure schema", zap.Error(err))
	}

	svc := identity.NewService(identity.NewPgRepository(pool), nil, lg.Named("identity"))

	if err := seedAdmin(ctx, svc, lg); err != nil {
		lg.Fatal("seed admin", zap.Error(err))
	}
	if err := seedUsers(ctx, svc, *users, lg); err != nil {
		lg.Fatal("seed users", zap.Error(err))
	}

	lg.Info("seed complete")
}

// seedAdmin creates the admin from SEED_ADMIN_EMAIL/SEED_ADMIN_PASSWORD. An
// existing admin is left alone.
func seedAdmin(ctx context.Context, svc *identity.Service, lg *zap.Logger) error {
	email := os.Getenv("SEED_ADMIN_EMAIL")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" || password == "" {
		lg.Info("SEED_ADMIN_EMAIL/SEED_ADMIN_PASSWORD not set, skipping admin")
		return nil
	}

	admin, err := svc.CreateAdmin(ctx, email, "Administrator", password)
	if errors.Is(err, apperr.ErrInvalidState) {
		lg.Info("admin already exists", zap.String("email", email))
		return nil
	}
	if err != nil {
		return err
	}
	lg.Info("admin created", zap.String("id", admin.ID.String()), zap.String("email", email))
	return nil
}

func seedUsers(ctx context.Context, svc *identity.Service, count int, lg *zap.Logger) error {
	lg.Info("seeding demo identities", zap.Int("count", count))

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	for i := 0; i < count; i++ {
		// +91 and ten digits starting 9, the shape Normalize produces
		phone := fmt.Sprintf("+919%09d", faker.Number(0, 999999999))

		ident, err := svc.Resolve(ctx, phone, identity.KindPhone)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", phone, err)
		}

		err = svc.CopyProfile(ctx, ident.ID, identity.Profile{
			Name:           faker.Name(),
			Email:          faker.Email(),
			PassportNumber: fmt.Sprintf("%s%07d", faker.LetterN(1), faker.Number(0, 9999999)),
		})
		if err != nil {
			// duplicate fake emails are expected now and then
			lg.Warn("copy profile", zap.String("phone", phone), zap.Error(err))
		}
	}

	lg.Info("demo identities seeded", zap.Int("count", count))
	return nil
}
