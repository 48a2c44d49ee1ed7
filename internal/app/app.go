// Package app assembles the booking services from configuration. The API
// server and the maintenance worker share it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/medverify-booking/internal/appointment"
	"github.com/hackgods/medverify-booking/internal/auth"
	"github.com/hackgods/medverify-booking/internal/config"
	"github.com/hackgods/medverify-booking/internal/db"
	"github.com/hackgods/medverify-booking/internal/identity"
	"github.com/hackgods/medverify-booking/internal/notify"
	"github.com/hackgods/medverify-booking/internal/otp"
	"github.com/hackgods/medverify-booking/internal/payment"
	redisclient "github.com/hackgods/medverify-booking/internal/redis"
)

type App struct {
	PgPool *pgxpool.Pool // nil with memory storage
	Redis  *redis.Client // nil when REDIS_ENABLED=false

	Identities       *identity.Service
	IdentityProvider identity.Provider
	OTP              *otp.Service
	Ledger           *appointment.Service
	Payments         *payment.Service
	Sessions         *auth.Issuer
}

// Close releases the connections opened by New.
func (a *App) Close(log *zap.Logger) {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Warn("close redis", zap.Error(err))
		}
	}
	if a.PgPool != nil {
		a.PgPool.Close()
	}
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{}

	var (
		identityRepo identity.Repository
		otpRepo      otp.Repository
		apptRepo     appointment.Repository
		txRepo       payment.Repository
	)

	switch cfg.Storage {
	case config.StorageMemory:
		log.Warn("using in-memory storage, data is lost on restart")
		identityRepo = identity.NewMemoryRepository()
		otpRepo = otp.NewMemoryRepository()
		apptRepo = appointment.NewMemoryRepository()
		txRepo = payment.NewMemoryRepository()
	default:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
			MaxConns: int32(cfg.PostgresMaxConn),
			MinConns: 1,
		})
		cancel()
		if err != nil {
			return nil, err
		}
		a.PgPool = pool
		log.Info("connected to postgres")

		if err := db.EnsureSchema(ctx, pool); err != nil {
			a.Close(log)
			return nil, err
		}
		caps, err := db.DetectCapabilities(ctx, pool)
		if err != nil {
			a.Close(log)
			return nil, err
		}
		if !caps.TransactionAppointmentID {
			log.Warn("transactions.appointment_id missing, recording transactions without it")
		}

		identityRepo = identity.NewPgRepository(pool)
		otpRepo = otp.NewPgRepository(pool)
		apptRepo = appointment.NewPgRepository(pool)
		txRepo = payment.NewPgRepository(pool, caps)
	}

	var (
		counter otp.CounterStore
		locker  redisclient.Locker
	)
	if cfg.RedisEnabled {
		rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			a.Close(log)
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Redis = rdb
		log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		counter = redisclient.NewSlidingWindowCounter(rdb, "otp:rate:")
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	} else {
		log.Warn("redis disabled, OTP rate limits are per process")
		counter = otp.NewMemoryCounter()
		locker = redisclient.NewLocalLocker()
	}

	notifier, err := newNotifier(cfg.Notify, log)
	if err != nil {
		a.Close(log)
		return nil, err
	}

	a.Identities = identity.NewService(identityRepo, nil, log.Named("identity"))
	a.IdentityProvider = identity.NewProvider(a.Identities, cfg.AuthTestMode, cfg.AuthTestIdentifiers)

	otpOpts := otp.Options{
		TTL:                cfg.OTPTTL,
		RateLimit:          cfg.OTPRateLimit,
		RateWindow:         cfg.OTPRateWindow,
		DefaultCountryCode: cfg.DefaultCountryCode,
	}
	if cfg.AuthTestMode {
		otpOpts.TestIdentifiers = cfg.AuthTestIdentifiers
		log.Warn("auth test mode enabled", zap.Strings("identifiers", cfg.AuthTestIdentifiers))
	}
	a.OTP = otp.NewService(otpRepo, counter, notifier, otpOpts, log.Named("otp"))

	a.Ledger = appointment.NewService(apptRepo, a.Identities, log.Named("appointment"))

	provider := payment.NewRazorpayClient(cfg.Payment.BaseURL, cfg.Payment.KeyID, cfg.Payment.KeySecret, cfg.Payment.ProviderTimeout)
	a.Payments = payment.NewService(txRepo, a.Ledger, a.Identities, provider, locker, notifier, payment.Options{
		KeyID:           cfg.Payment.KeyID,
		KeySecret:       cfg.Payment.KeySecret,
		Currency:        cfg.Payment.Currency,
		ProviderTimeout: cfg.Payment.ProviderTimeout,
	}, log.Named("payment"))

	a.Sessions = auth.NewIssuer(cfg.JWTSecret, cfg.SessionTTL)

	return a, nil
}

// newNotifier routes SMS through Twilio and email through SMTP when they are
// configured, and to the log otherwise.
func newNotifier(cfg config.NotifyConfig, log *zap.Logger) (*notify.Router, error) {
	router := notify.NewRouter()
	fallback := notify.NewLogNotifier(log.Named("notify"))

	if cfg.TwilioAccountSID != "" {
		sms, err := notify.NewTwilioSMS(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom)
		if err != nil {
			return nil, err
		}
		router.Handle(notify.ChannelSMS, sms)
	} else {
		log.Warn("twilio not configured, SMS goes to the log")
		router.Handle(notify.ChannelSMS, fallback)
	}

	if cfg.SMTPAddr != "" {
		router.Handle(notify.ChannelEmail, notify.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom))
	} else {
		log.Warn("smtp not configured, email goes to the log")
		router.Handle(notify.ChannelEmail, fallback)
	}

	return router, nil
}
