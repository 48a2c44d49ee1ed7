package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/medverify-booking/internal/appointment"
	"github.com/hackgods/medverify-booking/internal/auth"
	"github.com/hackgods/medverify-booking/internal/identity"
	"github.com/hackgods/medverify-booking/internal/otp"
	"github.com/hackgods/medverify-booking/internal/payment"
)

type RouterConfig struct {
	OTP             *otp.Service
	Identities      identity.Provider
	IdentityService *identity.Service
	Ledger          *appointment.Service
	Payments        *payment.Service
	Sessions        *auth.Issuer
	Log             *zap.Logger
	ReconcileLimit  int

	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	s := &server{cfg: cfg, log: cfg.Log}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	requireSession := auth.RequireSession(cfg.Sessions, s.writeError)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/otp/request", s.requestOTP)
		r.Post("/auth/otp/verify", s.verifyOTP)
		r.Post("/admin/login", s.adminLogin)

		r.Group(func(r chi.Router) {
			r.Use(requireSession)

			r.Put("/appointments/draft", s.saveDraft)
			r.Get("/appointments/draft", s.latestDraft)
			r.Post("/appointments/finalize", s.finalize)
			r.Get("/appointments/{id}", s.getAppointment)

			r.Post("/payments/orders", s.createOrder)
			r.Post("/payments/verify", s.verifyPayment)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Use(auth.RequireRole(identity.RoleAdmin, s.writeError))

			r.Get("/admin/appointments/{id}", s.adminGetAppointment)
			r.Post("/admin/reconcile", s.reconcile)
		})
	})

	return r
}
