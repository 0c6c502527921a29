package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinovia/clinic-scheduling/internal/storage"
)

type RouterConfig struct {
	Booking      BookingFlow
	Availability AvailabilityService
	Appointments AppointmentService
	Ledger       LedgerService
	BlockedDates BlockedDateSource
	Artifacts    storage.Store

	PgPool *pgxpool.Pool
	Redis  *redis.Client
	Log    *zap.Logger

	Env             string
	Version         string
	PublicRateLimit int // requests per minute per IP, 0 disables
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Public booking flow.
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
		if cfg.PublicRateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.PublicRateLimit, time.Minute))
		}

		r.Get("/availability", availabilityHandler(cfg.Availability))
		r.Post("/holds", createHoldHandler(cfg.Booking))
		r.Delete("/holds/{token}", releaseHoldHandler(cfg.Booking))
		r.Post("/holds/{token}/redeem", redeemHoldHandler(cfg.Booking))
		r.Post("/appointments/{id}/consent", attachConsentHandler(cfg.Booking))
		r.Post("/uploads", uploadHandler(cfg.Artifacts))
	})

	// Staff surface, attributed via X-Staff-ID.
	r.Group(func(r chi.Router) {
		r.Use(RequireStaff)

		r.Get("/appointments/attention", attentionHandler(cfg.Appointments))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments, cfg.Ledger))
		r.Get("/appointments/{id}/history", historyHandler(cfg.Appointments))
		r.Patch("/appointments/{id}/state", changeStateHandler(cfg.Appointments))
		r.Post("/appointments/{id}/balance-payments", balancePaymentHandler(cfg.Ledger))
		r.Get("/blocked-dates", blockedDatesHandler(cfg.BlockedDates))
	})

	return r
}
