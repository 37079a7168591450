package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/clinical"
)

type AppointmentService interface {
	CreateAppointment(ctx context.Context, actor appointment.Actor, req appointment.CreateRequest) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, id uuid.UUID, req appointment.UpdateRequest) (*appointment.Appointment, error)
	DeleteAppointments(ctx context.Context, ids []uuid.UUID) (int, error)
	ListAppointments(ctx context.Context, participantID uuid.UUID, kind appointment.ListKind, page, limit int) (appointment.ListResult, error)
	GetAvailability(ctx context.Context, therapistID uuid.UUID) (availability.Availability, error)
	ReplaceAvailability(ctx context.Context, therapistID uuid.UUID, days []availability.DayTemplate) (availability.Availability, error)
}

type GoalService interface {
	RecordProgress(ctx context.Context, id uuid.UUID, correct, incorrect int) (*clinical.Goal, error)
}

type RouterConfig struct {
	Service AppointmentService
	Goals   GoalService
	PgPool  Pinger
	Redis   *redis.Client
	Metrics prometheus.Gatherer
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware)

		// Appointment endpoints
		r.Post("/appointments", createAppointmentHandler(cfg.Service))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Delete("/appointments", deleteAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Patch("/appointments/{id}", updateAppointmentHandler(cfg.Service))
		r.Delete("/appointments/{id}", deleteAppointmentHandler(cfg.Service))

		// Therapist availability
		r.Get("/therapists/{id}/availability", getAvailabilityHandler(cfg.Service))
		r.Put("/therapists/{id}/availability", replaceAvailabilityHandler(cfg.Service))

		if cfg.Goals != nil {
			r.Post("/therapy-goals/{id}/progress", recordProgressHandler(cfg.Goals))
		}
	})

	return r
}
