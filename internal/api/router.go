package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

type RouterConfig struct {
	Service     SlotService
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	CORSOrigins []string
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Actor-ID", "X-Actor-Role", "X-Request-ID"},
	}).Handler)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Slot lifecycle
	r.Post("/slots", createSlotHandler(cfg.Service))
	r.Post("/slots/daily-block", dailyBlockHandler(cfg.Service))
	r.Post("/slots/{id}/book", bookSlotHandler(cfg.Service))
	r.Post("/slots/{id}/cancel", cancelSlotHandler(cfg.Service))
	r.Post("/slots/{id}/activate", setActiveHandler(cfg.Service, true))
	r.Post("/slots/{id}/deactivate", setActiveHandler(cfg.Service, false))
	r.Delete("/slots/{id}", deleteSlotHandler(cfg.Service))

	// Availability projections
	r.Get("/staff/{id}/slots", staffDayHandler(cfg.Service))
	r.Get("/staff/{id}/slots/available", availableSlotsHandler(cfg.Service))
	r.Get("/staff/{id}/slots/first-available", firstAvailableHandler(cfg.Service))
	r.Get("/staff/{id}/meetings/upcoming", upcomingMeetingsHandler(cfg.Service))
	r.Get("/staff/{id}/calendar", calendarHandler(cfg.Service))
	r.Get("/users/{id}/bookings", myBookingsHandler(cfg.Service))

	return r
}
