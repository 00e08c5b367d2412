package controller

import (
	"time"

	"github.com/cassiomorais/taskboard/internal/config"
	"github.com/cassiomorais/taskboard/internal/domain/deadletter"
	customMW "github.com/cassiomorais/taskboard/internal/middleware"
	"github.com/cassiomorais/taskboard/internal/observability"
	"github.com/cassiomorais/taskboard/internal/replay"
	"github.com/cassiomorais/taskboard/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Pool           *pgxpool.Pool
	RedisClient    *redis.Client
	TaskService    *service.TaskService
	DeadLetterRepo deadletter.Repository
	ReplayService  *replay.Service
	Metrics        *observability.Metrics
	CORSConfig     config.CORSConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.SecurityHeaders())
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	taskH := NewTaskController(deps.TaskService)
	adminH := NewAdminController(deps.DeadLetterRepo, deps.ReplayService)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Tasks
		r.Post("/tasks", taskH.Create)
		r.Get("/tasks/{id}", taskH.Get)
		r.Post("/tasks/{id}/complete", taskH.Complete)

		// Dead-letter operations. Rate limited: replay storms are exactly
		// what this surface exists to prevent.
		r.Route("/admin/dead-letters", func(r chi.Router) {
			r.Use(customMW.RateLimit(60))
			r.Get("/", adminH.ListDeadLetters)
			r.Post("/replay", adminH.ReplayBatch)
			r.Get("/{id}", adminH.GetDeadLetter)
			r.Post("/{id}/replay", adminH.ReplayDeadLetter)
		})
	})

	return r
}
