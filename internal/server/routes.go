package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/reedfamily/craftbridge/internal/api"
	"github.com/reedfamily/craftbridge/internal/auth"
	"github.com/reedfamily/craftbridge/internal/metrics"
)

// Routes are the handlers mounted under /api/v1.
type Routes struct {
	Auth      *auth.Service
	Status    api.Status
	Commands  *api.CommandHandler
	Players   *api.PlayerHandler
	Schedules *api.ScheduleHandler
	Backups   *api.BackupHandler
	Console   *api.ConsoleHandler
	Origins   []string
}

func NewRouter(h Routes) chi.Router {
	origins := h.Origins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()
	r.Use(api.QueryToken)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(api.AuthMiddleware(h.Auth))

		r.Get("/status", h.Status.Handle)

		if h.Commands != nil {
			r.Get("/commands", h.Commands.List)
			r.Post("/commands", h.Commands.Dispatch)
			r.Post("/rcon", h.Commands.RCON)
			r.Get("/history", h.Commands.History)
		}

		if h.Players != nil {
			r.Get("/players", h.Players.Latest)
			r.Get("/players/history", h.Players.History)
			r.Get("/players/live", h.Players.Live)
		}

		if h.Schedules != nil {
			r.Get("/schedules", h.Schedules.List)
			r.Post("/schedules", h.Schedules.Create)
			r.Put("/schedules/{scheduleId}", h.Schedules.Update)
			r.Delete("/schedules/{scheduleId}", h.Schedules.Delete)
			r.Post("/schedules/{scheduleId}/run", h.Schedules.Run)
		}

		if h.Backups != nil {
			r.Get("/backups", h.Backups.List)
			r.Post("/backups", h.Backups.Create)
			r.Get("/backups/{backupId}/download", h.Backups.Download)
			r.Delete("/backups/{backupId}", h.Backups.Delete)
			r.Post("/backups/{backupId}/restore", h.Backups.Restore)
		}

		if h.Console != nil {
			r.Get("/console", h.Console.Handle)
		}
	})
	return r
}
