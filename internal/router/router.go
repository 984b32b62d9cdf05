package router

import (
	"log/slog"
	"net/http"

	"barrel-market-api/internal/handler"
	"barrel-market-api/internal/middleware"
	"barrel-market-api/pkg/apierror"
	"barrel-market-api/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	ListingHandler *handler.ListingHandler
	NoteHandler    *handler.NoteHandler
	AdminHandler   *handler.AdminHandler
	AuthMiddleware func(http.Handler) http.Handler
	Logger         *slog.Logger
	// Metrics serves /metrics when set.
	Metrics      http.Handler
	HTTPObserver middleware.HTTPObserver
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.NewRecovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.NewLogging(cfg.Logger, cfg.HTTPObserver))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, apierror.NotFound("no route for "+r.Method+" "+r.URL.Path))
	})

	// PUBLIC routes
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		if cfg.ListingHandler != nil {
			r.Get("/listings/all", cfg.ListingHandler.All)
			r.Get("/listings/types", cfg.ListingHandler.Types)
			r.Get("/listings/items", cfg.ListingHandler.Items)
			r.Get("/listings/barrels", cfg.ListingHandler.Barrels)
			r.Get("/listings/barrels/history", cfg.ListingHandler.History)
		}

		// AUTHENTICATED routes
		r.Group(func(r chi.Router) {
			if cfg.AuthMiddleware != nil {
				r.Use(cfg.AuthMiddleware)
			}

			if cfg.ListingHandler != nil {
				r.Post("/listings", cfg.ListingHandler.Submit)
			}
			if cfg.NoteHandler != nil {
				r.Post("/notes", cfg.NoteHandler.Append)
			}
			if cfg.AdminHandler != nil {
				r.Get("/admin/stats", cfg.AdminHandler.GetStats)
				r.Post("/admin/keys", cfg.AdminHandler.CreateKey)
				r.Delete("/admin/keys/{key}", cfg.AdminHandler.DeactivateKey)
			}
		})
	})

	return r
}
