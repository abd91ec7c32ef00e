package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"storybook/internal/http/handlers"
	"storybook/internal/infra"
	"storybook/internal/middleware"
	"storybook/internal/observability"
)

// NewRouter wires the API surface: health and metrics are open, the story
// routes require a caller identity. staticDir, when non-empty, is served under
// /static for filesystem-backed asset storage.
func NewRouter(app *handlers.App, cfg *infra.Config, metrics *observability.Metrics, lookup middleware.CountryLookup, staticDir string) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.Locale(cfg.DefaultLocale, lookup))
	r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))

	r.Get("/v1/healthz", app.Health)
	r.Handle("/metrics", metrics.Handler())
	if staticDir != "" {
		fs := stdhttp.StripPrefix("/static/", stdhttp.FileServer(stdhttp.Dir(staticDir)))
		r.Handle("/static/*", fs)
	}

	r.Route("/v1/stories", func(r chi.Router) {
		r.Use(middleware.Identity)
		r.Post("/", app.CreateStory)
		r.Get("/{id}", app.GetStory)
		r.Get("/{id}/events", app.StreamStoryEvents)
		r.Get("/{id}/assets", app.ListStoryAssets)
	})

	return r
}
