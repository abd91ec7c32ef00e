package handlers

import (
	"encoding/json"
	"net/http"

	"storybook/internal/domain"
	"storybook/internal/infra"
	"storybook/internal/notify"
	"storybook/internal/pipeline"
)

// App bundles the dependencies the HTTP handlers need.
type App struct {
	Jobs           domain.JobRepository
	Assets         domain.AssetRepository
	Pipeline       *pipeline.Orchestrator
	Notifier       notify.Subscriber
	Logger         infra.Logger
	MaxUploadBytes int64
}

func (a *App) respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) respondError(w http.ResponseWriter, code int, msg string) {
	a.respondJSON(w, code, map[string]string{"error": msg})
}
