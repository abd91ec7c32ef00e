package handlers

import (
	"net/http"
	"time"

	"storybook/internal/domain"
)

type assetResponse struct {
	PageNumber   int                `json:"pageNumber"`
	Origin       domain.AssetOrigin `json:"origin"`
	URL          string             `json:"url"`
	ContentType  string             `json:"contentType,omitempty"`
	SourcePrompt string             `json:"sourcePrompt,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// ListStoryAssets returns the story's page images ordered by page number.
func (a *App) ListStoryAssets(w http.ResponseWriter, r *http.Request) {
	job, ok := a.ownedJob(w, r)
	if !ok {
		return
	}

	assets, err := a.Assets.ListByJobID(r.Context(), job.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("handlers: list assets")
		a.respondError(w, http.StatusInternalServerError, "failed to list assets")
		return
	}

	out := make([]assetResponse, 0, len(assets))
	for _, asset := range assets {
		out = append(out, assetResponse{
			PageNumber:   asset.PageNumber,
			Origin:       asset.Origin,
			URL:          asset.URL,
			ContentType:  asset.ContentType,
			SourcePrompt: asset.SourcePrompt,
			CreatedAt:    asset.CreatedAt,
		})
	}
	a.respondJSON(w, http.StatusOK, map[string]any{"storyId": job.ID, "assets": out})
}
