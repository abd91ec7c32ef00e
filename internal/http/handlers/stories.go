package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"storybook/internal/domain"
	"storybook/internal/middleware"
	"storybook/internal/pipeline"
)

// createStoryResponse is returned as soon as the job record exists; the
// pipeline keeps running in the background.
type createStoryResponse struct {
	StoryID string           `json:"storyId"`
	Status  domain.JobStatus `json:"status"`
	Message string           `json:"message"`
}

type storyResponse struct {
	StoryID      string            `json:"storyId"`
	Status       domain.JobStatus  `json:"status"`
	Locale       string            `json:"locale"`
	ChildName    string            `json:"childName"`
	Narrative    *domain.Narrative `json:"narrative,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	DrawingCount int               `json:"drawingCount"`
	CreatedAt    time.Time         `json:"createdAt"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
}

// CreateStory accepts the questionnaire plus drawing uploads as multipart
// form data, validates them, persists the job and schedules the pipeline.
// The response returns immediately with the job in processing state.
func (a *App) CreateStory(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(a.MaxUploadBytes); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	profile, err := profileFromForm(r)
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	drawings, err := drawingsFromForm(r)
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(drawings) == 0 {
		a.respondError(w, http.StatusBadRequest, "at least one drawing is required")
		return
	}

	count := len(drawings)
	if count > domain.PageCount {
		count = domain.PageCount
	}
	now := time.Now().UTC()
	job := &domain.Job{
		ID:           uuid.NewString(),
		OwnerID:      middleware.UserIDFromContext(r.Context()),
		Profile:      profile,
		Locale:       middleware.LocaleFromContext(r.Context()),
		Status:       domain.JobStatusProcessing,
		DrawingCount: count,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Msg("handlers: create story record")
		a.respondError(w, http.StatusInternalServerError, "failed to create story record")
		return
	}

	a.Pipeline.Start(job, drawings)

	a.respondJSON(w, http.StatusAccepted, createStoryResponse{
		StoryID: job.ID,
		Status:  domain.JobStatusProcessing,
		Message: "Story generation started. Watch the story status for updates.",
	})
}

// GetStory returns the current snapshot of a story job.
func (a *App) GetStory(w http.ResponseWriter, r *http.Request) {
	job, ok := a.ownedJob(w, r)
	if !ok {
		return
	}
	a.respondJSON(w, http.StatusOK, storyResponse{
		StoryID:      job.ID,
		Status:       job.Status,
		Locale:       job.Locale,
		ChildName:    job.Profile.Name,
		Narrative:    job.Narrative,
		ErrorMessage: job.ErrorMessage,
		DrawingCount: job.DrawingCount,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	})
}

// ownedJob loads the requested job and enforces ownership. Jobs belonging to
// other users read as not found.
func (a *App) ownedJob(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	jobID := chi.URLParam(r, "id")
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.respondError(w, http.StatusNotFound, "story not found")
		} else {
			a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: load story")
			a.respondError(w, http.StatusInternalServerError, "failed to load story")
		}
		return nil, false
	}
	if job.OwnerID != middleware.UserIDFromContext(r.Context()) {
		a.respondError(w, http.StatusNotFound, "story not found")
		return nil, false
	}
	return job, true
}

func profileFromForm(r *http.Request) (domain.ChildProfile, error) {
	age, _ := strconv.Atoi(strings.TrimSpace(r.FormValue("childAge")))
	profile := domain.ChildProfile{
		Name:             strings.TrimSpace(r.FormValue("childName")),
		Age:              age,
		Height:           strings.TrimSpace(r.FormValue("childHeight")),
		FavoriteFood:     strings.TrimSpace(r.FormValue("favoriteFood")),
		FavoriteActivity: strings.TrimSpace(r.FormValue("favoriteActivity")),
		BestMemory:       strings.TrimSpace(r.FormValue("bestMemory")),
		Personality:      strings.TrimSpace(r.FormValue("personality")),
		Gender:           strings.TrimSpace(r.FormValue("gender")),
		HairColor:        strings.TrimSpace(r.FormValue("hairColor")),
		FavoriteColor:    strings.TrimSpace(r.FormValue("favoriteColor")),
	}
	if err := profile.Validate(); err != nil {
		return domain.ChildProfile{}, err
	}
	return profile, nil
}

func drawingsFromForm(r *http.Request) ([]pipeline.Drawing, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	files := r.MultipartForm.File["drawings"]
	var drawings []pipeline.Drawing
	for i, header := range files {
		file, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("open drawing %d: %w", i+1, err)
		}
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			return nil, fmt.Errorf("read drawing %d: %w", i+1, err)
		}
		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		drawings = append(drawings, pipeline.Drawing{
			Filename:    header.Filename,
			ContentType: contentType,
			Data:        data,
		})
	}
	return drawings, nil
}
