package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"storybook/internal/domain"
	"storybook/internal/middleware"
	"storybook/internal/pipeline"
	"storybook/internal/uploader"
)

type fakeJobs struct {
	mu      sync.Mutex
	jobs    map[string]*domain.Job
	creates int
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[string]*domain.Job{}}
}

func (f *fakeJobs) Create(_ context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeJobs) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobs) UpdateStatus(_ context.Context, jobID string, status domain.JobStatus, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[jobID].Status = status
	f.jobs[jobID].UpdatedAt = updatedAt
	return nil
}

func (f *fakeJobs) SetNarrative(_ context.Context, jobID string, narrative *domain.Narrative, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[jobID].Narrative = narrative
	f.jobs[jobID].Status = domain.JobStatusGeneratingImages
	f.jobs[jobID].UpdatedAt = updatedAt
	return nil
}

func (f *fakeJobs) MarkCompleted(_ context.Context, jobID string, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[jobID].Status = domain.JobStatusCompleted
	f.jobs[jobID].CompletedAt = &completedAt
	f.jobs[jobID].UpdatedAt = completedAt
	return nil
}

func (f *fakeJobs) MarkFailed(_ context.Context, jobID string, errorMessage string, failedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[jobID].Status = domain.JobStatusFailed
	f.jobs[jobID].ErrorMessage = errorMessage
	f.jobs[jobID].UpdatedAt = failedAt
	return nil
}

func (f *fakeJobs) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

type fakeAssets struct {
	mu     sync.Mutex
	assets []domain.Asset
}

func (f *fakeAssets) Save(_ context.Context, asset *domain.Asset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets = append(f.assets, *asset)
	return nil
}

func (f *fakeAssets) ListByJobID(_ context.Context, jobID string) ([]domain.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Asset
	for _, a := range f.assets {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeUploads struct {
	assets *fakeAssets
}

func (f *fakeUploads) Upload(ctx context.Context, req uploader.Request) (*domain.Asset, error) {
	asset := &domain.Asset{
		ID:         fmt.Sprintf("asset-%d", req.PageNumber),
		JobID:      req.JobID,
		PageNumber: req.PageNumber,
		Origin:     req.Origin,
		URL:        fmt.Sprintf("http://store/%s/%d", req.JobID, req.PageNumber),
		CreatedAt:  time.Now().UTC(),
	}
	if err := f.assets.Save(ctx, asset); err != nil {
		return nil, err
	}
	return asset, nil
}

type fakeNarrator struct{}

func (fakeNarrator) Generate(context.Context, domain.ChildProfile, string) (*domain.Narrative, error) {
	pages := make([]domain.Page, domain.PageCount)
	for i := range pages {
		pages[i] = domain.Page{
			Number:      i + 1,
			Text:        fmt.Sprintf("Sida %d.", i+1),
			ImagePrompt: fmt.Sprintf("scene %d", i+1),
		}
	}
	return &domain.Narrative{Title: "Ellens äventyr", Pages: pages}, nil
}

type fakeIllustrator struct{}

func (fakeIllustrator) Generate(context.Context, string) ([]byte, string, error) {
	return []byte("png"), "image/png", nil
}

type fakeSubscriber struct{}

func (fakeSubscriber) Subscribe(context.Context, string) (<-chan domain.JobSnapshot, error) {
	ch := make(chan domain.JobSnapshot)
	close(ch)
	return ch, nil
}

func newTestApp(jobs *fakeJobs, assets *fakeAssets) *App {
	orch := pipeline.New(
		jobs,
		&fakeUploads{assets: assets},
		fakeNarrator{},
		fakeIllustrator{},
		nil,
		nil,
		zerolog.Nop(),
		pipeline.Config{},
	)
	return &App{
		Jobs:           jobs,
		Assets:         assets,
		Pipeline:       orch,
		Notifier:       fakeSubscriber{},
		Logger:         zerolog.Nop(),
		MaxUploadBytes: 32 << 20,
	}
}

func newTestRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Route("/v1/stories", func(r chi.Router) {
		r.Use(middleware.Identity)
		r.Post("/", app.CreateStory)
		r.Get("/{id}", app.GetStory)
		r.Get("/{id}/events", app.StreamStoryEvents)
		r.Get("/{id}/assets", app.ListStoryAssets)
	})
	return r
}

func storyForm(t *testing.T, drawings int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fields := map[string]string{
		"childName":        "Ellen",
		"childAge":         "5",
		"favoriteFood":     "pannkakor",
		"favoriteActivity": "rita",
		"bestMemory":       "stranden i somras",
		"personality":      "nyfiken",
		"gender":           "girl",
		"hairColor":        "blonde",
		"favoriteColor":    "purple",
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	for i := 0; i < drawings; i++ {
		part, err := writer.CreateFormFile("drawings", fmt.Sprintf("drawing_%d.png", i+1))
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte("fake png bytes")); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestCreateStoryAccepted(t *testing.T) {
	jobs := newFakeJobs()
	assets := &fakeAssets{}
	app := newTestApp(jobs, assets)
	router := newTestRouter(app)

	body, contentType := storyForm(t, 3)
	req := httptest.NewRequest(http.MethodPost, "/v1/stories", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var resp createStoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.StoryID == "" {
		t.Fatal("expected a story id")
	}
	if resp.Status != domain.JobStatusProcessing {
		t.Fatalf("status = %q, want %q", resp.Status, domain.JobStatusProcessing)
	}

	app.Pipeline.Wait()
	job, err := jobs.GetByID(context.Background(), resp.StoryID)
	if err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("job status after pipeline = %q, want %q", job.Status, domain.JobStatusCompleted)
	}
	stored, _ := assets.ListByJobID(context.Background(), resp.StoryID)
	if len(stored) != domain.PageCount {
		t.Fatalf("stored assets = %d, want %d", len(stored), domain.PageCount)
	}
}

func TestCreateStoryRejectsZeroDrawings(t *testing.T) {
	jobs := newFakeJobs()
	app := newTestApp(jobs, &fakeAssets{})
	router := newTestRouter(app)

	body, contentType := storyForm(t, 0)
	req := httptest.NewRequest(http.MethodPost, "/v1/stories", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if jobs.createCount() != 0 {
		t.Fatalf("job records created = %d, want 0", jobs.createCount())
	}
}

func TestCreateStoryRejectsIncompleteProfile(t *testing.T) {
	jobs := newFakeJobs()
	app := newTestApp(jobs, &fakeAssets{})
	router := newTestRouter(app)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("childAge", "5"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	part, err := writer.CreateFormFile("drawings", "drawing_1.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("fake png bytes")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/stories", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if jobs.createCount() != 0 {
		t.Fatalf("job records created = %d, want 0", jobs.createCount())
	}
}

func TestCreateStoryRequiresIdentity(t *testing.T) {
	app := newTestApp(newFakeJobs(), &fakeAssets{})
	router := newTestRouter(app)

	body, contentType := storyForm(t, 1)
	req := httptest.NewRequest(http.MethodPost, "/v1/stories", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestGetStoryReturnsSnapshot(t *testing.T) {
	jobs := newFakeJobs()
	now := time.Now().UTC()
	done := now.Add(time.Minute)
	jobs.jobs["story-1"] = &domain.Job{
		ID:           "story-1",
		OwnerID:      "user-1",
		Profile:      domain.ChildProfile{Name: "Ellen"},
		Locale:       "sv",
		Status:       domain.JobStatusCompleted,
		DrawingCount: 2,
		CreatedAt:    now,
		CompletedAt:  &done,
	}
	app := newTestApp(jobs, &fakeAssets{})
	router := newTestRouter(app)

	// Terminal snapshots read the same every time.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/stories/story-1", nil)
		req.Header.Set("X-User-ID", "user-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		var resp storyResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Status != domain.JobStatusCompleted {
			t.Fatalf("status = %q, want %q", resp.Status, domain.JobStatusCompleted)
		}
		if resp.ChildName != "Ellen" {
			t.Fatalf("childName = %q, want %q", resp.ChildName, "Ellen")
		}
		if resp.CompletedAt == nil {
			t.Fatal("expected completedAt to be set")
		}
	}
}

func TestGetStoryHidesForeignJobs(t *testing.T) {
	jobs := newFakeJobs()
	jobs.jobs["story-1"] = &domain.Job{ID: "story-1", OwnerID: "someone-else", Status: domain.JobStatusProcessing}
	app := newTestApp(jobs, &fakeAssets{})
	router := newTestRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/v1/stories/story-1", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetStoryNotFound(t *testing.T) {
	app := newTestApp(newFakeJobs(), &fakeAssets{})
	router := newTestRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/v1/stories/missing", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestListStoryAssets(t *testing.T) {
	jobs := newFakeJobs()
	jobs.jobs["story-1"] = &domain.Job{ID: "story-1", OwnerID: "user-1", Status: domain.JobStatusCompleted}
	assets := &fakeAssets{assets: []domain.Asset{
		{ID: "a1", JobID: "story-1", PageNumber: 1, Origin: domain.AssetOriginUserDrawing, URL: "http://store/story-1/1"},
		{ID: "a2", JobID: "story-1", PageNumber: 2, Origin: domain.AssetOriginAIGenerated, URL: "http://store/story-1/2"},
		{ID: "b1", JobID: "story-2", PageNumber: 1, Origin: domain.AssetOriginUserDrawing, URL: "http://store/story-2/1"},
	}}
	app := newTestApp(jobs, assets)
	router := newTestRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/v1/stories/story-1/assets", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		StoryID string          `json:"storyId"`
		Assets  []assetResponse `json:"assets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.StoryID != "story-1" {
		t.Fatalf("storyId = %q, want %q", resp.StoryID, "story-1")
	}
	if len(resp.Assets) != 2 {
		t.Fatalf("assets = %d, want 2", len(resp.Assets))
	}
}
