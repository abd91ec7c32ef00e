package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"storybook/internal/domain"
	"storybook/internal/uploader"
)

type fakeJobRepo struct {
	mu        sync.Mutex
	statuses  []domain.JobStatus
	updatedAt []time.Time
	narrative *domain.Narrative
	errorMsg  string
	completed *time.Time
}

func (r *fakeJobRepo) Create(ctx context.Context, job *domain.Job) error { return nil }

func (r *fakeJobRepo) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeJobRepo) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	r.updatedAt = append(r.updatedAt, updatedAt)
	return nil
}

func (r *fakeJobRepo) SetNarrative(ctx context.Context, jobID string, narrative *domain.Narrative, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.narrative = narrative
	r.statuses = append(r.statuses, domain.JobStatusGeneratingImages)
	r.updatedAt = append(r.updatedAt, updatedAt)
	return nil
}

func (r *fakeJobRepo) MarkCompleted(ctx context.Context, jobID string, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = &completedAt
	r.statuses = append(r.statuses, domain.JobStatusCompleted)
	r.updatedAt = append(r.updatedAt, completedAt)
	return nil
}

func (r *fakeJobRepo) MarkFailed(ctx context.Context, jobID string, errorMessage string, failedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorMsg = errorMessage
	r.statuses = append(r.statuses, domain.JobStatusFailed)
	r.updatedAt = append(r.updatedAt, failedAt)
	return nil
}

type uploadedPage struct {
	page   int
	origin domain.AssetOrigin
}

type fakeUploader struct {
	mu       sync.Mutex
	uploads  []uploadedPage
	failPage int
}

func (u *fakeUploader) Upload(ctx context.Context, req uploader.Request) (*domain.Asset, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failPage != 0 && req.PageNumber == u.failPage && req.Origin == domain.AssetOriginUserDrawing {
		return nil, fmt.Errorf("%w: provider rejected write", domain.ErrUploadFailed)
	}
	u.uploads = append(u.uploads, uploadedPage{page: req.PageNumber, origin: req.Origin})
	return &domain.Asset{JobID: req.JobID, PageNumber: req.PageNumber, Origin: req.Origin}, nil
}

func (u *fakeUploader) byOrigin(origin domain.AssetOrigin) []int {
	u.mu.Lock()
	defer u.mu.Unlock()
	var pages []int
	for _, up := range u.uploads {
		if up.origin == origin {
			pages = append(pages, up.page)
		}
	}
	return pages
}

type fakeNarrator struct {
	err error
}

func (n *fakeNarrator) Generate(ctx context.Context, profile domain.ChildProfile, locale string) (*domain.Narrative, error) {
	if n.err != nil {
		return nil, n.err
	}
	story := &domain.Narrative{Title: profile.Name + "s äventyr"}
	for i := 1; i <= domain.PageCount; i++ {
		story.Pages = append(story.Pages, domain.Page{
			Number:      i,
			Text:        fmt.Sprintf("%s lekte. Det var sida %d.", profile.Name, i),
			ImagePrompt: "a happy child playing",
		})
	}
	return story, nil
}

type fakeIllustrator struct {
	mu        sync.Mutex
	calls     int
	failPages map[int]bool
}

func (il *fakeIllustrator) Generate(ctx context.Context, prompt string) ([]byte, string, error) {
	il.mu.Lock()
	defer il.mu.Unlock()
	il.calls++
	for page := range il.failPages {
		if strings.Contains(prompt, pageMarker(page)) {
			return nil, "", fmt.Errorf("%w: timeout", domain.ErrIllustration)
		}
	}
	return []byte("img"), "image/png", nil
}

// pageMarker lets the fake tell pages apart through their prompts.
func pageMarker(page int) string {
	return fmt.Sprintf("marker-%02d", page)
}

type capturingPublisher struct {
	mu        sync.Mutex
	snapshots []domain.JobSnapshot
}

func (p *capturingPublisher) Publish(ctx context.Context, snapshot domain.JobSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, snapshot)
	return nil
}

func testJob() *domain.Job {
	return &domain.Job{
		ID:      "job-1",
		OwnerID: "user-1",
		Locale:  "sv",
		Status:  domain.JobStatusProcessing,
		Profile: domain.ChildProfile{
			Name:             "Alva",
			Age:              5,
			FavoriteFood:     "pannkakor",
			FavoriteActivity: "måla",
			BestMemory:       "en dag på stranden",
		},
	}
}

func drawings(n int) []Drawing {
	var out []Drawing
	for i := 0; i < n; i++ {
		out = append(out, Drawing{
			Filename:    fmt.Sprintf("teckning-%d.png", i+1),
			ContentType: "image/png",
			Data:        []byte{byte(i)},
		})
	}
	return out
}

func newOrchestrator(jobs *fakeJobRepo, uploads *fakeUploader, narrator NarrativeGenerator, illustrator *fakeIllustrator, publisher domain.StatusPublisher) *Orchestrator {
	return New(jobs, uploads, narrator, illustrator, publisher, nil, zerolog.New(io.Discard), Config{
		IllustrationRetries: 1,
	})
}

// Scenario: three drawings submitted, everything succeeds. Pages 1-3 come from
// the user, pages 4-10 are generated, and the job completes.
func TestRunCompletes(t *testing.T) {
	jobs := &fakeJobRepo{}
	uploads := &fakeUploader{}
	publisher := &capturingPublisher{}
	o := newOrchestrator(jobs, uploads, &fakeNarrator{}, &fakeIllustrator{}, publisher)

	o.Start(testJob(), drawings(3))
	o.Wait()

	wantStatuses := []domain.JobStatus{
		domain.JobStatusGeneratingStory,
		domain.JobStatusGeneratingImages,
		domain.JobStatusCompleted,
	}
	if len(jobs.statuses) != len(wantStatuses) {
		t.Fatalf("statuses = %v, want %v", jobs.statuses, wantStatuses)
	}
	for i, want := range wantStatuses {
		if jobs.statuses[i] != want {
			t.Fatalf("statuses = %v, want %v", jobs.statuses, wantStatuses)
		}
	}

	userPages := uploads.byOrigin(domain.AssetOriginUserDrawing)
	if len(userPages) != 3 {
		t.Fatalf("user drawing pages = %v, want 3 pages", userPages)
	}
	aiPages := uploads.byOrigin(domain.AssetOriginAIGenerated)
	if len(aiPages) != 7 {
		t.Fatalf("ai generated pages = %v, want 7 pages", aiPages)
	}
	seen := make(map[int]bool)
	for _, p := range aiPages {
		if p < 4 || p > 10 {
			t.Fatalf("ai illustration generated for covered page %d", p)
		}
		seen[p] = true
	}
	if len(seen) != 7 {
		t.Fatalf("ai pages not unique: %v", aiPages)
	}

	if jobs.narrative == nil || len(jobs.narrative.Pages) != 10 {
		t.Fatal("narrative not persisted")
	}
	if jobs.completed == nil {
		t.Fatal("completedAt not stamped")
	}
	if got := publisher.snapshots[len(publisher.snapshots)-1].Status; got != domain.JobStatusCompleted {
		t.Fatalf("last published status = %s", got)
	}
}

// Ten or more drawings cover every page; no illustration calls are made, and
// drawings beyond the tenth are ignored.
func TestRunAllPagesCovered(t *testing.T) {
	jobs := &fakeJobRepo{}
	uploads := &fakeUploader{}
	illustrator := &fakeIllustrator{}
	o := newOrchestrator(jobs, uploads, &fakeNarrator{}, illustrator, nil)

	o.Start(testJob(), drawings(12))
	o.Wait()

	if got := uploads.byOrigin(domain.AssetOriginUserDrawing); len(got) != 10 {
		t.Fatalf("user drawing pages = %v, want exactly 10", got)
	}
	if illustrator.calls != 0 {
		t.Fatalf("illustrator called %d times for a fully covered book", illustrator.calls)
	}
	if jobs.statuses[len(jobs.statuses)-1] != domain.JobStatusCompleted {
		t.Fatalf("final status = %s", jobs.statuses[len(jobs.statuses)-1])
	}
}

// Scenario: the text-completion provider returns garbage. The job fails with a
// parse error and no narrative is persisted.
func TestRunNarrativeFailure(t *testing.T) {
	jobs := &fakeJobRepo{}
	narrator := &fakeNarrator{err: fmt.Errorf("%w: parse story content: invalid character 'O'", domain.ErrMalformedNarrative)}
	o := newOrchestrator(jobs, &fakeUploader{}, narrator, &fakeIllustrator{}, nil)

	o.Start(testJob(), drawings(2))
	o.Wait()

	last := jobs.statuses[len(jobs.statuses)-1]
	if last != domain.JobStatusFailed {
		t.Fatalf("final status = %s, want failed", last)
	}
	if jobs.narrative != nil {
		t.Fatal("narrative persisted despite failure")
	}
	if !strings.Contains(jobs.errorMsg, "parse story content") {
		t.Fatalf("errorMessage = %q, want parse detail", jobs.errorMsg)
	}
	// failed was reached from generating_story; generating_images never happened
	for _, s := range jobs.statuses {
		if s == domain.JobStatusGeneratingImages || s == domain.JobStatusCompleted {
			t.Fatalf("unexpected status %s after fatal narrative error", s)
		}
	}
}

// Upload failures are fatal: the job fails before any story generation.
func TestRunUploadFailure(t *testing.T) {
	jobs := &fakeJobRepo{}
	uploads := &fakeUploader{failPage: 2}
	narrator := &fakeNarrator{}
	o := newOrchestrator(jobs, uploads, narrator, &fakeIllustrator{}, nil)

	o.Start(testJob(), drawings(3))
	o.Wait()

	if len(jobs.statuses) != 1 || jobs.statuses[0] != domain.JobStatusFailed {
		t.Fatalf("statuses = %v, want [failed]", jobs.statuses)
	}
	if !strings.Contains(jobs.errorMsg, "page 2") {
		t.Fatalf("errorMessage = %q, want page 2 cited", jobs.errorMsg)
	}
}

// Scenario: one page's illustration keeps failing. The job still completes,
// with that page's asset absent.
func TestRunPageIllustrationFailureIsAccepted(t *testing.T) {
	jobs := &fakeJobRepo{}
	uploads := &fakeUploader{}
	narrator := &markedNarrator{}
	illustrator := &fakeIllustrator{failPages: map[int]bool{7: true}}
	o := newOrchestrator(jobs, uploads, narrator, illustrator, nil)

	o.Start(testJob(), drawings(3))
	o.Wait()

	if jobs.statuses[len(jobs.statuses)-1] != domain.JobStatusCompleted {
		t.Fatalf("final status = %s, want completed", jobs.statuses[len(jobs.statuses)-1])
	}
	aiPages := uploads.byOrigin(domain.AssetOriginAIGenerated)
	if len(aiPages) != 6 {
		t.Fatalf("ai pages = %v, want 6 (page 7 absent)", aiPages)
	}
	for _, p := range aiPages {
		if p == 7 {
			t.Fatal("page 7 unexpectedly has an asset")
		}
	}
	if jobs.errorMsg != "" {
		t.Fatalf("errorMessage = %q, want empty", jobs.errorMsg)
	}
}

// markedNarrator embeds a per-page marker in each imagePrompt so the fake
// illustrator can fail a specific page.
type markedNarrator struct{}

func (n *markedNarrator) Generate(ctx context.Context, profile domain.ChildProfile, locale string) (*domain.Narrative, error) {
	story := &domain.Narrative{Title: "Markerad saga"}
	for i := 1; i <= domain.PageCount; i++ {
		story.Pages = append(story.Pages, domain.Page{
			Number:      i,
			Text:        "En mening. Två meningar.",
			ImagePrompt: "scene " + pageMarker(i),
		})
	}
	return story, nil
}

// A failing page is retried the configured number of times before being
// abandoned.
func TestIllustrationRetries(t *testing.T) {
	jobs := &fakeJobRepo{}
	uploads := &fakeUploader{}
	illustrator := &fakeIllustrator{failPages: map[int]bool{10: true}}
	o := New(jobs, uploads, &markedNarrator{}, illustrator, nil, nil, zerolog.New(io.Discard), Config{
		IllustrationRetries: 2,
	})

	o.Start(testJob(), drawings(9))
	o.Wait()

	// only page 10 is uncovered; it fails 1 + 2 retries = 3 attempts
	if illustrator.calls != 3 {
		t.Fatalf("illustrator calls = %d, want 3", illustrator.calls)
	}
	if jobs.statuses[len(jobs.statuses)-1] != domain.JobStatusCompleted {
		t.Fatalf("final status = %s, want completed", jobs.statuses[len(jobs.statuses)-1])
	}
}

// The observed status sequence never moves backward through the state list.
func TestStatusSequenceMonotonic(t *testing.T) {
	rank := map[domain.JobStatus]int{
		domain.JobStatusProcessing:       0,
		domain.JobStatusGeneratingStory:  1,
		domain.JobStatusGeneratingImages: 2,
		domain.JobStatusCompleted:        3,
		domain.JobStatusFailed:           4,
	}

	jobs := &fakeJobRepo{}
	publisher := &capturingPublisher{}
	o := newOrchestrator(jobs, &fakeUploader{}, &fakeNarrator{}, &fakeIllustrator{}, publisher)
	o.Start(testJob(), drawings(1))
	o.Wait()

	prev := -1
	for _, s := range publisher.snapshots {
		r, ok := rank[s.Status]
		if !ok {
			t.Fatalf("unknown status %q published", s.Status)
		}
		if r < prev {
			t.Fatalf("status went backward: %v", publisher.snapshots)
		}
		prev = r
	}
}

func TestSnapshotTimestampsMatchPersistedRow(t *testing.T) {
	jobs := &fakeJobRepo{}
	publisher := &capturingPublisher{}
	o := newOrchestrator(jobs, &fakeUploader{}, &fakeNarrator{}, &fakeIllustrator{}, publisher)

	o.Start(testJob(), drawings(1))
	o.Wait()

	if len(publisher.snapshots) != len(jobs.updatedAt) {
		t.Fatalf("published %d snapshots, persisted %d transitions", len(publisher.snapshots), len(jobs.updatedAt))
	}
	for i, snapshot := range publisher.snapshots {
		if !snapshot.UpdatedAt.Equal(jobs.updatedAt[i]) {
			t.Fatalf("snapshot %d updatedAt = %v, persisted %v", i, snapshot.UpdatedAt, jobs.updatedAt[i])
		}
	}
}

func TestErrorClassification(t *testing.T) {
	jobs := &fakeJobRepo{}
	narrator := &fakeNarrator{err: fmt.Errorf("%w: upstream status 503: Service Unavailable", domain.ErrGeneration)}
	o := newOrchestrator(jobs, &fakeUploader{}, narrator, &fakeIllustrator{}, nil)

	o.Start(testJob(), drawings(1))
	o.Wait()

	if !errors.Is(narrator.err, domain.ErrGeneration) {
		t.Fatal("test fixture lost error identity")
	}
	if !strings.Contains(jobs.errorMsg, "503") {
		t.Fatalf("errorMessage = %q, want upstream detail preserved", jobs.errorMsg)
	}
}
