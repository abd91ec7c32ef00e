// Package pipeline drives one story job from uploaded drawings to a finished,
// illustrated book.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storybook/internal/domain"
	"storybook/internal/infra"
	"storybook/internal/observability"
	"storybook/internal/providers/illustration"
	"storybook/internal/uploader"
)

// Drawing is one user-submitted image file, in submission order.
type Drawing struct {
	Filename    string
	ContentType string
	Data        []byte
}

// NarrativeGenerator produces the ten-page story for a profile.
type NarrativeGenerator interface {
	Generate(ctx context.Context, profile domain.ChildProfile, locale string) (*domain.Narrative, error)
}

// IllustrationGenerator renders one page image for a prompt.
type IllustrationGenerator interface {
	Generate(ctx context.Context, prompt string) (data []byte, contentType string, err error)
}

// AssetUploader stores one page image durably and records its metadata.
type AssetUploader interface {
	Upload(ctx context.Context, req uploader.Request) (*domain.Asset, error)
}

// Config bounds the pipeline's external calls.
type Config struct {
	UploadTimeout       time.Duration
	NarrativeTimeout    time.Duration
	IllustrationTimeout time.Duration
	// IllustrationRetries is the number of extra attempts per page after the
	// first one fails.
	IllustrationRetries int
}

// Orchestrator runs the job state machine: processing -> generating_story ->
// generating_images -> completed, with failed as the absorbing error state.
// Each job gets its own detached task; the job row is mutated only by that
// task, and every transition is durably persisted before the next stage runs.
type Orchestrator struct {
	jobs        domain.JobRepository
	uploads     AssetUploader
	narratives  NarrativeGenerator
	illustrator IllustrationGenerator
	publisher   domain.StatusPublisher
	metrics     *observability.Metrics
	logger      infra.Logger
	cfg         Config

	wg sync.WaitGroup
}

// New constructs an Orchestrator. publisher and metrics may be nil.
func New(
	jobs domain.JobRepository,
	uploads AssetUploader,
	narratives NarrativeGenerator,
	illustrator IllustrationGenerator,
	publisher domain.StatusPublisher,
	metrics *observability.Metrics,
	logger infra.Logger,
	cfg Config,
) *Orchestrator {
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}
	if cfg.NarrativeTimeout <= 0 {
		cfg.NarrativeTimeout = 90 * time.Second
	}
	if cfg.IllustrationTimeout <= 0 {
		cfg.IllustrationTimeout = 120 * time.Second
	}
	return &Orchestrator{
		jobs:        jobs,
		uploads:     uploads,
		narratives:  narratives,
		illustrator: illustrator,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
	}
}

// Start schedules the pipeline for an already-persisted job and returns
// immediately. The task runs detached from the request that created the job.
func (o *Orchestrator) Start(job *domain.Job, drawings []Drawing) {
	if o.metrics != nil {
		o.metrics.JobsStarted.Inc()
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(context.Background(), job, drawings)
	}()
}

// Wait blocks until all in-flight pipelines have finished. Used on shutdown
// and in tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, job *domain.Job, drawings []Drawing) {
	logger := o.logger.With().Str("job_id", job.ID).Logger()
	logger.Info().Int("drawings", len(drawings)).Msg("pipeline: started")

	covered, err := o.uploadStage(ctx, job, drawings)
	if err != nil {
		o.fail(ctx, job, logger, err)
		return
	}

	if err := o.transition(ctx, job, domain.JobStatusGeneratingStory); err != nil {
		o.fail(ctx, job, logger, fmt.Errorf("persist status: %w", err))
		return
	}

	story, err := o.narrativeStage(ctx, job)
	if err != nil {
		o.fail(ctx, job, logger, err)
		return
	}

	// SetNarrative persists the story and the generating_images transition in
	// one durable write.
	narrativeAt := time.Now().UTC()
	if err := o.jobs.SetNarrative(ctx, job.ID, story, narrativeAt); err != nil {
		o.fail(ctx, job, logger, fmt.Errorf("persist narrative: %w", err))
		return
	}
	job.Narrative = story
	job.Status = domain.JobStatusGeneratingImages
	job.UpdatedAt = narrativeAt
	o.publish(ctx, job)

	o.illustrationStage(ctx, job, story, covered, logger)

	completedAt := time.Now().UTC()
	if err := o.jobs.MarkCompleted(ctx, job.ID, completedAt); err != nil {
		o.fail(ctx, job, logger, fmt.Errorf("persist completion: %w", err))
		return
	}
	job.Status = domain.JobStatusCompleted
	job.CompletedAt = &completedAt
	job.UpdatedAt = completedAt
	o.publish(ctx, job)
	if o.metrics != nil {
		o.metrics.JobsCompleted.Inc()
	}
	logger.Info().Msg("pipeline: completed")
}

// uploadStage stores the first ten submitted drawings as pages 1..k and
// returns k. Drawings beyond the tenth are silently ignored; the book format
// is fixed at ten pages.
func (o *Orchestrator) uploadStage(ctx context.Context, job *domain.Job, drawings []Drawing) (int, error) {
	start := time.Now()
	defer o.observeStage("upload", start)

	count := len(drawings)
	if count > domain.PageCount {
		count = domain.PageCount
	}
	for i := 0; i < count; i++ {
		uploadCtx, cancel := context.WithTimeout(ctx, o.cfg.UploadTimeout)
		_, err := o.uploads.Upload(uploadCtx, uploader.Request{
			JobID:            job.ID,
			PageNumber:       i + 1,
			Data:             drawings[i].Data,
			ContentType:      drawings[i].ContentType,
			OriginalFilename: drawings[i].Filename,
			Origin:           domain.AssetOriginUserDrawing,
		})
		cancel()
		if err != nil {
			return 0, fmt.Errorf("upload drawing for page %d: %w", i+1, err)
		}
	}
	return count, nil
}

func (o *Orchestrator) narrativeStage(ctx context.Context, job *domain.Job) (*domain.Narrative, error) {
	start := time.Now()
	defer o.observeStage("narrative", start)

	genCtx, cancel := context.WithTimeout(ctx, o.cfg.NarrativeTimeout)
	defer cancel()
	return o.narratives.Generate(genCtx, job.Profile, job.Locale)
}

// illustrationStage renders pages not covered by user drawings. Pages are
// independent, so they are generated concurrently; the stage returns only
// after every page's attempt has resolved. A page whose generation keeps
// failing is logged and left without an asset - the job still completes.
func (o *Orchestrator) illustrationStage(ctx context.Context, job *domain.Job, story *domain.Narrative, covered int, logger infra.Logger) {
	start := time.Now()
	defer o.observeStage("illustration", start)

	var wg sync.WaitGroup
	for _, page := range story.Pages {
		if page.Number <= covered {
			continue
		}
		wg.Add(1)
		go func(page domain.Page) {
			defer wg.Done()
			o.illustratePage(ctx, job, page, logger)
		}(page)
	}
	wg.Wait()
}

func (o *Orchestrator) illustratePage(ctx context.Context, job *domain.Job, page domain.Page, logger infra.Logger) {
	prompt := illustration.BuildPrompt(page, job.Profile)

	var lastErr error
	for attempt := 0; attempt <= o.cfg.IllustrationRetries; attempt++ {
		genCtx, cancel := context.WithTimeout(ctx, o.cfg.IllustrationTimeout)
		data, contentType, err := o.illustrator.Generate(genCtx, prompt)
		if err == nil {
			_, err = o.uploads.Upload(genCtx, uploader.Request{
				JobID:        job.ID,
				PageNumber:   page.Number,
				Data:         data,
				ContentType:  contentType,
				Origin:       domain.AssetOriginAIGenerated,
				SourcePrompt: prompt,
			})
		}
		cancel()
		if err == nil {
			return
		}
		lastErr = err
		logger.Warn().Err(err).Int("page", page.Number).Int("attempt", attempt+1).Msg("pipeline: illustration attempt failed")
	}

	// Accepted per-page failure: the book ships with this page unillustrated.
	logger.Error().Err(lastErr).Int("page", page.Number).Msg("pipeline: page left without illustration")
	if o.metrics != nil {
		o.metrics.PagesSkipped.Inc()
	}
}

func (o *Orchestrator) transition(ctx context.Context, job *domain.Job, status domain.JobStatus) error {
	// One timestamp per transition, persisted and published alike.
	now := time.Now().UTC()
	if err := o.jobs.UpdateStatus(ctx, job.ID, status, now); err != nil {
		return err
	}
	job.Status = status
	job.UpdatedAt = now
	o.publish(ctx, job)
	return nil
}

// fail translates any stage error into the terminal failed state. Errors are
// never left to crash the background task silently.
func (o *Orchestrator) fail(ctx context.Context, job *domain.Job, logger infra.Logger, cause error) {
	logger.Error().Err(cause).Msg("pipeline: failed")
	if o.metrics != nil {
		o.metrics.JobsFailed.Inc()
	}
	failedAt := time.Now().UTC()
	if err := o.jobs.MarkFailed(ctx, job.ID, cause.Error(), failedAt); err != nil {
		logger.Error().Err(err).Msg("pipeline: persist failed state")
		return
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = cause.Error()
	job.UpdatedAt = failedAt
	o.publish(ctx, job)
}

func (o *Orchestrator) publish(ctx context.Context, job *domain.Job) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, job.Snapshot()); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("pipeline: publish status")
	}
}

func (o *Orchestrator) observeStage(stage string, start time.Time) {
	if o.metrics != nil {
		o.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
