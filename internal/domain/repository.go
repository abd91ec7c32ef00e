package domain

import (
	"context"
	"time"
)

// JobRepository persists story jobs. Every status write is durable before the
// pipeline proceeds, so observers see monotonic forward progress.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// Transition timestamps are supplied by the caller and persisted as-is,
	// so pulled rows and pushed snapshots carry identical times.
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, updatedAt time.Time) error
	// SetNarrative stores the generated narrative and moves the job to
	// generating_images in a single update.
	SetNarrative(ctx context.Context, jobID string, narrative *Narrative, updatedAt time.Time) error
	MarkCompleted(ctx context.Context, jobID string, completedAt time.Time) error
	MarkFailed(ctx context.Context, jobID string, errorMessage string, failedAt time.Time) error
}

// AssetRepository persists page assets.
type AssetRepository interface {
	Save(ctx context.Context, asset *Asset) error
	ListByJobID(ctx context.Context, jobID string) ([]Asset, error)
}

// StatusPublisher pushes job snapshots to interested observers. Publishing is
// best effort; the durable job row remains the source of truth.
type StatusPublisher interface {
	Publish(ctx context.Context, snapshot JobSnapshot) error
}
