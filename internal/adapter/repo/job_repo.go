package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storybook/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository backed by PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new story job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO stories (
    id, owner_id, child_name, child_age, child_height, favorite_food,
    favorite_activity, best_memory, personality, gender, hair_color,
    favorite_color, locale, status, drawing_count, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.OwnerID,
		job.Profile.Name,
		job.Profile.Age,
		job.Profile.Height,
		job.Profile.FavoriteFood,
		job.Profile.FavoriteActivity,
		job.Profile.BestMemory,
		job.Profile.Personality,
		job.Profile.Gender,
		job.Profile.HairColor,
		job.Profile.FavoriteColor,
		job.Locale,
		job.Status,
		job.DrawingCount,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT id, owner_id, child_name, child_age, child_height, favorite_food,
       favorite_activity, best_memory, personality, gender, hair_color,
       favorite_color, locale, status, story_data, error_message,
       drawing_count, created_at, updated_at, completed_at
FROM stories
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, jobID)
	var (
		job       domain.Job
		storyData []byte
		errMsg    *string
	)
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Profile.Name,
		&job.Profile.Age,
		&job.Profile.Height,
		&job.Profile.FavoriteFood,
		&job.Profile.FavoriteActivity,
		&job.Profile.BestMemory,
		&job.Profile.Personality,
		&job.Profile.Gender,
		&job.Profile.HairColor,
		&job.Profile.FavoriteColor,
		&job.Locale,
		&job.Status,
		&storyData,
		&errMsg,
		&job.DrawingCount,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	if len(storyData) > 0 {
		var narrative domain.Narrative
		if err := json.Unmarshal(storyData, &narrative); err != nil {
			return nil, fmt.Errorf("decode story data: %w", err)
		}
		job.Narrative = &narrative
	}
	return &job, nil
}

// UpdateStatus moves the job to the given status. The caller's timestamp is
// persisted so the row matches the snapshot published for this transition.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, updatedAt time.Time) error {
	query := `
UPDATE stories
SET status = $2,
    updated_at = $3
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, status, updatedAt)
	return err
}

// SetNarrative stores the generated narrative and moves the job to
// generating_images in one update so observers never see the narrative
// without the matching status.
func (r *JobRepositoryPG) SetNarrative(ctx context.Context, jobID string, narrative *domain.Narrative, updatedAt time.Time) error {
	data, err := json.Marshal(narrative)
	if err != nil {
		return fmt.Errorf("encode story data: %w", err)
	}
	query := `
UPDATE stories
SET story_data = $2,
    status = $3,
    updated_at = $4
WHERE id = $1;
`
	_, err = r.pool.Exec(ctx, query, jobID, data, domain.JobStatusGeneratingImages, updatedAt)
	return err
}

// MarkCompleted stamps the completion time and moves the job to completed.
func (r *JobRepositoryPG) MarkCompleted(ctx context.Context, jobID string, completedAt time.Time) error {
	query := `
UPDATE stories
SET status = $2,
    completed_at = $3,
    updated_at = $3
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, domain.JobStatusCompleted, completedAt)
	return err
}

// MarkFailed moves the job to the terminal failed state with its error message.
func (r *JobRepositoryPG) MarkFailed(ctx context.Context, jobID string, errorMessage string, failedAt time.Time) error {
	query := `
UPDATE stories
SET status = $2,
    error_message = $3,
    updated_at = $4
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, domain.JobStatusFailed, errorMessage, failedAt)
	return err
}
