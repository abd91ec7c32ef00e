package domain

import "time"

// JobStatus enumerates story job lifecycle states.
type JobStatus string

const (
	JobStatusProcessing       JobStatus = "processing"
	JobStatusGeneratingStory  JobStatus = "generating_story"
	JobStatusGeneratingImages JobStatus = "generating_images"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusFailed           JobStatus = "failed"
)

// Terminal reports whether no further transitions can occur from the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job encapsulates one request to turn a child profile plus uploaded drawings
// into a ten-page illustrated storybook. The record is created with status
// processing and is mutated exclusively by its own pipeline task.
type Job struct {
	ID           string
	OwnerID      string
	Profile      ChildProfile
	Locale       string
	Status       JobStatus
	Narrative    *Narrative
	ErrorMessage string
	DrawingCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// JobSnapshot is the observable projection of a job, published on every status
// transition. Delivery is at-least-once; consumers must treat repeated
// identical snapshots as no-ops.
type JobSnapshot struct {
	JobID        string     `json:"storyId"`
	Status       JobStatus  `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Snapshot builds the observable projection of the job's current state.
func (j *Job) Snapshot() JobSnapshot {
	return JobSnapshot{
		JobID:        j.ID,
		Status:       j.Status,
		ErrorMessage: j.ErrorMessage,
		CompletedAt:  j.CompletedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}
