package notify

import (
	"context"
	"time"

	"storybook/internal/domain"
	"storybook/internal/infra"
)

// PollNotifier satisfies both publisher and subscriber roles without any
// push infrastructure: transitions are already durable on the job row, so
// subscribers simply poll it. Used when Redis is not configured.
type PollNotifier struct {
	jobs     domain.JobRepository
	interval time.Duration
	logger   infra.Logger
}

// NewPollNotifier constructs a polling notifier.
func NewPollNotifier(jobs domain.JobRepository, interval time.Duration, logger infra.Logger) *PollNotifier {
	if interval <= 0 {
		interval = time.Second
	}
	return &PollNotifier{jobs: jobs, interval: interval, logger: logger}
}

// Publish is a no-op; the durable job row is the delivery mechanism.
func (n *PollNotifier) Publish(ctx context.Context, snapshot domain.JobSnapshot) error {
	return nil
}

// Subscribe polls the job record and emits a snapshot on every observed
// status change, closing after a terminal state.
func (n *PollNotifier) Subscribe(ctx context.Context, jobID string) (<-chan domain.JobSnapshot, error) {
	job, err := n.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.JobSnapshot, 8)
	current := job.Snapshot()

	go func() {
		defer close(out)

		out <- current
		if current.Status.Terminal() {
			return
		}

		ticker := time.NewTicker(n.interval)
		defer ticker.Stop()
		last := current.Status

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				job, err := n.jobs.GetByID(ctx, jobID)
				if err != nil {
					n.logger.Warn().Err(err).Str("job_id", jobID).Msg("notify: poll job")
					continue
				}
				if job.Status == last {
					continue
				}
				last = job.Status
				select {
				case out <- job.Snapshot():
				case <-ctx.Done():
					return
				}
				if job.Status.Terminal() {
					return
				}
			}
		}
	}()
	return out, nil
}
