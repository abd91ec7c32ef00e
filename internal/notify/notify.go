// Package notify fans job status snapshots out to observers, either through
// Redis pub/sub or by polling the durable job record.
package notify

import (
	"context"

	"storybook/internal/domain"
)

// Subscriber delivers a stream of job snapshots. The channel closes once the
// job reaches a terminal state or the context is cancelled. Delivery is
// at-least-once per transition; consumers treat duplicates as no-ops.
type Subscriber interface {
	Subscribe(ctx context.Context, jobID string) (<-chan domain.JobSnapshot, error)
}
