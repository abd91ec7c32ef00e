package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"storybook/internal/domain"
	"storybook/internal/infra"
)

const statusTTL = time.Hour

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("notify: redis connection failed: %w", err)
	}
	return client, nil
}

// RedisNotifier publishes every transition on a per-job channel and mirrors
// the latest snapshot in a keyed entry so late subscribers catch up without
// waiting for the next transition.
type RedisNotifier struct {
	client *redis.Client
	jobs   domain.JobRepository
	logger infra.Logger
}

// NewRedisNotifier constructs a notifier backed by the given Redis client.
func NewRedisNotifier(client *redis.Client, jobs domain.JobRepository, logger infra.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, jobs: jobs, logger: logger}
}

func statusChannel(jobID string) string {
	return "story:status:" + jobID
}

// Publish pushes the snapshot to subscribers and refreshes the latest-status key.
func (n *RedisNotifier) Publish(ctx context.Context, snapshot domain.JobSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("notify: encode snapshot: %w", err)
	}
	if err := n.client.Set(ctx, statusChannel(snapshot.JobID), payload, statusTTL).Err(); err != nil {
		return fmt.Errorf("notify: cache status: %w", err)
	}
	if err := n.client.Publish(ctx, statusChannel(snapshot.JobID), payload).Err(); err != nil {
		return fmt.Errorf("notify: publish status: %w", err)
	}
	return nil
}

// Subscribe streams snapshots for the job. The current durable state is
// delivered first, then pub/sub messages, closing after a terminal snapshot.
func (n *RedisNotifier) Subscribe(ctx context.Context, jobID string) (<-chan domain.JobSnapshot, error) {
	job, err := n.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.JobSnapshot, 8)
	current := job.Snapshot()

	if current.Status.Terminal() {
		out <- current
		close(out)
		return out, nil
	}

	pubsub := n.client.Subscribe(ctx, statusChannel(jobID))
	go func() {
		defer close(out)
		defer func() {
			_ = pubsub.Close()
		}()

		out <- current

		// A transition published between the first read and the subscription
		// attaching would never reach this channel; a terminal one would
		// leave the stream open forever. Re-read the durable row now that
		// the subscription is live and deliver anything missed.
		if job, err := n.jobs.GetByID(ctx, jobID); err == nil && job.Status != current.Status {
			snapshot := job.Snapshot()
			select {
			case out <- snapshot:
			case <-ctx.Done():
				return
			}
			if snapshot.Status.Terminal() {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var snapshot domain.JobSnapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snapshot); err != nil {
					n.logger.Warn().Err(err).Str("job_id", jobID).Msg("notify: bad status payload")
					continue
				}
				select {
				case out <- snapshot:
				case <-ctx.Done():
					return
				}
				if snapshot.Status.Terminal() {
					return
				}
			}
		}
	}()
	return out, nil
}
