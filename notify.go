package veriq

import (
	"context"
	"time"

	ikeys "github.com/VeriQ/veriq-go/internal/keys"
	"github.com/redis/go-redis/v9"
)

// WorkerNotifier delivers task offers to workers. The transport that drains
// worker inboxes and collects responses is outside this core; acceptances
// come back through an AcceptSource.
type WorkerNotifier interface {
	Notify(ctx context.Context, workerID, taskID string, expiresAt time.Time) error
}

// AcceptSource yields worker IDs that accepted a task offer. PollAccepts
// must not block; the matcher owns the bounded wait.
type AcceptSource interface {
	PollAccepts(ctx context.Context, taskID string) ([]string, error)
}

// TaskNotification is the offer payload pushed to a worker's inbox.
type TaskNotification struct {
	TaskID    string `json:"task_id"`
	WorkerID  string `json:"worker_id"`
	ExpiresAt int64  `json:"expires_at_ms"`
}

// RedisNotifier pushes offers to per-worker Redis inbox lists and reads
// acceptances from per-task accept lists.
type RedisNotifier struct {
	rdb     redis.UniversalClient
	encoder Encoder
}

// NewRedisNotifier creates a notifier on the shared Redis client.
func NewRedisNotifier(rdb redis.UniversalClient) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, encoder: &JSONEncoder{}}
}

// Notify pushes one offer to the worker's inbox.
func (n *RedisNotifier) Notify(ctx context.Context, workerID, taskID string, expiresAt time.Time) error {
	raw, err := n.encoder.Encode(TaskNotification{
		TaskID:    taskID,
		WorkerID:  workerID,
		ExpiresAt: expiresAt.UnixMilli(),
	})
	if err != nil {
		return err
	}
	return n.rdb.LPush(ctx, ikeys.Inbox(workerID), raw).Err()
}

// PollAccepts drains any worker IDs currently queued on the task's accept list.
func (n *RedisNotifier) PollAccepts(ctx context.Context, taskID string) ([]string, error) {
	var out []string
	for {
		w, err := n.rdb.RPop(ctx, ikeys.Accepts(taskID)).Result()
		if err == redis.Nil {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, w)
	}
}

// Accept records a worker's acceptance of a task offer. Worker-facing
// transports call this from their response side-channel.
func (n *RedisNotifier) Accept(ctx context.Context, taskID, workerID string) error {
	return n.rdb.LPush(ctx, ikeys.Accepts(taskID), workerID).Err()
}
