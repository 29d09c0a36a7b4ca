package veriq

import (
	"context"
	"strconv"
	"time"

	ikeys "github.com/VeriQ/veriq-go/internal/keys"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event topics published by the lifecycle components.
const (
	TopicTaskScheduled    = "TaskScheduled"
	TopicWorkersNotified  = "WorkersNotified"
	TopicTaskReset        = "TaskReset"
	TopicTaskFailed       = "TaskFailed"
	TopicTaskConsolidated = "TaskConsolidated"
)

// EventBus publishes lifecycle events with at-least-once semantics.
// Consumers are responsible for idempotent handling.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// RedisEventBus appends events to a Redis stream. Streams (unlike pub/sub)
// retain entries until trimmed, which is what at-least-once delivery to a
// consumer group needs.
type RedisEventBus struct {
	rdb     redis.UniversalClient
	encoder Encoder
	now     func() time.Time
}

// NewRedisEventBus creates an event bus backed by the shared Redis client.
func NewRedisEventBus(rdb redis.UniversalClient) *RedisEventBus {
	return &RedisEventBus{rdb: rdb, encoder: &JSONEncoder{}, now: time.Now}
}

// Publish appends one event entry to the stream.
func (b *RedisEventBus) Publish(ctx context.Context, topic string, payload any) error {
	raw, err := b.encoder.Encode(payload)
	if err != nil {
		return err
	}
	return b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: ikeys.Events(),
		Values: map[string]any{
			"event_id": uuid.NewString(),
			"topic":    topic,
			"ts_ms":    strconv.FormatInt(b.now().UnixMilli(), 10),
			"payload":  string(raw),
		},
	}).Err()
}

// TaskScheduledEvent is emitted per task promoted by the scheduler.
type TaskScheduledEvent struct {
	TaskID   string `json:"task_id"`
	TaskType string `json:"task_type"`
	Priority int    `json:"priority"`
}

// WorkersNotifiedEvent is emitted after the matcher fans out notifications.
type WorkersNotifiedEvent struct {
	TaskID    string   `json:"task_id"`
	WorkerIDs []string `json:"worker_ids"`
	ExpiresAt int64    `json:"expires_at_ms"`
}

// TaskResetEvent is emitted when stalled-task recovery requeues a task.
type TaskResetEvent struct {
	TaskID         string `json:"task_id"`
	PreviousStatus Status `json:"previous_status"`
	NewStatus      Status `json:"new_status"`
	Reason         string `json:"reason"`
	WorkerID       string `json:"worker_id,omitempty"`
}

// TaskFailedEvent is emitted by the failure handler on every classified failure.
type TaskFailedEvent struct {
	TaskID           string      `json:"task_id"`
	Kind             FailureKind `json:"kind"`
	Reason           string      `json:"reason"`
	RecoveryAttempts int         `json:"recovery_attempts"`
	Recoverable      bool        `json:"recoverable"`
}

// TaskConsolidatedEvent is emitted exactly once per successful consolidation;
// the payment subsystem consumes it.
type TaskConsolidatedEvent struct {
	TaskID        string  `json:"task_id"`
	Value         string  `json:"value"`
	VerifierCount int     `json:"verifier_count"`
	Confidence    float64 `json:"confidence"`
}
