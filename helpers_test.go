package veriq

import (
	"context"
	"sync"
	"testing"

	mrd "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newMiniClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	s := mrd.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	cleanup := func() {
		_ = rdb.Close()
		s.Close()
	}
	return rdb, cleanup
}

type busEvent struct {
	Topic   string
	Payload any
}

// memBus captures published events in memory; failOn simulates per-publish
// bus failures.
type memBus struct {
	mu     sync.Mutex
	events []busEvent
	failOn func(topic string, payload any) bool
}

func (b *memBus) Publish(_ context.Context, topic string, payload any) error {
	if b.failOn != nil && b.failOn(topic, payload) {
		return errPublish
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, busEvent{Topic: topic, Payload: payload})
	return nil
}

func (b *memBus) byTopic(topic string) []busEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []busEvent
	for _, ev := range b.events {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

var errPublish = &DomainError{Kind: FailureUnknown, Msg: "bus down"}

// mkAssigned creates a pending task and moves it to assigned with the given
// roster.
func mkAssigned(t *testing.T, store *Store, id string, workers []string) *Task {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &Task{ID: id, Type: "content_review"}))
	task, err := store.Update(ctx, id, 1, func(task *Task) error {
		task.Status = StatusAssigned
		task.AssignedWorkers = workers
		return nil
	})
	require.NoError(t, err)
	return task
}

func submission(worker, value string, confidence, timeSpent float64) VerificationResult {
	return VerificationResult{
		WorkerID:     worker,
		Value:        value,
		Confidence:   confidence,
		TimeSpentSec: timeSpent,
	}
}
