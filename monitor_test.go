package veriq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestMonitor(store *Store, bus *memBus) *Monitor {
	cfg := DefaultConfig()
	cons := NewConsolidator(store, bus, nil)
	return NewMonitor(store, cons, bus, cfg, nil)
}

func TestMonitor_ExpiryBeatsQuorum(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	bus := &memBus{}
	m := newTestMonitor(store, bus)
	ctx := context.Background()

	// expired deadline, but quorum fully met
	require.NoError(t, store.Create(ctx, &Task{
		ID:       "t4",
		Type:     "x",
		Deadline: time.Now().Add(-time.Minute).UnixMilli(),
	}))
	_, err := store.Update(ctx, "t4", 1, func(task *Task) error {
		task.Status = StatusAssigned
		task.AssignedWorkers = []string{"wA", "wB", "wC"}
		return nil
	})
	require.NoError(t, err)
	for _, w := range []string{"wA", "wB", "wC"} {
		_, err := store.AppendSubmission(ctx, "t4", submission(w, "APPROVED", 0.9, 30))
		require.NoError(t, err)
	}

	report, err := m.CheckProgress(ctx, "t4", 3)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, report.Status)
	require.Equal(t, "Task expired", report.Reason)
	require.Equal(t, 3, report.CompletedVerifications)

	got, _ := store.Get(ctx, "t4")
	require.Equal(t, StatusFailed, got.Status)
	require.Nil(t, got.Consolidated)
	require.Len(t, bus.byTopic(TopicTaskFailed), 1)

	// the cancellation rule: late submissions bounce off the failed task
	_, err = store.AppendSubmission(ctx, "t4", submission("wD", "APPROVED", 0.9, 30))
	require.ErrorIs(t, err, ErrTaskNotAcceptingSubmissions)
}

func TestMonitor_QuorumCompletes(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	bus := &memBus{}
	m := newTestMonitor(store, bus)
	ctx := context.Background()

	mkAssigned(t, store, "t1", []string{"wA", "wB", "wC"})
	for _, w := range []string{"wA", "wB", "wC"} {
		_, err := store.AppendSubmission(ctx, "t1", submission(w, "APPROVED", 0.9, 30))
		require.NoError(t, err)
	}

	report, err := m.CheckProgress(ctx, "t1", 3)
	require.NoError(t, err)
	require.Equal(t, StatusVerificationComplete, report.Status)

	got, _ := store.Get(ctx, "t1")
	require.Equal(t, "APPROVED", got.Consolidated.Value)
}

func TestMonitor_InsufficientWorkers(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	bus := &memBus{}
	m := newTestMonitor(store, bus)
	ctx := context.Background()

	// roster of one can never reach a quorum of three
	mkAssigned(t, store, "t1", []string{"wA"})

	report, err := m.CheckProgress(ctx, "t1", 3)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, report.Status)
	require.Equal(t, "Insufficient active workers", report.Reason)
	require.Len(t, bus.byTopic(TopicTaskFailed), 1)
}

func TestMonitor_PendingTaskIsLeftAlone(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	m := newTestMonitor(store, &memBus{})
	ctx := context.Background()

	// pending tasks have not entered assignment; small roster is fine
	require.NoError(t, store.Create(ctx, &Task{ID: "t1", Type: "x"}))
	report, err := m.CheckProgress(ctx, "t1", 3)
	require.NoError(t, err)
	require.Equal(t, StatusPending, report.Status)
}

func TestMonitor_StillWaiting(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	m := newTestMonitor(store, &memBus{})
	ctx := context.Background()

	mkAssigned(t, store, "t1", []string{"wA", "wB", "wC"})
	_, err := store.AppendSubmission(ctx, "t1", submission("wA", "APPROVED", 0.9, 30))
	require.NoError(t, err)

	report, err := m.CheckProgress(ctx, "t1", 3)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, report.Status)
	require.Equal(t, 1, report.CompletedVerifications)

	got, _ := store.Get(ctx, "t1")
	require.Equal(t, StatusInProgress, got.Status)
}

func TestMonitor_TerminalTaskIsReportedAsIs(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	m := newTestMonitor(store, &memBus{})
	ctx := context.Background()

	task := mkAssigned(t, store, "t1", []string{"wA"})
	_, err := store.CompareAndSwap(ctx, "t1", task.Version, func(task *Task) error {
		task.Status = StatusFailed
		task.StatusReason = "boom"
		return nil
	})
	require.NoError(t, err)

	report, err := m.CheckProgress(ctx, "t1", 3)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, report.Status)
	require.Equal(t, "boom", report.Reason)
}
