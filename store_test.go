package veriq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStore_CreateAndGet(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	ctx := context.Background()

	err := store.Create(ctx, &Task{
		ID:       "t1",
		Type:     "image_moderation",
		Priority: 7,
		Payload:  []byte(`{"url":"x"}`),
		Deadline: 1234567890,
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "t1", got.ID)
	require.Equal(t, "image_moderation", got.Type)
	require.Equal(t, 7, got.Priority)
	require.Equal(t, []byte(`{"url":"x"}`), got.Payload)
	require.Equal(t, int64(1234567890), got.Deadline)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, int64(1), got.Version)
	require.NotZero(t, got.CreatedAt)

	// duplicate id rejection
	err = store.Create(ctx, &Task{ID: "t1", Type: "image_moderation"})
	require.ErrorIs(t, err, ErrDuplicateTask)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestStore_CompareAndSwap(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Task{ID: "t1", Type: "x"}))

	updated, err := store.CompareAndSwap(ctx, "t1", 1, func(task *Task) error {
		task.Status = StatusAssigned
		task.AssignedWorkers = []string{"wA", "wB"}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StatusAssigned, updated.Status)
	require.Equal(t, int64(2), updated.Version)

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, StatusAssigned, got.Status)
	require.ElementsMatch(t, []string{"wA", "wB"}, got.AssignedWorkers)

	// stale version is rejected
	_, err = store.CompareAndSwap(ctx, "t1", 1, func(task *Task) error {
		task.Status = StatusFailed
		return nil
	})
	require.ErrorIs(t, err, ErrVersionConflict)

	// illegal edges are rejected before any write
	_, err = store.CompareAndSwap(ctx, "t1", 2, func(task *Task) error {
		task.Status = StatusVerificationComplete
		return nil
	})
	require.ErrorIs(t, err, ErrIllegalTransition)

	_, err = store.CompareAndSwap(ctx, "missing", 1, func(task *Task) error { return nil })
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestStore_AppendSubmission(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	ctx := context.Background()
	mkAssigned(t, store, "t1", []string{"wA", "wB"})

	n, err := store.AppendSubmission(ctx, "t1", submission("wA", "APPROVED", 0.9, 30))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// first submission promotes the task
	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, got.Status)
	require.Len(t, got.Submissions, 1)
	require.Equal(t, "wA", got.Submissions[0].WorkerID)
	require.NotZero(t, got.Submissions[0].SubmittedAt)

	// duplicate worker rejected, count unchanged
	_, err = store.AppendSubmission(ctx, "t1", submission("wA", "REJECTED", 0.5, 10))
	require.ErrorIs(t, err, ErrDuplicateSubmission)
	got, _ = store.Get(ctx, "t1")
	require.Len(t, got.Submissions, 1)

	// unassigned worker rejected
	_, err = store.AppendSubmission(ctx, "t1", submission("wZ", "APPROVED", 0.9, 30))
	require.ErrorIs(t, err, ErrWorkerNotAssigned)

	// second distinct worker appends in arrival order
	n, err = store.AppendSubmission(ctx, "t1", submission("wB", "REJECTED", 0.7, 25))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	got, _ = store.Get(ctx, "t1")
	require.Equal(t, []string{"wA", "wB"}, []string{got.Submissions[0].WorkerID, got.Submissions[1].WorkerID})

	_, err = store.AppendSubmission(ctx, "missing", submission("wA", "APPROVED", 0.9, 30))
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestStore_AppendSubmission_StatusGate(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Task{ID: "t1", Type: "x"}))
	_, err := store.AppendSubmission(ctx, "t1", submission("wA", "APPROVED", 0.9, 30))
	require.ErrorIs(t, err, ErrTaskNotAcceptingSubmissions)

	// a failed task rejects late submissions
	task := mkAssigned(t, store, "t2", []string{"wA"})
	_, err = store.CompareAndSwap(ctx, "t2", task.Version, func(task *Task) error {
		task.Status = StatusFailed
		task.StatusReason = "Task expired"
		return nil
	})
	require.NoError(t, err)
	_, err = store.AppendSubmission(ctx, "t2", submission("wA", "APPROVED", 0.9, 30))
	require.ErrorIs(t, err, ErrTaskNotAcceptingSubmissions)
}

func TestStore_QueryByStatus(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base }
	require.NoError(t, store.Create(ctx, &Task{ID: "old", Type: "x"}))
	store.now = func() time.Time { return base.Add(10 * time.Minute) }
	require.NoError(t, store.Create(ctx, &Task{ID: "new", Type: "x"}))

	ids, err := store.QueryByStatus(ctx, StatusPending, time.Time{}, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"old", "new"}, ids)

	// bound is exclusive: a task updated exactly at the cutoff is excluded
	ids, err = store.QueryByStatus(ctx, StatusPending, base, 10)
	require.NoError(t, err)
	require.Empty(t, ids)

	ids, err = store.QueryByStatus(ctx, StatusPending, base.Add(time.Second), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"old"}, ids)

	// the index follows status moves
	_, err = store.CompareAndSwap(ctx, "old", 1, func(task *Task) error {
		task.Status = StatusAssigned
		task.AssignedWorkers = []string{"wA"}
		return nil
	})
	require.NoError(t, err)
	ids, _ = store.QueryByStatus(ctx, StatusPending, time.Time{}, 10)
	require.Equal(t, []string{"new"}, ids)
	ids, _ = store.QueryByStatus(ctx, StatusAssigned, time.Time{}, 10)
	require.Equal(t, []string{"old"}, ids)
}

func TestStore_UpdateRetriesOnConflict(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &Task{ID: "t1", Type: "x"}))

	// Update re-reads, so it succeeds even after the version moved
	_, err := store.CompareAndSwap(ctx, "t1", 1, func(task *Task) error {
		task.StatusReason = "note"
		return nil
	})
	require.NoError(t, err)

	updated, err := store.Update(ctx, "t1", 2, func(task *Task) error {
		task.Status = StatusAssigned
		task.AssignedWorkers = []string{"wA"}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StatusAssigned, updated.Status)
}
