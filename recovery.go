package veriq

import (
	"context"
	"errors"
	"time"
)

// ReasonStalled is the reset reason recorded on TaskReset events.
const ReasonStalled = "STALLED"

// Recovery requeues tasks stuck in in_progress past the staleness threshold.
// Resets are conditional on the task's version, so a genuine late submission
// that lands mid-scan wins and the reset is dropped.
type Recovery struct {
	store *Store
	bus   EventBus
	cfg   Config
	log   Logger
	now   func() time.Time
}

// NewRecovery creates a stalled-task recovery component.
func NewRecovery(store *Store, bus EventBus, cfg Config, log Logger) *Recovery {
	if log == nil {
		log = noopLogger{}
	}
	return &Recovery{store: store, bus: bus, cfg: cfg, log: log, now: time.Now}
}

// RecoverStalled runs one bounded recovery sweep and returns how many tasks
// were reset to pending. Only tasks whose updated-at is strictly older than
// the staleness threshold qualify; per-task failures are logged and the
// batch continues.
func (r *Recovery) RecoverStalled(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.cfg.StallThreshold)
	ids, err := r.store.QueryByStatus(ctx, StatusInProgress, cutoff, r.cfg.RecoveryBatchSize)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, id := range ids {
		t, err := r.store.Get(ctx, id)
		if err != nil {
			r.log.Warnf("recovery: load failed id=%s err=%v", id, err)
			continue
		}
		// Re-check against the live record; the index scan may be behind.
		if t.Status != StatusInProgress || t.UpdatedAt >= cutoff.UnixMilli() {
			continue
		}

		nowMs := r.now().UnixMilli()
		updated, err := r.store.CompareAndSwap(ctx, id, t.Version, func(t *Task) error {
			t.Status = StatusPending
			t.RetriedAt = nowMs
			t.RecoveryAttempts++
			return nil
		})
		if errors.Is(err, ErrVersionConflict) {
			// The task progressed since the scan; leave it alone.
			r.log.Debugf("recovery: skip id=%s, task progressed", id)
			continue
		}
		if err != nil {
			r.log.Warnf("recovery: reset failed id=%s err=%v", id, err)
			continue
		}
		reset++

		ev := TaskResetEvent{
			TaskID:         id,
			PreviousStatus: StatusInProgress,
			NewStatus:      StatusPending,
			Reason:         ReasonStalled,
		}
		if perr := r.bus.Publish(ctx, TopicTaskReset, ev); perr != nil {
			r.log.Warnf("recovery: TaskReset publish failed id=%s err=%v", id, perr)
		}
		r.log.Infof("recovery: reset id=%s attempts=%d", id, updated.RecoveryAttempts)
	}
	return reset, nil
}
