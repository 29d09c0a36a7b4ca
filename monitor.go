package veriq

import (
	"context"
	"time"
)

// Monitor polls in-flight tasks and decides their next step. The decision
// ladder is ordered policy: expiry always beats a late quorum (expiry is
// authoritative for timeliness guarantees), and quorum success is checked
// before giving up on roster size.
type Monitor struct {
	store        *Store
	consolidator *Consolidator
	bus          EventBus
	cfg          Config
	log          Logger
	now          func() time.Time
}

// ProgressReport is the monitor's view of a task after one check.
type ProgressReport struct {
	Status                 Status
	CompletedVerifications int
	AssignedWorkers        []string
	Reason                 string
}

// NewMonitor creates a monitor that delegates quorum completion to the
// consolidator.
func NewMonitor(store *Store, consolidator *Consolidator, bus EventBus, cfg Config, log Logger) *Monitor {
	if log == nil {
		log = noopLogger{}
	}
	return &Monitor{store: store, consolidator: consolidator, bus: bus, cfg: cfg, log: log, now: time.Now}
}

// CheckProgress evaluates one task. First match wins:
//
//  1. Deadline passed: fail with "Task expired". A task that also has quorum
//     is still expired; once failed, late submissions are rejected by the
//     collector's status gate.
//  2. Quorum met: consolidate and complete.
//  3. Roster smaller than the threshold after assignment began: fail with
//     "Insufficient active workers".
//  4. Otherwise: still waiting, status unchanged.
func (m *Monitor) CheckProgress(ctx context.Context, taskID string, threshold int) (ProgressReport, error) {
	t, err := m.store.Get(ctx, taskID)
	if err != nil {
		return ProgressReport{}, err
	}
	report := ProgressReport{
		Status:                 t.Status,
		CompletedVerifications: len(t.Submissions),
		AssignedWorkers:        t.AssignedWorkers,
		Reason:                 t.StatusReason,
	}
	if t.Status.Terminal() {
		return report, nil
	}

	switch {
	case t.Expired(m.now().UnixMilli()):
		return m.fail(ctx, t, report, FailureTimeout, "Task expired")

	case len(t.Submissions) >= threshold:
		if _, err := m.consolidator.Consolidate(ctx, taskID, threshold); err != nil {
			return report, err
		}
		report.Status = StatusVerificationComplete
		return report, nil

	case t.Status != StatusPending && len(t.AssignedWorkers) < threshold:
		return m.fail(ctx, t, report, FailureNoWorkers, "Insufficient active workers")

	default:
		return report, nil
	}
}

// fail marks the task failed with the given reason and emits TaskFailed.
// A version conflict means something else decided the task first; report
// whatever it decided.
func (m *Monitor) fail(ctx context.Context, t *Task, report ProgressReport, kind FailureKind, reason string) (ProgressReport, error) {
	updated, err := m.store.CompareAndSwap(ctx, t.ID, t.Version, func(t *Task) error {
		t.Status = StatusFailed
		t.StatusReason = reason
		return nil
	})
	if err != nil {
		if fresh, gerr := m.store.Get(ctx, t.ID); gerr == nil {
			report.Status = fresh.Status
			report.CompletedVerifications = len(fresh.Submissions)
			report.Reason = fresh.StatusReason
			return report, nil
		}
		return report, err
	}

	ev := TaskFailedEvent{
		TaskID:           t.ID,
		Kind:             kind,
		Reason:           reason,
		RecoveryAttempts: updated.RecoveryAttempts,
		Recoverable:      false,
	}
	if perr := m.bus.Publish(ctx, TopicTaskFailed, ev); perr != nil {
		m.log.Warnf("monitor: TaskFailed publish failed task=%s err=%v", t.ID, perr)
	}
	report.Status = StatusFailed
	report.Reason = reason
	return report, nil
}

// Sweep runs CheckProgress over bounded batches of assigned and in_progress
// tasks. Per-task errors are logged and do not halt the sweep.
func (m *Monitor) Sweep(ctx context.Context) {
	for _, status := range []Status{StatusAssigned, StatusInProgress} {
		ids, err := m.store.QueryByStatus(ctx, status, time.Time{}, m.cfg.MonitorBatchSize)
		if err != nil {
			m.log.Warnf("monitor: scan failed status=%s err=%v", status, err)
			continue
		}
		for _, id := range ids {
			if _, err := m.CheckProgress(ctx, id, m.cfg.VerificationThreshold); err != nil {
				m.log.Warnf("monitor: check failed id=%s err=%v", id, err)
			}
		}
	}
}
