package veriq

import (
	"context"
	"strconv"
)

// FailureDecision is the outcome of classifying one task failure.
type FailureDecision struct {
	Kind             FailureKind
	FailureReason    string
	RecoveryAttempts int
	IsRecoverable    bool
}

// FailureHandler classifies task failures by their typed kind and decides
// between retry (pending_retry) and terminal failure. Unknown kinds are
// never retried, so unrecognized failure modes cannot loop forever.
type FailureHandler struct {
	store  *Store
	bus    EventBus
	alerts AlertSink
	cfg    Config
	log    Logger
}

// NewFailureHandler creates a failure handler.
func NewFailureHandler(store *Store, bus EventBus, alerts AlertSink, cfg Config, log Logger) *FailureHandler {
	if log == nil {
		log = noopLogger{}
	}
	if alerts == nil {
		alerts = NewLogAlertSink(log)
	}
	return &FailureHandler{store: store, bus: bus, alerts: alerts, cfg: cfg, log: log}
}

// HandleFailure records one failure occurrence against the task. The kind's
// configured retryable flag and the attempt ceiling decide recoverability:
// a retryable kind is retried while attempts stay within
// MaxRecoveryAttempts, then the next occurrence is terminal. Every call
// persists a status reason, emits TaskFailed, and raises an alert whose
// severity escalates to high once the ceiling is reached.
func (h *FailureHandler) HandleFailure(ctx context.Context, taskID string, cause error) (FailureDecision, error) {
	kind := ClassifyFailure(cause)
	retryable := h.cfg.Retryable[kind]
	reason := cause.Error()

	var decision FailureDecision
	updated, err := h.store.Update(ctx, taskID, 3, func(t *Task) error {
		attempts := t.RecoveryAttempts + 1
		recoverable := retryable && attempts <= h.cfg.MaxRecoveryAttempts
		t.RecoveryAttempts = attempts
		t.StatusReason = reason
		if recoverable {
			t.Status = StatusPendingRetry
		} else {
			t.Status = StatusFailed
		}
		decision = FailureDecision{
			Kind:             kind,
			FailureReason:    reason,
			RecoveryAttempts: attempts,
			IsRecoverable:    recoverable,
		}
		return nil
	})
	if err != nil {
		return FailureDecision{}, err
	}

	ev := TaskFailedEvent{
		TaskID:           taskID,
		Kind:             kind,
		Reason:           reason,
		RecoveryAttempts: updated.RecoveryAttempts,
		Recoverable:      decision.IsRecoverable,
	}
	if perr := h.bus.Publish(ctx, TopicTaskFailed, ev); perr != nil {
		h.log.Warnf("failure: TaskFailed publish failed task=%s err=%v", taskID, perr)
	}

	severity := SeverityWarning
	if decision.RecoveryAttempts >= h.cfg.MaxRecoveryAttempts {
		severity = SeverityHigh
	}
	h.alerts.Raise(ctx, severity, "task failure: "+reason, map[string]string{
		"task_id":  taskID,
		"kind":     string(kind),
		"attempts": strconv.Itoa(decision.RecoveryAttempts),
	})
	return decision, nil
}
