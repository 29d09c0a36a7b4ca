package veriq

import (
	"context"
	"errors"
	"time"
)

// Consolidator reduces a quorum of independent submissions into one
// authoritative result. Consolidation succeeds at most once per task: a
// racing second invocation observes the already-consolidated state and
// returns it idempotently without re-emitting the completion event, so
// payment cannot double-trigger.
type Consolidator struct {
	store *Store
	bus   EventBus
	log   Logger
	now   func() time.Time
}

// NewConsolidator creates a consolidator.
func NewConsolidator(store *Store, bus EventBus, log Logger) *Consolidator {
	if log == nil {
		log = noopLogger{}
	}
	return &Consolidator{store: store, bus: bus, log: log, now: time.Now}
}

// Consolidate aggregates the task's submissions once threshold is met.
//
// Below threshold it returns ErrInsufficientVerifications and leaves the task
// untouched; that is "not ready yet", not a failure. On success the task
// moves to verification_complete with the result persisted next to the full
// submission list as the audit trail. Any failure while persisting marks the
// task failed with a recorded reason and returns the original error.
func (c *Consolidator) Consolidate(ctx context.Context, taskID string, threshold int) (*ConsolidatedResult, error) {
	t, err := c.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusVerificationComplete && t.Consolidated != nil {
		return t.Consolidated, nil
	}
	if len(t.Submissions) < threshold {
		return nil, ErrInsufficientVerifications
	}

	result := reduce(t.Submissions, c.now().UnixMilli())

	_, err = c.store.CompareAndSwap(ctx, taskID, t.Version, func(t *Task) error {
		t.Status = StatusVerificationComplete
		t.Consolidated = result
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			// Lost a race; whoever won decides the task's fate.
			fresh, gerr := c.store.Get(ctx, taskID)
			if gerr == nil && fresh.Status == StatusVerificationComplete && fresh.Consolidated != nil {
				return fresh.Consolidated, nil
			}
			return nil, err
		}
		c.failTask(ctx, taskID, err)
		return nil, err
	}

	ev := TaskConsolidatedEvent{
		TaskID:        taskID,
		Value:         result.Value,
		VerifierCount: result.VerifierCount,
		Confidence:    result.MeanConfidence,
	}
	if perr := c.bus.Publish(ctx, TopicTaskConsolidated, ev); perr != nil {
		c.log.Errorf("consolidator: TaskConsolidated publish failed task=%s err=%v", taskID, perr)
	}
	return result, nil
}

// failTask records a consolidation failure on the task. Best effort: if this
// write also fails, the original error still reaches the caller.
func (c *Consolidator) failTask(ctx context.Context, taskID string, cause error) {
	_, uerr := c.store.Update(ctx, taskID, 2, func(t *Task) error {
		if t.Status == StatusVerificationComplete {
			return ErrIllegalTransition
		}
		t.Status = StatusFailed
		t.StatusReason = "consolidation failed: " + cause.Error()
		return nil
	})
	if uerr != nil {
		c.log.Errorf("consolidator: failure record failed task=%s err=%v", taskID, uerr)
	}
}

// reduce implements the consolidation algorithm: majority value with
// first-to-reach-max tie-breaking over arrival order, means over all
// submissions, and a later-wins metadata merge.
func reduce(subs []VerificationResult, nowMs int64) *ConsolidatedResult {
	counts := make(map[string]int, len(subs))
	var bestValue string
	bestCount := 0
	var confSum, timeSum float64
	merged := make(map[string]string)

	for _, sub := range subs {
		counts[sub.Value]++
		// Strict > keeps the first value that reached the winning count.
		if counts[sub.Value] > bestCount {
			bestCount = counts[sub.Value]
			bestValue = sub.Value
		}
		confSum += sub.Confidence
		timeSum += sub.TimeSpentSec
		for k, v := range sub.Metadata {
			merged[k] = v
		}
	}

	n := float64(len(subs))
	result := &ConsolidatedResult{
		Value:            bestValue,
		MeanConfidence:   confSum / n,
		MeanTimeSpentSec: timeSum / n,
		VerifierCount:    len(subs),
		ConsolidatedAt:   nowMs,
	}
	if len(merged) > 0 {
		result.Metadata = merged
	}
	return result
}
