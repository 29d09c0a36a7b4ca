package veriq

import (
	"context"
	"fmt"
)

// Collector accepts worker verification submissions. The append itself is a
// single atomic store operation, so concurrent submissions from different
// workers for the same task never overwrite each other, and a late
// submission to an expired or failed task is rejected by the status gate.
type Collector struct {
	store *Store
	log   Logger
}

// NewCollector creates a collector on the shared store.
func NewCollector(store *Store, log Logger) *Collector {
	if log == nil {
		log = noopLogger{}
	}
	return &Collector{store: store, log: log}
}

// SubmitVerification validates and appends one worker's verification.
// It returns the task's submission count after the append.
//
// Errors: ErrInvalidSubmission for malformed input, ErrTaskNotFound,
// ErrTaskNotAcceptingSubmissions when the task is not in assigned or
// in_progress, ErrWorkerNotAssigned, and ErrDuplicateSubmission when the
// worker already submitted.
func (c *Collector) SubmitVerification(ctx context.Context, taskID string, vr VerificationResult) (int, error) {
	if err := validateSubmission(vr); err != nil {
		return 0, err
	}
	count, err := c.store.AppendSubmission(ctx, taskID, vr)
	if err != nil {
		return 0, err
	}
	c.log.Debugf("collector: submission accepted task=%s worker=%s count=%d", taskID, vr.WorkerID, count)
	return count, nil
}

func validateSubmission(vr VerificationResult) error {
	if vr.WorkerID == "" {
		return fmt.Errorf("%w: missing worker id", ErrInvalidSubmission)
	}
	if vr.Value == "" {
		return fmt.Errorf("%w: missing result value", ErrInvalidSubmission)
	}
	if vr.Confidence < 0 || vr.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidSubmission, vr.Confidence)
	}
	if vr.TimeSpentSec <= 0 {
		return fmt.Errorf("%w: time spent must be positive", ErrInvalidSubmission)
	}
	return nil
}
