package veriq

import (
	"errors"
	"fmt"
)

// ErrTaskNotFound is returned when a task with the specified ID does not exist.
var ErrTaskNotFound = errors.New("veriq: task not found")

// ErrDuplicateTask is returned when Create is called with an ID that already exists.
var ErrDuplicateTask = errors.New("veriq: duplicate task id")

// ErrUnknownStatus is returned when an invalid status string is used.
var ErrUnknownStatus = errors.New("veriq: unknown status")

// ErrVersionConflict is returned by CompareAndSwap when the task changed since
// it was read. Callers should re-read and decide whether to retry.
var ErrVersionConflict = errors.New("veriq: version conflict")

// ErrIllegalTransition is returned when a mutation would move a task along an
// edge the state machine does not allow.
var ErrIllegalTransition = errors.New("veriq: illegal status transition")

// ErrDuplicateSubmission is returned when a worker submits a second
// verification for the same task.
var ErrDuplicateSubmission = errors.New("veriq: duplicate submission")

// ErrWorkerNotAssigned is returned when a submission arrives from a worker
// outside the task's assigned roster.
var ErrWorkerNotAssigned = errors.New("veriq: worker not assigned to task")

// ErrTaskNotAcceptingSubmissions is returned when a submission arrives for a
// task that is not in an accepting status, including late submissions to
// expired or failed tasks.
var ErrTaskNotAcceptingSubmissions = errors.New("veriq: task not accepting submissions")

// ErrInvalidSubmission is returned when a submission fails field validation.
var ErrInvalidSubmission = errors.New("veriq: invalid submission")

// ErrInsufficientVerifications is returned when consolidation is requested
// below the verification threshold. It signals "not ready yet", not failure;
// the task is left untouched.
var ErrInsufficientVerifications = errors.New("veriq: insufficient verifications")

// FailureKind classifies a domain failure for retry policy. Classification is
// resolved where the error originates, never by string inspection.
type FailureKind string

const (
	// FailureTimeout marks a task that exceeded its deadline.
	FailureTimeout FailureKind = "timeout"
	// FailureNoWorkers marks a task that could not gather an eligible roster.
	FailureNoWorkers FailureKind = "no_workers_available"
	// FailureConsensus marks a task whose submissions could not be consolidated.
	FailureConsensus FailureKind = "consensus_failed"
	// FailurePayment marks a downstream payment-trigger failure routed back here.
	FailurePayment FailureKind = "payment_failed"
	// FailureUnknown marks any unclassified error. Never retryable.
	FailureUnknown FailureKind = "unknown"
)

// DomainError is a classified task-processing failure. The failure handler
// keys its retry decision off Kind alone.
type DomainError struct {
	Kind FailureKind
	Msg  string
	Err  error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("veriq: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("veriq: %s: %s", e.Kind, e.Msg)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError builds a classified failure wrapping an optional cause.
func NewDomainError(kind FailureKind, msg string, cause error) *DomainError {
	return &DomainError{Kind: kind, Msg: msg, Err: cause}
}

// ClassifyFailure extracts the FailureKind from an error chain. Anything that
// does not carry a DomainError is FailureUnknown.
func ClassifyFailure(err error) FailureKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return FailureUnknown
}
