package veriq

// Status represents a task's position in the verification lifecycle.
// Use the exported constants (StatusPending, StatusAssigned, etc.) instead of
// raw strings to avoid typos.
type Status string

const (
	// StatusPending contains tasks waiting to be scheduled for assignment.
	StatusPending Status = "pending"
	// StatusAssigned contains tasks with a confirmed worker roster awaiting submissions.
	StatusAssigned Status = "assigned"
	// StatusInProgress contains tasks with at least one submission collected.
	StatusInProgress Status = "in_progress"
	// StatusVerificationComplete contains tasks with a consolidated result (terminal).
	StatusVerificationComplete Status = "verification_complete"
	// StatusFailed contains tasks that failed terminally or are awaiting failure classification.
	StatusFailed Status = "failed"
	// StatusPendingRetry contains recoverably failed tasks waiting to re-enter scheduling.
	StatusPendingRetry Status = "pending_retry"
)

// AllStatuses lists every valid task status in a stable order.
var AllStatuses = []Status{
	StatusPending,
	StatusAssigned,
	StatusInProgress,
	StatusVerificationComplete,
	StatusFailed,
	StatusPendingRetry,
}

// String returns the raw string value of the status.
func (s Status) String() string { return string(s) }

// ParseStatus converts a string into a Status, returning an error for unknown values.
func ParseStatus(s string) (Status, error) {
	switch s {
	case string(StatusPending):
		return StatusPending, nil
	case string(StatusAssigned):
		return StatusAssigned, nil
	case string(StatusInProgress):
		return StatusInProgress, nil
	case string(StatusVerificationComplete):
		return StatusVerificationComplete, nil
	case string(StatusFailed):
		return StatusFailed, nil
	case string(StatusPendingRetry):
		return StatusPendingRetry, nil
	default:
		return "", ErrUnknownStatus
	}
}

// transitions enumerates the legal status edges: the forward pipeline plus
// the two explicit backward edges, stall reset (in_progress -> pending) and
// recoverable-failure re-entry (pending_retry -> pending).
var transitions = map[Status][]Status{
	StatusPending:      {StatusAssigned, StatusFailed, StatusPendingRetry},
	StatusAssigned:     {StatusInProgress, StatusFailed, StatusPendingRetry},
	StatusInProgress:   {StatusVerificationComplete, StatusFailed, StatusPending, StatusPendingRetry},
	StatusFailed:       {StatusPendingRetry},
	StatusPendingRetry: {StatusPending, StatusFailed},
}

// CanTransition reports whether moving a task between two statuses is a legal
// state-machine edge. Identity moves are allowed so field-only updates can
// ride the same store primitive.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status ends the lifecycle. Whether a failed task
// may still re-enter via pending_retry is the failure handler's call.
func (s Status) Terminal() bool {
	return s == StatusVerificationComplete || s == StatusFailed
}

// AcceptsSubmissions reports whether a worker submission may be appended to a
// task in this status.
func (s Status) AcceptsSubmissions() bool {
	return s == StatusAssigned || s == StatusInProgress
}
