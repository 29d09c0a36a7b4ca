package veriq

// Task represents one human-verification assignment and its full audit state.
// It is persisted field-by-field in Redis; Version is the optimistic
// concurrency token every status transition is conditioned on.
type Task struct {
	// ID is the unique identifier for the task.
	ID string `json:"id"`
	// Type is the verification kind, used to group tasks during scheduling.
	Type string `json:"type"`
	// Priority orders tasks within a type; higher is more urgent.
	Priority int `json:"priority"`
	// Payload is the raw content to be verified.
	Payload []byte `json:"payload"`
	// Deadline is the absolute timestamp (ms) after which the task is expired.
	Deadline int64 `json:"deadline_ms,omitempty"`
	// Status is the task's position in the lifecycle state machine.
	Status Status `json:"status"`
	// StatusReason is a human-readable note recorded on failure transitions.
	StatusReason string `json:"status_reason,omitempty"`
	// AssignedWorkers is the set of worker IDs that accepted the task.
	AssignedWorkers []string `json:"assigned_workers,omitempty"`
	// Submissions holds one verification per worker, in arrival order.
	Submissions []VerificationResult `json:"submissions,omitempty"`
	// Consolidated is the aggregate result, set once quorum is reached.
	Consolidated *ConsolidatedResult `json:"consolidated,omitempty"`
	// RecoveryAttempts counts stall resets and retryable failures.
	RecoveryAttempts int `json:"recovery_attempts,omitempty"`
	// RetriedAt is the timestamp (ms) of the most recent stall reset.
	RetriedAt int64 `json:"retried_at,omitempty"`
	// CreatedAt is the timestamp (ms) when the task was created.
	CreatedAt int64 `json:"created_at,omitempty"`
	// UpdatedAt is the timestamp (ms) of the last store write.
	UpdatedAt int64 `json:"updated_at,omitempty"`
	// Version increments on every store write; used for CompareAndSwap.
	Version int64 `json:"version"`
}

// IsAssigned reports whether the worker is part of the task's roster.
func (t *Task) IsAssigned(workerID string) bool {
	for _, w := range t.AssignedWorkers {
		if w == workerID {
			return true
		}
	}
	return false
}

// Expired reports whether the task's deadline (if any) has passed nowMs.
func (t *Task) Expired(nowMs int64) bool {
	return t.Deadline > 0 && nowMs > t.Deadline
}

// VerificationResult is a single worker's independent verdict on a task.
type VerificationResult struct {
	// WorkerID identifies the submitting worker.
	WorkerID string `json:"worker_id"`
	// Value is the canonical serialization of the worker's result.
	Value string `json:"value"`
	// Confidence is the worker's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// TimeSpentSec is how long the worker spent, in seconds (> 0).
	TimeSpentSec float64 `json:"time_spent_sec"`
	// SubmittedAt is the timestamp (ms) the submission was accepted.
	SubmittedAt int64 `json:"submitted_at,omitempty"`
	// Metadata carries arbitrary submission annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ConsolidatedResult is the single authoritative outcome reduced from all
// submissions once quorum is reached.
type ConsolidatedResult struct {
	// Value is the majority result. Ties break to the first value that
	// reached the winning count, in submission arrival order.
	Value string `json:"value"`
	// MeanConfidence is the arithmetic mean over all submissions.
	MeanConfidence float64 `json:"mean_confidence"`
	// MeanTimeSpentSec is the arithmetic mean over all submissions.
	MeanTimeSpentSec float64 `json:"mean_time_spent_sec"`
	// VerifierCount is the number of submissions consolidated.
	VerifierCount int `json:"verifier_count"`
	// Metadata is the merge of all submission metadata; later submissions
	// overwrite earlier ones on key collisions.
	Metadata map[string]string `json:"metadata,omitempty"`
	// ConsolidatedAt is the timestamp (ms) consolidation committed.
	ConsolidatedAt int64 `json:"consolidated_at,omitempty"`
}
