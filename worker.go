package veriq

// WorkerActivity is a read-only snapshot of a worker's recent behavior,
// owned by the external worker-profile subsystem and consumed here only as
// fraud-scorer input.
type WorkerActivity struct {
	// WorkerID identifies the worker.
	WorkerID string `json:"worker_id"`
	// TasksPerHour is the recent task throughput.
	TasksPerHour float64 `json:"tasks_per_hour"`
	// AvgProcessingSec is the mean time spent per task, in seconds.
	AvgProcessingSec float64 `json:"avg_processing_sec"`
	// DeviceReuseCount is how many accounts share this worker's device fingerprint.
	DeviceReuseCount int `json:"device_reuse_count"`
	// IPTaskCount is the number of tasks submitted from the worker's IP recently.
	IPTaskCount int `json:"ip_task_count"`
	// ApproveShare is the fraction of recent decisions that were approvals.
	ApproveShare float64 `json:"approve_share"`
}

// WorkerMetrics is the worker's longer-horizon profile used for reputation
// and quality signals.
type WorkerMetrics struct {
	// AccountAgeDays is the age of the worker account.
	AccountAgeDays int `json:"account_age_days"`
	// Violations is the number of prior confirmed violations.
	Violations int `json:"violations"`
	// AccuracyHistory holds recent accuracy samples in [0,1], newest last.
	AccuracyHistory []float64 `json:"accuracy_history,omitempty"`
	// BaselineApproveShare is the expected approval fraction for the
	// worker's dominant task type.
	BaselineApproveShare float64 `json:"baseline_approve_share"`
}

// FraudLevel is a coarse risk bucket derived from the continuous risk score.
type FraudLevel int

const (
	FraudLow FraudLevel = iota
	FraudMedium
	FraudHigh
	FraudCritical
)

// String returns a human-readable fraud level.
func (l FraudLevel) String() string {
	switch l {
	case FraudLow:
		return "LOW"
	case FraudMedium:
		return "MEDIUM"
	case FraudHigh:
		return "HIGH"
	case FraudCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// FraudSignals is the weighted per-signal breakdown behind a risk score.
type FraudSignals struct {
	Reputation float64 `json:"reputation"`
	Activity   float64 `json:"activity"`
	Network    float64 `json:"network"`
	Quality    float64 `json:"quality"`
}

// FraudDetectionResult is the scorer's verdict on a worker's activity
// pattern. It never mutates worker or task state; eligibility gating and
// payment gating consult it.
type FraudDetectionResult struct {
	IsFraudulent bool         `json:"is_fraudulent"`
	RiskScore    float64      `json:"risk_score"`
	FraudLevel   FraudLevel   `json:"fraud_level"`
	Confidence   float64      `json:"confidence"`
	Reasons      []string     `json:"reasons,omitempty"`
	Signals      FraudSignals `json:"signals"`
}
