package veriq

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable of the lifecycle engine.
type Config struct {
	// VerificationThreshold is the quorum: the minimum number of distinct
	// worker submissions required before consolidation.
	VerificationThreshold int
	// NotificationTimeout bounds how long the matcher waits for workers to
	// accept an offer.
	NotificationTimeout time.Duration
	// StallThreshold is how long an in_progress task may go without an
	// update before recovery resets it.
	StallThreshold time.Duration
	// MaxRecoveryAttempts caps retries for recoverable failures.
	MaxRecoveryAttempts int
	// ScheduleBatchSize bounds one scheduler sweep.
	ScheduleBatchSize int
	// RecoveryBatchSize bounds one stall-recovery sweep.
	RecoveryBatchSize int
	// MonitorBatchSize bounds one monitor sweep per status.
	MonitorBatchSize int
	// ScheduleInterval, MonitorInterval and RecoveryInterval pace the
	// engine's periodic sweeps.
	ScheduleInterval time.Duration
	MonitorInterval  time.Duration
	RecoveryInterval time.Duration
	// Retryable maps each failure kind to whether it may be retried.
	// Kinds absent from the map, including unknown, are never retried.
	Retryable map[FailureKind]bool
	// Fraud configures the risk scorer.
	Fraud FraudConfig
}

// FraudConfig tunes the weighted risk signals and level boundaries.
type FraudConfig struct {
	// Signal weights; should sum to 1.
	ReputationWeight float64
	ActivityWeight   float64
	NetworkWeight    float64
	QualityWeight    float64
	// MaxTasksPerHour is the activity ceiling before throughput is suspect.
	MaxTasksPerHour float64
	// MinProcessingSec is the rubber-stamping floor: average handling time
	// below this is suspect.
	MinProcessingSec float64
	// MaxDeviceReuse is how many accounts may share a device fingerprint.
	MaxDeviceReuse int
	// MaxIPTasks is the per-IP task-count ceiling.
	MaxIPTasks int
	// Level boundaries on the 0-100 risk score; must be non-decreasing.
	MediumThreshold   float64
	HighThreshold     float64
	CriticalThreshold float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		VerificationThreshold: 3,
		NotificationTimeout:   30 * time.Second,
		StallThreshold:        60 * time.Minute,
		MaxRecoveryAttempts:   3,
		ScheduleBatchSize:     100,
		RecoveryBatchSize:     100,
		MonitorBatchSize:      100,
		ScheduleInterval:      10 * time.Second,
		MonitorInterval:       15 * time.Second,
		RecoveryInterval:      5 * time.Minute,
		Retryable: map[FailureKind]bool{
			FailureTimeout:   true,
			FailureNoWorkers: true,
			FailureConsensus: true,
			FailurePayment:   true,
		},
		Fraud: FraudConfig{
			ReputationWeight:  0.30,
			ActivityWeight:    0.25,
			NetworkWeight:     0.25,
			QualityWeight:     0.20,
			MaxTasksPerHour:   30,
			MinProcessingSec:  5,
			MaxDeviceReuse:    2,
			MaxIPTasks:        50,
			MediumThreshold:   40,
			HighThreshold:     60,
			CriticalThreshold: 80,
		},
	}
}

// fileConfig is the on-disk TOML shape. Durations are plain seconds so the
// file stays tool-friendly. Zero values fall back to defaults.
type fileConfig struct {
	VerificationThreshold  int             `toml:"verification_threshold"`
	NotificationTimeoutSec int             `toml:"notification_timeout_sec"`
	StallThresholdMin      int             `toml:"stall_threshold_min"`
	MaxRecoveryAttempts    int             `toml:"max_recovery_attempts"`
	ScheduleBatchSize      int             `toml:"schedule_batch_size"`
	RecoveryBatchSize      int             `toml:"recovery_batch_size"`
	MonitorBatchSize       int             `toml:"monitor_batch_size"`
	ScheduleIntervalSec    int             `toml:"schedule_interval_sec"`
	MonitorIntervalSec     int             `toml:"monitor_interval_sec"`
	RecoveryIntervalSec    int             `toml:"recovery_interval_sec"`
	Retryable              map[string]bool `toml:"retryable"`
	Fraud                  fileFraud       `toml:"fraud"`
}

type fileFraud struct {
	ReputationWeight  float64 `toml:"reputation_weight"`
	ActivityWeight    float64 `toml:"activity_weight"`
	NetworkWeight     float64 `toml:"network_weight"`
	QualityWeight     float64 `toml:"quality_weight"`
	MaxTasksPerHour   float64 `toml:"max_tasks_per_hour"`
	MinProcessingSec  float64 `toml:"min_processing_sec"`
	MaxDeviceReuse    int     `toml:"max_device_reuse"`
	MaxIPTasks        int     `toml:"max_ip_tasks"`
	MediumThreshold   float64 `toml:"medium_threshold"`
	HighThreshold     float64 `toml:"high_threshold"`
	CriticalThreshold float64 `toml:"critical_threshold"`
}

// LoadConfig reads a TOML config file, layering it over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if fc.VerificationThreshold > 0 {
		cfg.VerificationThreshold = fc.VerificationThreshold
	}
	if fc.NotificationTimeoutSec > 0 {
		cfg.NotificationTimeout = time.Duration(fc.NotificationTimeoutSec) * time.Second
	}
	if fc.StallThresholdMin > 0 {
		cfg.StallThreshold = time.Duration(fc.StallThresholdMin) * time.Minute
	}
	if fc.MaxRecoveryAttempts > 0 {
		cfg.MaxRecoveryAttempts = fc.MaxRecoveryAttempts
	}
	if fc.ScheduleBatchSize > 0 {
		cfg.ScheduleBatchSize = fc.ScheduleBatchSize
	}
	if fc.RecoveryBatchSize > 0 {
		cfg.RecoveryBatchSize = fc.RecoveryBatchSize
	}
	if fc.MonitorBatchSize > 0 {
		cfg.MonitorBatchSize = fc.MonitorBatchSize
	}
	if fc.ScheduleIntervalSec > 0 {
		cfg.ScheduleInterval = time.Duration(fc.ScheduleIntervalSec) * time.Second
	}
	if fc.MonitorIntervalSec > 0 {
		cfg.MonitorInterval = time.Duration(fc.MonitorIntervalSec) * time.Second
	}
	if fc.RecoveryIntervalSec > 0 {
		cfg.RecoveryInterval = time.Duration(fc.RecoveryIntervalSec) * time.Second
	}
	if len(fc.Retryable) > 0 {
		cfg.Retryable = make(map[FailureKind]bool, len(fc.Retryable))
		for k, v := range fc.Retryable {
			cfg.Retryable[FailureKind(k)] = v
		}
	}
	applyFraud(&cfg.Fraud, fc.Fraud)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFraud(dst *FraudConfig, src fileFraud) {
	if src.ReputationWeight > 0 {
		dst.ReputationWeight = src.ReputationWeight
	}
	if src.ActivityWeight > 0 {
		dst.ActivityWeight = src.ActivityWeight
	}
	if src.NetworkWeight > 0 {
		dst.NetworkWeight = src.NetworkWeight
	}
	if src.QualityWeight > 0 {
		dst.QualityWeight = src.QualityWeight
	}
	if src.MaxTasksPerHour > 0 {
		dst.MaxTasksPerHour = src.MaxTasksPerHour
	}
	if src.MinProcessingSec > 0 {
		dst.MinProcessingSec = src.MinProcessingSec
	}
	if src.MaxDeviceReuse > 0 {
		dst.MaxDeviceReuse = src.MaxDeviceReuse
	}
	if src.MaxIPTasks > 0 {
		dst.MaxIPTasks = src.MaxIPTasks
	}
	if src.MediumThreshold > 0 {
		dst.MediumThreshold = src.MediumThreshold
	}
	if src.HighThreshold > 0 {
		dst.HighThreshold = src.HighThreshold
	}
	if src.CriticalThreshold > 0 {
		dst.CriticalThreshold = src.CriticalThreshold
	}
}

// Validate rejects configurations that would misbehave at runtime.
func (c Config) Validate() error {
	if c.VerificationThreshold < 1 {
		return fmt.Errorf("veriq: verification threshold must be >= 1, got %d", c.VerificationThreshold)
	}
	if c.MaxRecoveryAttempts < 0 {
		return fmt.Errorf("veriq: max recovery attempts must be >= 0, got %d", c.MaxRecoveryAttempts)
	}
	f := c.Fraud
	if f.MediumThreshold > f.HighThreshold || f.HighThreshold > f.CriticalThreshold {
		return fmt.Errorf("veriq: fraud level thresholds must be non-decreasing: %v <= %v <= %v",
			f.MediumThreshold, f.HighThreshold, f.CriticalThreshold)
	}
	return nil
}
