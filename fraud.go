package veriq

import "fmt"

// Scorer computes fraud risk for a worker's activity pattern. It is a pure
// function of its inputs: nothing here reads or writes task or worker state.
// The matcher consults it to gate eligibility and the payment side consults
// it before releasing funds.
type Scorer struct {
	cfg FraudConfig
}

// NewScorer creates a scorer with the given fraud configuration.
func NewScorer(cfg FraudConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// AssessRisk combines four weighted signals into a 0-100 risk score and maps
// it to a fraud level. Raising any single signal while the others are fixed
// never lowers the resulting level.
func (s *Scorer) AssessRisk(activity WorkerActivity, metrics WorkerMetrics) FraudDetectionResult {
	var reasons []string

	reputation := s.reputationSignal(metrics, &reasons)
	act := s.activitySignal(activity, &reasons)
	network := s.networkSignal(activity, &reasons)
	quality := s.qualitySignal(activity, metrics, &reasons)

	score := clamp100(reputation*s.cfg.ReputationWeight +
		act*s.cfg.ActivityWeight +
		network*s.cfg.NetworkWeight +
		quality*s.cfg.QualityWeight)

	level := s.level(score)
	return FraudDetectionResult{
		IsFraudulent: level >= FraudHigh,
		RiskScore:    score,
		FraudLevel:   level,
		Confidence:   s.confidence(metrics),
		Reasons:      reasons,
		Signals: FraudSignals{
			Reputation: reputation,
			Activity:   act,
			Network:    network,
			Quality:    quality,
		},
	}
}

// reputationSignal scores accuracy history, account age and prior violations.
func (s *Scorer) reputationSignal(m WorkerMetrics, reasons *[]string) float64 {
	acc := meanFloat(m.AccuracyHistory)
	if len(m.AccuracyHistory) == 0 {
		// No history: neutral rather than punitive.
		acc = 0.75
	}
	sig := (1 - acc) * 60

	// Accounts younger than 30 days carry extra risk, fading linearly.
	if m.AccountAgeDays < 30 {
		sig += float64(30-m.AccountAgeDays) / 30 * 20
		*reasons = append(*reasons, "young account")
	}
	if m.Violations > 0 {
		v := m.Violations
		if v > 5 {
			v = 5
		}
		sig += float64(v) / 5 * 20
		*reasons = append(*reasons, fmt.Sprintf("%d prior violations", m.Violations))
	}
	return clamp100(sig)
}

// activitySignal scores throughput above the configured ceiling and handling
// times below the rubber-stamping floor.
func (s *Scorer) activitySignal(a WorkerActivity, reasons *[]string) float64 {
	var sig float64
	if s.cfg.MaxTasksPerHour > 0 && a.TasksPerHour > s.cfg.MaxTasksPerHour {
		over := (a.TasksPerHour - s.cfg.MaxTasksPerHour) / s.cfg.MaxTasksPerHour
		sig += clamp(over*50, 0, 50)
		*reasons = append(*reasons, "task rate above ceiling")
	}
	if s.cfg.MinProcessingSec > 0 && a.AvgProcessingSec > 0 && a.AvgProcessingSec < s.cfg.MinProcessingSec {
		under := (s.cfg.MinProcessingSec - a.AvgProcessingSec) / s.cfg.MinProcessingSec
		sig += clamp(under*50, 0, 50)
		*reasons = append(*reasons, "processing time below floor")
	}
	return clamp100(sig)
}

// networkSignal scores device-fingerprint reuse and per-IP task volume.
func (s *Scorer) networkSignal(a WorkerActivity, reasons *[]string) float64 {
	var sig float64
	if s.cfg.MaxDeviceReuse > 0 && a.DeviceReuseCount > s.cfg.MaxDeviceReuse {
		over := float64(a.DeviceReuseCount-s.cfg.MaxDeviceReuse) / float64(s.cfg.MaxDeviceReuse)
		sig += clamp(over*50, 0, 50)
		*reasons = append(*reasons, "device fingerprint reuse")
	}
	if s.cfg.MaxIPTasks > 0 && a.IPTaskCount > s.cfg.MaxIPTasks {
		over := float64(a.IPTaskCount-s.cfg.MaxIPTasks) / float64(s.cfg.MaxIPTasks)
		sig += clamp(over*50, 0, 50)
		*reasons = append(*reasons, "ip task count above ceiling")
	}
	return clamp100(sig)
}

// qualitySignal scores decision-distribution skew against the task-type baseline.
func (s *Scorer) qualitySignal(a WorkerActivity, m WorkerMetrics, reasons *[]string) float64 {
	baseline := m.BaselineApproveShare
	if baseline <= 0 || baseline >= 1 {
		return 0
	}
	skew := a.ApproveShare - baseline
	if skew < 0 {
		skew = -skew
	}
	sig := clamp100(skew / baseline * 100)
	if sig >= 50 {
		*reasons = append(*reasons, "decision distribution skew")
	}
	return sig
}

// level maps the score onto the configured bucket boundaries.
func (s *Scorer) level(score float64) FraudLevel {
	switch {
	case score >= s.cfg.CriticalThreshold:
		return FraudCritical
	case score >= s.cfg.HighThreshold:
		return FraudHigh
	case score >= s.cfg.MediumThreshold:
		return FraudMedium
	default:
		return FraudLow
	}
}

// confidence grows with the amount of accuracy history backing the verdict.
func (s *Scorer) confidence(m WorkerMetrics) float64 {
	n := len(m.AccuracyHistory)
	if n >= 10 {
		return 1
	}
	return 0.3 + float64(n)/10*0.7
}

func meanFloat(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp100(v float64) float64 { return clamp(v, 0, 100) }
