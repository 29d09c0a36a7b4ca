package veriq

import "context"

// Alert severities.
const (
	SeverityWarning = "warning"
	SeverityHigh    = "high"
)

// AlertSink receives operational alerts raised by the lifecycle components.
type AlertSink interface {
	Raise(ctx context.Context, severity, message string, attrs map[string]string)
}

// LogAlertSink writes alerts through a Logger. It is the default sink when
// nothing else is wired.
type LogAlertSink struct {
	log Logger
}

// NewLogAlertSink creates a sink that logs alerts at warn/error level.
func NewLogAlertSink(log Logger) *LogAlertSink {
	if log == nil {
		log = NewFmtLogger()
	}
	return &LogAlertSink{log: log}
}

// Raise logs the alert; high severity goes to the error level.
func (s *LogAlertSink) Raise(_ context.Context, severity, message string, attrs map[string]string) {
	if severity == SeverityHigh {
		s.log.Errorf("alert: %s attrs=%v", message, attrs)
		return
	}
	s.log.Warnf("alert: %s attrs=%v", message, attrs)
}
