package veriq

import "time"

type taskOptions struct {
	id       string
	priority int
	deadline int64
}

// TaskOption configures task creation.
type TaskOption func(*taskOptions)

// TaskID sets a custom ID for the task. If not provided, a random UUID will be generated.
func TaskID(id string) TaskOption {
	return func(o *taskOptions) {
		o.id = id
	}
}

// Priority sets the task's scheduling priority; higher is more urgent.
func Priority(p int) TaskOption {
	return func(o *taskOptions) {
		o.priority = p
	}
}

// ExpireIn sets a relative deadline for the task. Once the deadline passes,
// the monitor fails the task and late submissions are rejected.
func ExpireIn(d time.Duration) TaskOption {
	return func(o *taskOptions) {
		o.deadline = time.Now().Add(d).UnixMilli()
	}
}

// ExpireAt sets an absolute deadline for the task.
func ExpireAt(t time.Time) TaskOption {
	return func(o *taskOptions) {
		o.deadline = t.UnixMilli()
	}
}
