package keys

// Package keys centralizes Redis key construction.
// All task keys share the {tasks} hash tag so multi-key Lua scripts stay on a
// single cluster slot.

const prefix = "veriq:{tasks}:"

// Task returns the HASH key holding a task's scalar fields.
func Task(id string) string { return prefix + "task:" + id }

// Workers returns the SET key holding a task's assigned worker IDs.
func Workers(id string) string { return prefix + "task:" + id + ":workers" }

// Submissions returns the HASH key mapping worker ID to submission JSON.
func Submissions(id string) string { return prefix + "task:" + id + ":subs" }

// Order returns the LIST key recording submission arrival order (worker IDs).
func Order(id string) string { return prefix + "task:" + id + ":order" }

// StatusIndex returns the ZSET key indexing task IDs by updated-at ms for a status.
func StatusIndex(status string) string { return prefix + "idx:" + status }

// Events returns the STREAM key the event bus appends to.
func Events() string { return prefix + "events" }

// Inbox returns the LIST key a worker's notifications are pushed to.
// Worker inboxes are read by worker-facing transports, not by this core, so
// they live outside the {tasks} slot.
func Inbox(workerID string) string { return "veriq:inbox:" + workerID }

// Accepts returns the LIST key where worker acceptances for a task land.
func Accepts(taskID string) string { return prefix + "accepts:" + taskID }

// TaskKeys holds all precomputed keys for one task to avoid repeated concatenations.
type TaskKeys struct {
	Task        string
	Workers     string
	Submissions string
	Order       string
}

// For returns the set of precomputed keys for the provided task ID.
func For(id string) TaskKeys {
	return TaskKeys{
		Task:        Task(id),
		Workers:     Workers(id),
		Submissions: Submissions(id),
		Order:       Order(id),
	}
}
