package veriq

import (
	"context"

	"github.com/google/uuid"
)

// Client is the intake front door: it creates verification tasks in pending
// status for the scheduler to pick up. Task content is opaque to the engine.
type Client struct {
	store *Store
}

// NewClient creates a task intake client on the shared store.
func NewClient(store *Store) *Client {
	return &Client{store: store}
}

// CreateTask persists a new pending task and returns it. It returns
// ErrDuplicateTask if the ID (explicit or generated) already exists.
func (c *Client) CreateTask(ctx context.Context, taskType string, payload []byte, opts ...TaskOption) (*Task, error) {
	cfg := &taskOptions{}
	for _, opt := range opts {
		opt(cfg)
	}

	id := cfg.id
	if id == "" {
		id = uuid.NewString()
	}

	t := &Task{
		ID:       id,
		Type:     taskType,
		Priority: cfg.priority,
		Payload:  payload,
		Deadline: cfg.deadline,
	}
	if err := c.store.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}
