package veriq

import (
	"context"
	"sort"
	"time"
)

// Scheduler periodically promotes ready tasks into the assignment pipeline.
// It publishes TaskScheduled events in priority order but never mutates a
// pending task's status itself; the matcher owns the PENDING -> ASSIGNED
// transition once a roster accepts.
type Scheduler struct {
	store *Store
	bus   EventBus
	cfg   Config
	log   Logger
}

// NewScheduler creates a scheduler. A nil logger disables logging.
func NewScheduler(store *Store, bus EventBus, cfg Config, log Logger) *Scheduler {
	if log == nil {
		log = noopLogger{}
	}
	return &Scheduler{store: store, bus: bus, cfg: cfg, log: log}
}

// ScheduleReadyTasks runs one scheduling sweep. It first requeues tasks
// parked in pending_retry, then reads a bounded pending batch, groups it by
// task type, orders each group by descending priority (stable, so equal
// priorities keep arrival order), and publishes one TaskScheduled event per
// task. A single task's publish failure is logged and skipped.
func (s *Scheduler) ScheduleReadyTasks(ctx context.Context) (int, error) {
	s.requeueRetries(ctx)

	ids, err := s.store.QueryByStatus(ctx, StatusPending, time.Time{}, s.cfg.ScheduleBatchSize)
	if err != nil {
		return 0, err
	}

	groups := make(map[string][]*Task)
	var order []string
	for _, id := range ids {
		t, err := s.store.Get(ctx, id)
		if err != nil {
			s.log.Warnf("scheduler: load failed id=%s err=%v", id, err)
			continue
		}
		if t.Status != StatusPending {
			continue
		}
		if _, seen := groups[t.Type]; !seen {
			order = append(order, t.Type)
		}
		groups[t.Type] = append(groups[t.Type], t)
	}

	scheduled := 0
	for _, taskType := range order {
		group := groups[taskType]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Priority > group[j].Priority
		})
		for _, t := range group {
			ev := TaskScheduledEvent{TaskID: t.ID, TaskType: t.Type, Priority: t.Priority}
			if err := s.bus.Publish(ctx, TopicTaskScheduled, ev); err != nil {
				s.log.Warnf("scheduler: publish failed id=%s err=%v", t.ID, err)
				continue
			}
			scheduled++
		}
	}
	return scheduled, nil
}

// requeueRetries moves recoverable failures from pending_retry back to
// pending so the current sweep can pick them up. Per-task failures are
// isolated.
func (s *Scheduler) requeueRetries(ctx context.Context) {
	ids, err := s.store.QueryByStatus(ctx, StatusPendingRetry, time.Time{}, s.cfg.ScheduleBatchSize)
	if err != nil {
		s.log.Warnf("scheduler: retry scan failed err=%v", err)
		return
	}
	for _, id := range ids {
		_, err := s.store.Update(ctx, id, 2, func(t *Task) error {
			if t.Status != StatusPendingRetry {
				return ErrIllegalTransition
			}
			t.Status = StatusPending
			return nil
		})
		if err != nil {
			s.log.Warnf("scheduler: requeue failed id=%s err=%v", id, err)
		}
	}
}
