package veriq

import (
	"context"
	"sort"
	"time"
)

// MatchStrategy selects how many of the eligible workers get the offer.
type MatchStrategy string

const (
	// StrategyBroadcast offers the task to every eligible worker.
	StrategyBroadcast MatchStrategy = "broadcast"
	// StrategyTopRated offers the task to the most accurate eligible
	// workers, capped at twice the verification threshold for headroom.
	StrategyTopRated MatchStrategy = "top_rated"
)

// WorkerProfiles supplies read-only worker activity and metrics from the
// external worker-profile subsystem.
type WorkerProfiles interface {
	Profile(ctx context.Context, workerID string) (WorkerActivity, WorkerMetrics, error)
}

// MatchResult reports who was offered the task and who accepted in time.
type MatchResult struct {
	NotifiedWorkers []string
	AcceptedWorkers []string
}

// Matcher filters candidate workers through the fraud gate, fans out offers,
// waits a bounded window for acceptances, and commits the accepted roster by
// transitioning the task to assigned.
type Matcher struct {
	store    *Store
	notifier WorkerNotifier
	accepts  AcceptSource
	bus      EventBus
	scorer   *Scorer
	profiles WorkerProfiles
	cfg      Config
	log      Logger

	now  func() time.Time
	poll time.Duration
}

// NewMatcher wires a matcher from its collaborators.
func NewMatcher(store *Store, notifier WorkerNotifier, accepts AcceptSource, bus EventBus,
	scorer *Scorer, profiles WorkerProfiles, cfg Config, log Logger) *Matcher {
	if log == nil {
		log = noopLogger{}
	}
	return &Matcher{
		store:    store,
		notifier: notifier,
		accepts:  accepts,
		bus:      bus,
		scorer:   scorer,
		profiles: profiles,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		poll:     100 * time.Millisecond,
	}
}

// NotifyEligibleWorkers runs the full offer round for one task. Candidates
// whose current fraud level is HIGH or CRITICAL are excluded regardless of
// upstream selection. The bounded acceptance wait holds no store-level state;
// other tasks proceed independently.
func (m *Matcher) NotifyEligibleWorkers(ctx context.Context, taskID string, candidates []string, strategy MatchStrategy) (MatchResult, error) {
	t, err := m.store.Get(ctx, taskID)
	if err != nil {
		return MatchResult{}, err
	}
	if t.Status != StatusPending {
		return MatchResult{}, ErrIllegalTransition
	}

	eligible := m.filterEligible(ctx, candidates, strategy)
	if len(eligible) == 0 {
		return MatchResult{}, NewDomainError(FailureNoWorkers, "no eligible workers for task "+taskID, nil)
	}

	expiresAt := m.now().Add(m.cfg.NotificationTimeout)
	var notified []string
	for _, w := range eligible {
		if err := m.notifier.Notify(ctx, w, taskID, expiresAt); err != nil {
			m.log.Warnf("matcher: notify failed task=%s worker=%s err=%v", taskID, w, err)
			continue
		}
		notified = append(notified, w)
	}
	if len(notified) == 0 {
		return MatchResult{}, NewDomainError(FailureNoWorkers, "no workers notified for task "+taskID, nil)
	}

	ev := WorkersNotifiedEvent{TaskID: taskID, WorkerIDs: notified, ExpiresAt: expiresAt.UnixMilli()}
	if err := m.bus.Publish(ctx, TopicWorkersNotified, ev); err != nil {
		m.log.Warnf("matcher: WorkersNotified publish failed task=%s err=%v", taskID, err)
	}

	accepted := m.collectAccepts(ctx, taskID, notified, expiresAt)
	res := MatchResult{NotifiedWorkers: notified, AcceptedWorkers: accepted}
	if len(accepted) == 0 {
		// Nobody responded in the window; the task stays pending for the
		// next scheduling sweep.
		return res, nil
	}

	_, err = m.store.CompareAndSwap(ctx, taskID, t.Version, func(t *Task) error {
		t.Status = StatusAssigned
		t.AssignedWorkers = accepted
		return nil
	})
	if err != nil {
		return res, err
	}
	return res, nil
}

// filterEligible applies the fraud gate and strategy to the candidate set.
func (m *Matcher) filterEligible(ctx context.Context, candidates []string, strategy MatchStrategy) []string {
	type rated struct {
		id       string
		accuracy float64
	}
	var pool []rated
	for _, w := range candidates {
		activity, metrics, err := m.profiles.Profile(ctx, w)
		if err != nil {
			m.log.Warnf("matcher: profile lookup failed worker=%s err=%v", w, err)
			continue
		}
		verdict := m.scorer.AssessRisk(activity, metrics)
		if verdict.FraudLevel >= FraudHigh {
			m.log.Infof("matcher: excluding worker=%s fraud_level=%s score=%.1f", w, verdict.FraudLevel, verdict.RiskScore)
			continue
		}
		pool = append(pool, rated{id: w, accuracy: meanFloat(metrics.AccuracyHistory)})
	}

	if strategy == StrategyTopRated {
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].accuracy > pool[j].accuracy })
		limit := 2 * m.cfg.VerificationThreshold
		if len(pool) > limit {
			pool = pool[:limit]
		}
	}

	out := make([]string, 0, len(pool))
	for _, r := range pool {
		out = append(out, r.id)
	}
	return out
}

// collectAccepts polls the accept source until the window closes, every
// notified worker has answered, or the context is cancelled. Acceptances
// from workers that were never notified are dropped.
func (m *Matcher) collectAccepts(ctx context.Context, taskID string, notified []string, expiresAt time.Time) []string {
	offered := make(map[string]bool, len(notified))
	for _, w := range notified {
		offered[w] = true
	}
	seen := make(map[string]bool)
	var accepted []string

	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		ws, err := m.accepts.PollAccepts(ctx, taskID)
		if err != nil {
			m.log.Warnf("matcher: accept poll failed task=%s err=%v", taskID, err)
		}
		for _, w := range ws {
			if offered[w] && !seen[w] {
				seen[w] = true
				accepted = append(accepted, w)
			}
		}
		if len(accepted) == len(notified) || !m.now().Before(expiresAt) {
			return accepted
		}
		select {
		case <-ctx.Done():
			return accepted
		case <-ticker.C:
		}
	}
}
