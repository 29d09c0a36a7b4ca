package veriq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type workerProfile struct {
	activity WorkerActivity
	metrics  WorkerMetrics
}

// profileMap is an in-memory WorkerProfiles backed by a fixed table.
type profileMap map[string]workerProfile

func (p profileMap) Profile(_ context.Context, workerID string) (WorkerActivity, WorkerMetrics, error) {
	wp, ok := p[workerID]
	if !ok {
		return WorkerActivity{}, WorkerMetrics{}, ErrWorkerNotAssigned
	}
	return wp.activity, wp.metrics, nil
}

// memNotifier records notified workers in memory.
type memNotifier struct {
	mu       sync.Mutex
	notified []string
}

func (n *memNotifier) Notify(_ context.Context, workerID, _ string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, workerID)
	return nil
}

// queuedAccepts hands out its queued worker IDs on the first poll.
type queuedAccepts struct {
	mu  sync.Mutex
	ids []string
}

func (q *queuedAccepts) PollAccepts(_ context.Context, _ string) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.ids
	q.ids = nil
	return out, nil
}

func cleanProfile(id string) workerProfile {
	return workerProfile{activity: cleanActivity(id), metrics: cleanMetrics()}
}

func fraudProfile(id string) workerProfile {
	return workerProfile{
		activity: WorkerActivity{
			WorkerID:         id,
			TasksPerHour:     90,
			AvgProcessingSec: 1,
			DeviceReuseCount: 10,
			IPTaskCount:      200,
			ApproveShare:     1.0,
		},
		metrics: WorkerMetrics{
			AccountAgeDays:       5,
			Violations:           5,
			AccuracyHistory:      []float64{0.3, 0.3, 0.3},
			BaselineApproveShare: 0.5,
		},
	}
}

func newTestMatcher(store *Store, bus EventBus, profiles WorkerProfiles,
	notifier WorkerNotifier, accepts AcceptSource) *Matcher {
	cfg := DefaultConfig()
	cfg.NotificationTimeout = 50 * time.Millisecond
	m := NewMatcher(store, notifier, accepts, bus, NewScorer(cfg.Fraud), profiles, cfg, nil)
	m.poll = 5 * time.Millisecond
	return m
}

func TestMatcher_FraudGateExcludesRiskyWorkers(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	bus := &memBus{}
	notifier := &memNotifier{}
	accepts := &queuedAccepts{ids: []string{"wA"}}
	profiles := profileMap{"wA": cleanProfile("wA"), "wB": fraudProfile("wB")}
	m := newTestMatcher(store, bus, profiles, notifier, accepts)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Task{ID: "t1", Type: "x"}))

	res, err := m.NotifyEligibleWorkers(ctx, "t1", []string{"wA", "wB"}, StrategyBroadcast)
	require.NoError(t, err)
	require.Equal(t, []string{"wA"}, res.NotifiedWorkers)
	require.Equal(t, []string{"wA"}, res.AcceptedWorkers)
	require.Equal(t, []string{"wA"}, notifier.notified)

	got, _ := store.Get(ctx, "t1")
	require.Equal(t, StatusAssigned, got.Status)
	require.Equal(t, []string{"wA"}, got.AssignedWorkers)

	events := bus.byTopic(TopicWorkersNotified)
	require.Len(t, events, 1)
	require.Equal(t, []string{"wA"}, events[0].Payload.(WorkersNotifiedEvent).WorkerIDs)
}

func TestMatcher_NoEligibleWorkers(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	profiles := profileMap{"wB": fraudProfile("wB")}
	m := newTestMatcher(store, &memBus{}, profiles, &memNotifier{}, &queuedAccepts{})
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Task{ID: "t1", Type: "x"}))

	// wB is gated out, wZ has no profile
	_, err := m.NotifyEligibleWorkers(ctx, "t1", []string{"wB", "wZ"}, StrategyBroadcast)
	require.Error(t, err)
	require.Equal(t, FailureNoWorkers, ClassifyFailure(err))

	got, _ := store.Get(ctx, "t1")
	require.Equal(t, StatusPending, got.Status)
}

func TestMatcher_NoAcceptancesLeavesTaskPending(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	profiles := profileMap{"wA": cleanProfile("wA")}
	m := newTestMatcher(store, &memBus{}, profiles, &memNotifier{}, &queuedAccepts{})
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Task{ID: "t1", Type: "x"}))

	res, err := m.NotifyEligibleWorkers(ctx, "t1", []string{"wA"}, StrategyBroadcast)
	require.NoError(t, err)
	require.Equal(t, []string{"wA"}, res.NotifiedWorkers)
	require.Empty(t, res.AcceptedWorkers)

	got, _ := store.Get(ctx, "t1")
	require.Equal(t, StatusPending, got.Status)
	require.Empty(t, got.AssignedWorkers)
}

func TestMatcher_UnsolicitedAcceptIsDropped(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	profiles := profileMap{"wA": cleanProfile("wA")}
	accepts := &queuedAccepts{ids: []string{"wZ", "wA"}}
	m := newTestMatcher(store, &memBus{}, profiles, &memNotifier{}, accepts)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Task{ID: "t1", Type: "x"}))

	res, err := m.NotifyEligibleWorkers(ctx, "t1", []string{"wA"}, StrategyBroadcast)
	require.NoError(t, err)
	require.Equal(t, []string{"wA"}, res.AcceptedWorkers)

	got, _ := store.Get(ctx, "t1")
	require.Equal(t, []string{"wA"}, got.AssignedWorkers)
}

func TestMatcher_TopRatedCapsAndRanks(t *testing.T) {
	profiles := profileMap{}
	for _, p := range []struct {
		id  string
		acc float64
	}{
		{"w-mid", 0.7}, {"w-best", 0.9}, {"w-low", 0.5}, {"w-good", 0.8},
	} {
		wp := cleanProfile(p.id)
		wp.metrics.AccuracyHistory = []float64{p.acc}
		profiles[p.id] = wp
	}
	cfg := DefaultConfig()
	cfg.VerificationThreshold = 1 // top_rated cap = 2
	m := NewMatcher(nil, nil, nil, nil, NewScorer(cfg.Fraud), profiles, cfg, nil)

	out := m.filterEligible(context.Background(), []string{"w-mid", "w-best", "w-low", "w-good"}, StrategyTopRated)
	require.Equal(t, []string{"w-best", "w-good"}, out)
}

func TestMatcher_RejectsNonPendingTask(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewStore(rdb)
	profiles := profileMap{"wA": cleanProfile("wA")}
	m := newTestMatcher(store, &memBus{}, profiles, &memNotifier{}, &queuedAccepts{})
	ctx := context.Background()

	mkAssigned(t, store, "t1", []string{"wA"})

	_, err := m.NotifyEligibleWorkers(ctx, "t1", []string{"wA"}, StrategyBroadcast)
	require.ErrorIs(t, err, ErrIllegalTransition)
}
