package veriq

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Engine wires the lifecycle components over one Redis client and runs the
// periodic contracts: the scheduling sweep, the progress-monitor sweep, and
// stalled-task recovery. All cross-task coordination goes through the store's
// conditional updates; the engine holds no per-task state of its own, so
// multiple engine processes may run side by side.
type Engine struct {
	cfg Config
	log Logger

	store        *Store
	bus          EventBus
	alerts       AlertSink
	scorer       *Scorer
	scheduler    *Scheduler
	matcher      *Matcher
	collector    *Collector
	consolidator *Consolidator
	monitor      *Monitor
	recovery     *Recovery
	failures     *FailureHandler

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// EngineOption overrides an engine collaborator.
type EngineOption func(*Engine)

// WithLogger injects the logger used by every component.
func WithLogger(log Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// WithEventBus replaces the default Redis-stream event bus.
func WithEventBus(bus EventBus) EngineOption {
	return func(e *Engine) { e.bus = bus }
}

// WithAlertSink replaces the default log-backed alert sink.
func WithAlertSink(sink AlertSink) EngineOption {
	return func(e *Engine) { e.alerts = sink }
}

// NewEngine builds an engine. The profiles provider feeds the fraud gate;
// notifier and accepts carry worker offers and responses (the default Redis
// notifier serves both when nil).
func NewEngine(rdb redis.UniversalClient, cfg Config, profiles WorkerProfiles,
	notifier WorkerNotifier, accepts AcceptSource, opts ...EngineOption) *Engine {
	e := &Engine{cfg: cfg, log: NewFmtLogger()}
	for _, opt := range opts {
		opt(e)
	}

	e.store = NewStore(rdb)
	if e.bus == nil {
		e.bus = NewRedisEventBus(rdb)
	}
	if e.alerts == nil {
		e.alerts = NewLogAlertSink(e.log)
	}
	if notifier == nil || accepts == nil {
		rn := NewRedisNotifier(rdb)
		if notifier == nil {
			notifier = rn
		}
		if accepts == nil {
			accepts = rn
		}
	}

	e.scorer = NewScorer(cfg.Fraud)
	e.scheduler = NewScheduler(e.store, e.bus, cfg, e.log)
	e.matcher = NewMatcher(e.store, notifier, accepts, e.bus, e.scorer, profiles, cfg, e.log)
	e.collector = NewCollector(e.store, e.log)
	e.consolidator = NewConsolidator(e.store, e.bus, e.log)
	e.monitor = NewMonitor(e.store, e.consolidator, e.bus, cfg, e.log)
	e.recovery = NewRecovery(e.store, e.bus, cfg, e.log)
	e.failures = NewFailureHandler(e.store, e.bus, e.alerts, cfg, e.log)
	return e
}

// Start launches the periodic sweeps. It is idempotent and non-blocking.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.log.Warnf("engine already started; ignoring Start()")
		e.mu.Unlock()
		return
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.mu.Unlock()
	e.log.Infof("engine starting: threshold=%d stall=%s", e.cfg.VerificationThreshold, e.cfg.StallThreshold)

	e.loop(e.cfg.ScheduleInterval, func(ctx context.Context) {
		if n, err := e.scheduler.ScheduleReadyTasks(ctx); err != nil {
			e.log.Warnf("engine: schedule sweep failed err=%v", err)
		} else if n > 0 {
			e.log.Debugf("engine: scheduled %d tasks", n)
		}
	})
	e.loop(e.cfg.MonitorInterval, func(ctx context.Context) {
		e.monitor.Sweep(ctx)
	})
	e.loop(e.cfg.RecoveryInterval, func(ctx context.Context) {
		if n, err := e.recovery.RecoverStalled(ctx); err != nil {
			e.log.Warnf("engine: recovery sweep failed err=%v", err)
		} else if n > 0 {
			e.log.Infof("engine: reset %d stalled tasks", n)
		}
	})
}

// Stop cancels the sweeps and waits for them to exit. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.log.Warnf("engine not started; ignoring Stop()")
		e.mu.Unlock()
		return
	}
	e.started = false
	cancel := e.cancel
	e.mu.Unlock()
	e.log.Infof("engine stopping")

	cancel()
	e.wg.Wait()
}

func (e *Engine) loop(interval time.Duration, sweep func(context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.ctx.Done():
				return
			case <-ticker.C:
				sweep(e.ctx)
			}
		}
	}()
}

// Store exposes the task store for intake and inspection.
func (e *Engine) Store() *Store { return e.store }

// Matcher exposes the worker matcher; TaskScheduled consumers invoke it.
func (e *Engine) Matcher() *Matcher { return e.matcher }

// Collector exposes the submission collector; worker-facing transports
// invoke it from their response side-channel.
func (e *Engine) Collector() *Collector { return e.collector }

// Consolidator exposes the result consolidator.
func (e *Engine) Consolidator() *Consolidator { return e.consolidator }

// Monitor exposes the verification monitor.
func (e *Engine) Monitor() *Monitor { return e.monitor }

// FailureHandler exposes the failure classifier.
func (e *Engine) FailureHandler() *FailureHandler { return e.failures }

// Scorer exposes the fraud scorer for payment-side gating.
func (e *Engine) Scorer() *Scorer { return e.scorer }
