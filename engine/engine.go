// Package engine implements the Execution Engine of spec.md §4.8: it owns
// the task, load pattern, metrics collector, and worker pool, and drives
// the single dispatch loop that ties them together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/99souls/vajrapulse/adaptive"
	"github.com/99souls/vajrapulse/clock"
	"github.com/99souls/vajrapulse/logging"
	"github.com/99souls/vajrapulse/metrics"
	"github.com/99souls/vajrapulse/pattern"
	"github.com/99souls/vajrapulse/ratecontrol"
	"github.com/99souls/vajrapulse/task"
)

// Snapshot is the unified read-only view of spec.md §3's EXPANSION note:
// the metrics snapshot plus the adaptive pattern's phase/TPS (when the
// configured pattern is adaptive) and the current in-flight count.
type Snapshot struct {
	Metrics         metrics.Snapshot
	AdaptivePhase   *adaptive.Phase
	AdaptiveTPS     *float64
	CurrentInFlight int64
	IssuedCount     uint64
	Running         bool
}

// Engine drives one load-generation run, per spec.md §4.8. Not reusable
// across runs: construct a new Engine for each Run call.
type Engine struct {
	task    task.Task
	pattern pattern.Pattern
	cfg     Config
	logger  logging.Logger
	runID   string

	collector  *metrics.Collector
	rateCtrl   *ratecontrol.Controller
	workerPool pool

	stopRequested atomic.Bool
	running       atomic.Bool
	iterCounter   atomic.Uint64

	adaptivePattern *adaptive.Pattern
	lastAdjustMS    atomic.Uint64

	done chan struct{}
}

// Done returns a channel closed when Run returns, for callers that want to
// select on run completion alongside other events.
func (e *Engine) Done() <-chan struct{} { return e.done }

// New constructs an Engine for t driven by p, validating cfg and defaulting
// any zero fields not explicitly set by the caller.
func New(t task.Task, p pattern.Pattern, cfg Config, opts ...Option) (*Engine, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: task must not be nil", ErrInvalidConfig)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: pattern must not be nil", ErrInvalidConfig)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.MetricsProvider == nil {
		cfg.MetricsProvider = metrics.NewNoopProvider()
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	if cfg.ForceTimeout <= 0 {
		cfg.ForceTimeout = 10 * time.Second
	}
	if cfg.MinPollInterval <= 0 {
		cfg.MinPollInterval = ratecontrol.MinPollInterval
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		task:    t,
		pattern: p,
		cfg:     cfg,
		logger:  logging.New(nil),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	if adaptivePattern, ok := p.(*adaptive.Pattern); ok {
		e.adaptivePattern = adaptivePattern
	}

	collectorOpts := []metrics.Option{metrics.WithClock(cfg.Clock)}
	if len(cfg.Quantiles) > 0 {
		collectorOpts = append(collectorOpts, metrics.WithQuantiles(cfg.Quantiles))
	}
	e.collector = metrics.NewCollector(collectorOpts...)

	switch t.ExecutionPolicy() {
	case task.Bounded:
		e.workerPool = newBoundedPool(cfg.Workers)
	default:
		e.workerPool = newCooperativePool(cfg.MaxInFlight)
	}

	return e, nil
}

// Option customizes Engine construction.
type Option func(*Engine)

// WithLogger overrides the default logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRunID tags every log line this engine emits with runID.
func WithRunID(runID string) Option {
	return func(e *Engine) { e.runID = runID }
}

// Run is blocking: it drives the task to completion, per spec.md §4.8's
// lifecycle. ctx cancellation is equivalent to calling Stop. Run may be
// called at most once per Engine.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)
	defer close(e.done)

	runCtx := ctx
	if e.runID != "" {
		runCtx = logging.WithRunID(ctx, e.runID)
	}

	if err := e.task.Init(runCtx); err != nil {
		return fmt.Errorf("task init: %w", err)
	}

	e.pattern.RegisterMetrics(e.cfg.MetricsProvider)
	e.rateCtrl = ratecontrol.New(e.cfg.Clock, e.pattern)

	e.logger.InfoCtx(runCtx, "engine run starting")
	runErr := e.dispatch(runCtx)

	e.drain(runCtx)

	if tdErr := e.task.Teardown(runCtx); tdErr != nil {
		e.logger.ErrorCtx(runCtx, "task teardown failed", "error", tdErr)
	}

	e.logger.InfoCtx(runCtx, "engine run complete")
	return runErr
}

// dispatch is the single dispatcher loop of spec.md §4.8.
func (e *Engine) dispatch(ctx context.Context) error {
	rampIntervalMS := uint64(e.cfg.RampInterval.Milliseconds())
	if e.adaptivePattern != nil {
		rampIntervalMS = e.adaptivePattern.RampIntervalMS()
	}

	for {
		if e.stopRequested.Load() || ctx.Err() != nil {
			return nil
		}

		sig, err := e.rateCtrl.WaitForNext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("rate controller: %w", err)
		}

		if sig == ratecontrol.Idle {
			if durationer, ok := e.pattern.(pattern.Durationer); ok && e.pattern.IsTerminating() {
				if e.rateCtrl.ElapsedMS() >= durationer.DurationMS() {
					return nil
				}
			} else if e.pattern.IsTerminating() {
				return nil
			}
			continue
		}

		e.collector.RecordIssued()
		iter := e.iterCounter.Add(1) - 1
		elapsedMS := e.rateCtrl.ElapsedMS()
		e.dispatchInvocation(ctx, iter, e.pattern.RecordsMetrics(elapsedMS))

		if e.adaptivePattern != nil && rampIntervalMS > 0 {
			nowMS := e.rateCtrl.ElapsedMS()
			if nowMS-e.lastAdjustMS.Load() >= rampIntervalMS {
				e.lastAdjustMS.Store(nowMS)
				e.runAdjuster(ctx, nowMS)
			}
		}
	}
}

func (e *Engine) dispatchInvocation(ctx context.Context, iter uint64, recordsMetrics bool) {
	e.collector.IncrInFlight()
	submitErr := e.workerPool.submit(ctx, func() {
		defer e.collector.DecrInFlight()
		startNS := e.cfg.Clock.Now().UnixNano()
		outcome := e.task.Execute(ctx, iter)
		endNS := e.cfg.Clock.Now().UnixNano()
		if recordsMetrics {
			e.collector.Record(outcome, endNS-startNS)
		}
	})
	if submitErr != nil {
		e.collector.DecrInFlight()
	}
}

func (e *Engine) runAdjuster(ctx context.Context, nowMS uint64) {
	snap := e.collector.Snapshot()
	bp := float64(0)
	if e.cfg.Backpressure != nil {
		bp = e.cfg.Backpressure.Level()
	}
	_, err := e.adaptivePattern.CheckAndAdjust(adaptive.Inputs{
		Snapshot:     snap,
		Backpressure: bp,
		NowMS:        nowMS,
	})
	if err != nil {
		e.logger.ErrorCtx(ctx, "adaptive adjustment failed", "error", err)
	}
}

// drain implements spec.md §4.8 step 4/5: stop issuing new work (already
// true once dispatch returns), wait up to DrainTimeout for in-flight
// invocations to settle, then proceed regardless.
func (e *Engine) drain(ctx context.Context) {
	drained := make(chan struct{})
	go func() {
		e.workerPool.wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(e.cfg.DrainTimeout):
		e.logger.WarnCtx(ctx, "drain timeout exceeded, proceeding to forced shutdown")
		select {
		case <-drained:
		case <-time.After(e.cfg.ForceTimeout):
			e.logger.WarnCtx(ctx, "force timeout exceeded, abandoning remaining invocations")
		}
	}
}

// Stop requests graceful shutdown. Idempotent; safe to call before, during,
// or after Run, and from a different goroutine than Run.
func (e *Engine) Stop() {
	e.stopRequested.Store(true)
}

// Close releases engine resources. Safe to call multiple times and from a
// different goroutine than Run; should be called after Run returns.
func (e *Engine) Close() error {
	return e.collector.Close()
}

// CurrentPhase reports the adaptive pattern's phase, or ok=false if the
// configured pattern is not adaptive.
func (e *Engine) CurrentPhase() (phase adaptive.Phase, ok bool) {
	if e.adaptivePattern == nil {
		return 0, false
	}
	return e.adaptivePattern.State().Phase, true
}

// InFlightCount returns the current in-flight invocation count.
func (e *Engine) InFlightCount() int64 { return e.collector.CurrentInFlight() }

// MetricsSnapshot forwards the collector's current snapshot.
func (e *Engine) MetricsSnapshot() metrics.Snapshot { return e.collector.Snapshot() }

// Snapshot returns the unified read-only view described in SPEC_FULL.md's
// data-model expansion.
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		Metrics:         e.collector.Snapshot(),
		CurrentInFlight: e.collector.CurrentInFlight(),
		Running:         e.running.Load(),
	}
	if e.rateCtrl != nil {
		snap.IssuedCount = e.rateCtrl.IssuedCount()
	}
	if e.adaptivePattern != nil {
		st := e.adaptivePattern.State()
		phase := st.Phase
		tps := st.CurrentTPS
		snap.AdaptivePhase = &phase
		snap.AdaptiveTPS = &tps
	}
	return snap
}
