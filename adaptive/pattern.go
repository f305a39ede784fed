package adaptive

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/99souls/vajrapulse/logging"
	"github.com/99souls/vajrapulse/metrics"
	"github.com/99souls/vajrapulse/pattern"
)

// Listener is notified after every successful state transition. The four
// hooks let a listener distinguish what kind of change happened without
// inspecting Decision.Reason itself; exactly one fires per CheckAndAdjust
// call that actually changes state.
type Listener interface {
	OnPhaseTransition(prev, next State)
	OnTPSChange(prev, next State)
	OnStabilityDetected(prev, next State)
	OnRecovery(prev, next State)
}

// NoopListener can be embedded by listeners that only care about a subset
// of the four hooks, leaving the rest as no-ops.
type NoopListener struct{}

func (NoopListener) OnPhaseTransition(prev, next State)   {}
func (NoopListener) OnTPSChange(prev, next State)         {}
func (NoopListener) OnStabilityDetected(prev, next State) {}
func (NoopListener) OnRecovery(prev, next State)          {}

// ListenerFunc adapts a plain function to Listener, invoked uniformly for
// whichever single hook fires on a given transition.
type ListenerFunc func(prev, next State)

func (f ListenerFunc) OnPhaseTransition(prev, next State)   { f(prev, next) }
func (f ListenerFunc) OnTPSChange(prev, next State)         { f(prev, next) }
func (f ListenerFunc) OnStabilityDetected(prev, next State) { f(prev, next) }
func (f ListenerFunc) OnRecovery(prev, next State)          { f(prev, next) }

// Pattern is an adaptive load pattern: a pattern.Pattern whose TPS is
// driven not by elapsed time but by a CheckAndAdjust loop
// evaluating a DecisionPolicy against live metrics/backpressure, with state
// held in an atomic.Pointer[State] so TPSAt (read by the dispatcher) and
// CheckAndAdjust (run by a separate ticker) never need a mutex between them.
type Pattern struct {
	pattern.AlwaysRecords

	cfg    Config
	policy DecisionPolicy
	logger logging.Logger

	state atomic.Pointer[State]

	listeners []Listener

	currentTPSGauge       metrics.Gauge
	phaseGauge            metrics.Gauge
	stableTPSGauge        metrics.Gauge
	phaseTransitionsGauge metrics.Gauge
	transitionsCounter    metrics.Counter
	tpsAdjustmentHist     metrics.Histogram
}

// New constructs an adaptive Pattern in the RampUp phase at cfg.InitialTPS,
// after validating cfg.
func New(cfg Config, opts ...Option) (*Pattern, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pattern{
		cfg:    cfg,
		policy: DefaultRampDecisionPolicy{},
		logger: logging.New(nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	initial := &State{
		Phase:            RampUp,
		CurrentTPS:       cfg.InitialTPS,
		LastKnownGoodTPS: cfg.InitialTPS,
	}
	p.state.Store(initial)
	return p, nil
}

// Option customizes Pattern construction.
type Option func(*Pattern)

// WithPolicy overrides the default DecisionPolicy, primarily for tests.
func WithPolicy(policy DecisionPolicy) Option {
	return func(p *Pattern) { p.policy = policy }
}

// WithListener attaches a transition listener.
func WithListener(l Listener) Option {
	return func(p *Pattern) { p.listeners = append(p.listeners, l) }
}

// WithLogger overrides the default logger used to report swallowed listener
// panics.
func WithLogger(l logging.Logger) Option {
	return func(p *Pattern) { p.logger = l }
}

// TPSAt satisfies pattern.Pattern; elapsedMS is ignored since the adaptive
// pattern's TPS is driven by CheckAndAdjust, not wall-clock elapsed time.
func (p *Pattern) TPSAt(uint64) float64 { return p.State().CurrentTPS }

// IsTerminating reports false: the adaptive pattern runs until the engine
// stops it.
func (p *Pattern) IsTerminating() bool { return false }

// RegisterMetrics registers the gauges, counter, and histogram spec.md
// §4.6 mandates: adaptive.current_tps, adaptive.phase, adaptive.stable_tps
// (NaN if none), adaptive.phase_transitions, a adaptive.transitions{reason}
// counter, and a adaptive.tps_adjustment histogram of signed deltas.
func (p *Pattern) RegisterMetrics(provider metrics.Provider) {
	p.currentTPSGauge = provider.NewGauge(metrics.GaugeOpts{
		CommonOpts: metrics.CommonOpts{
			Namespace: "vajrapulse",
			Subsystem: "adaptive",
			Name:      "current_tps",
			Help:      "Current target transactions per second chosen by the adaptive pattern.",
		},
	})
	p.phaseGauge = provider.NewGauge(metrics.GaugeOpts{
		CommonOpts: metrics.CommonOpts{
			Namespace: "vajrapulse",
			Subsystem: "adaptive",
			Name:      "phase",
			Help:      "Current adaptive phase (0=ramp_up, 1=ramp_down, 2=sustain).",
		},
	})
	p.stableTPSGauge = provider.NewGauge(metrics.GaugeOpts{
		CommonOpts: metrics.CommonOpts{
			Namespace: "vajrapulse",
			Subsystem: "adaptive",
			Name:      "stable_tps",
			Help:      "TPS of the most recent sustain plateau, NaN if none has been reached yet.",
		},
	})
	p.phaseTransitionsGauge = provider.NewGauge(metrics.GaugeOpts{
		CommonOpts: metrics.CommonOpts{
			Namespace: "vajrapulse",
			Subsystem: "adaptive",
			Name:      "phase_transitions",
			Help:      "Total number of phase transitions observed so far.",
		},
	})
	p.transitionsCounter = provider.NewCounter(metrics.CounterOpts{
		CommonOpts: metrics.CommonOpts{
			Namespace: "vajrapulse",
			Subsystem: "adaptive",
			Name:      "transitions",
			Help:      "Phase transitions, labeled by the decision reason that caused them.",
			Labels:    []string{"reason"},
		},
	})
	p.tpsAdjustmentHist = provider.NewHistogram(metrics.HistogramOpts{
		CommonOpts: metrics.CommonOpts{
			Namespace: "vajrapulse",
			Subsystem: "adaptive",
			Name:      "tps_adjustment",
			Help:      "Signed delta between successive current_tps values chosen by the adaptive pattern.",
		},
	})
	st := p.State()
	p.publishGauges(st)
}

// State returns the current state snapshot. Safe for concurrent use.
func (p *Pattern) State() State { return *p.state.Load() }

// RampIntervalMS reports the configured evaluation interval, for the engine
// to schedule its CheckAndAdjust ticker.
func (p *Pattern) RampIntervalMS() uint64 { return uint64(p.cfg.RampInterval.Milliseconds()) }

// CheckAndAdjust evaluates the decision policy against in (the
// caller-supplied State field is overwritten with the pattern's own current
// state) and applies the result via one CAS attempt, retrying exactly once
// on a lost race before surfacing ErrCASConflict — a second loss indicates
// more than one adjuster is running, which is a configuration bug rather
// than a condition to retry indefinitely against.
func (p *Pattern) CheckAndAdjust(in Inputs) (Decision, error) {
	for attempt := 0; attempt < 2; attempt++ {
		prevPtr := p.state.Load()
		prev := *prevPtr
		in.State = prev
		decision := p.policy.Decide(in, p.cfg)
		next := applyDecision(prev, decision, in.NowMS, p.cfg)

		if p.state.CompareAndSwap(prevPtr, &next) {
			p.publish(prev, next, decision)
			p.notify(prev, next, decision)
			return decision, nil
		}
	}
	return Decision{}, ErrCASConflict
}

func (p *Pattern) publish(prev, next State, d Decision) {
	p.publishGauges(next)
	if d.Kind == NoChange {
		return
	}
	delta := next.CurrentTPS - prev.CurrentTPS
	if p.tpsAdjustmentHist != nil {
		p.tpsAdjustmentHist.Observe(delta)
	}
	if d.Kind == TransitionPhase {
		if p.phaseTransitionsGauge != nil {
			p.phaseTransitionsGauge.Set(float64(next.PhaseTransitionCount))
		}
		if p.transitionsCounter != nil {
			p.transitionsCounter.Inc(1, d.Reason)
		}
	}
}

func (p *Pattern) publishGauges(st State) {
	if p.currentTPSGauge != nil {
		p.currentTPSGauge.Set(st.CurrentTPS)
	}
	if p.phaseGauge != nil {
		p.phaseGauge.Set(float64(st.Phase))
	}
	if p.stableTPSGauge != nil {
		if st.StableTPS != nil {
			p.stableTPSGauge.Set(*st.StableTPS)
		} else {
			p.stableTPSGauge.Set(math.NaN())
		}
	}
}

// notify dispatches exactly one hook per state-changing decision, isolating
// listener failures per spec.md §3/§4.6/§7: a panicking listener is
// recovered and logged, never rethrown, so it can never affect the pattern
// or the engine driving it — same isolation discipline as the teacher's
// Engine.dispatchEvent.
func (p *Pattern) notify(prev, next State, d Decision) {
	if len(p.listeners) == 0 {
		return
	}
	var call func(l Listener)
	switch {
	case d.Kind == TransitionPhase && d.Reason == "stability_detected":
		call = func(l Listener) { l.OnStabilityDetected(prev, next) }
	case d.Kind == TransitionPhase && d.Reason == "recovery":
		call = func(l Listener) { l.OnRecovery(prev, next) }
	case d.Kind == TransitionPhase:
		call = func(l Listener) { l.OnPhaseTransition(prev, next) }
	case d.Kind == SetTPS:
		call = func(l Listener) { l.OnTPSChange(prev, next) }
	default:
		return
	}
	for _, l := range p.listeners {
		p.safeCall(l, call)
	}
}

func (p *Pattern) safeCall(l Listener, call func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorCtx(context.Background(), "adaptive listener panicked", "panic", r)
		}
	}()
	call(l)
}
