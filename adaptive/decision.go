package adaptive

import (
	"math"

	"github.com/99souls/vajrapulse/metrics"
)

// Kind distinguishes the shape of a Decision.
type Kind int

const (
	NoChange Kind = iota
	SetTPS
	TransitionPhase
)

// Decision is the output of a DecisionPolicy. Candidate, when non-nil,
// folds the stability-tracking bookkeeping into whatever Kind accompanies
// it; applyDecision interprets it uniformly regardless of Kind. A
// TransitionPhase decision always resets stability tracking and ignores
// Candidate.
type Decision struct {
	Kind   Kind
	Phase  Phase
	TPS    float64
	Reason string

	// LastKnownGood, when non-nil, is folded into State.LastKnownGoodTPS
	// via max(), per the RampUp "unhealthy" transition rule.
	LastKnownGood *float64
	// Candidate is the current_tps value observed this interval under
	// healthy (or dead-zone) conditions, for stability-candidate tracking.
	Candidate *float64
}

// Inputs bundles everything DecisionPolicy.Decide needs to stay a pure
// function of its arguments.
type Inputs struct {
	State        State
	Snapshot     metrics.Snapshot
	Backpressure float64
	NowMS        uint64
}

func (in Inputs) failureRate() float64 { return in.Snapshot.RecentFailureRate10s }

func (in Inputs) unhealthy(cfg Config) bool {
	return in.failureRate() >= cfg.Thresholds.ErrorThreshold || in.Backpressure >= cfg.Thresholds.BPRampDownThreshold
}

func (in Inputs) healthy(cfg Config) bool {
	return in.failureRate() < cfg.Thresholds.ErrorThreshold && in.Backpressure < cfg.Thresholds.BPRampUpThreshold
}

// DecisionPolicy is the pure function (state, snapshot, backpressure,
// config) -> Decision that drives an adaptive pattern's phase machine.
type DecisionPolicy interface {
	Decide(in Inputs, cfg Config) Decision
}

// DefaultRampDecisionPolicy implements the three-phase RampUp/RampDown/
// Sustain policy with AIMD-style increase/decrease, consecutive-breach
// counting, stability detection, and a recovery law for re-entering RampUp.
type DefaultRampDecisionPolicy struct{}

func (DefaultRampDecisionPolicy) Decide(in Inputs, cfg Config) Decision {
	switch in.State.Phase {
	case RampUp:
		return rampUpDecide(in, cfg)
	case RampDown:
		return rampDownDecide(in, cfg)
	case Sustain:
		return sustainDecide(in, cfg)
	default:
		return Decision{Kind: NoChange}
	}
}

func rampUpDecide(in Inputs, cfg Config) Decision {
	st := in.State
	if in.unhealthy(cfg) {
		good := st.LastKnownGoodTPS
		if st.CurrentTPS > good {
			good = st.CurrentTPS
		}
		newTPS := clampTPS(st.CurrentTPS-cfg.RampDecrement, cfg)
		return Decision{Kind: TransitionPhase, Phase: RampDown, TPS: newTPS, Reason: "unhealthy", LastKnownGood: &good}
	}
	if !in.healthy(cfg) {
		observed := st.CurrentTPS
		return Decision{Kind: NoChange, Candidate: &observed}
	}

	if st.CurrentTPS >= cfg.MaxTPS {
		return Decision{Kind: TransitionPhase, Phase: Sustain, TPS: cfg.MaxTPS, Reason: "max_tps_reached"}
	}

	observed := st.CurrentTPS
	if tps, fired := checkStability(st, observed, in.NowMS, cfg); fired {
		return Decision{Kind: TransitionPhase, Phase: Sustain, TPS: tps, Reason: "stability_detected"}
	}
	newTPS := clampTPS(st.CurrentTPS+cfg.RampIncrement, cfg)
	return Decision{Kind: SetTPS, TPS: newTPS, Reason: "ramp_up", Candidate: &observed}
}

func rampDownDecide(in Inputs, cfg Config) Decision {
	st := in.State
	observed := st.CurrentTPS

	if !in.unhealthy(cfg) {
		if tps, fired := checkStability(st, observed, in.NowMS, cfg); fired {
			return Decision{Kind: TransitionPhase, Phase: Sustain, TPS: tps, Reason: "stability_detected"}
		}
	}

	if st.CurrentTPS <= cfg.MinTPS {
		if in.healthy(cfg) {
			newTPS := cfg.MinTPS
			if v := cfg.RecoveryRatio * st.LastKnownGoodTPS; v > newTPS {
				newTPS = v
			}
			newTPS = clampTPS(newTPS, cfg)
			return Decision{Kind: TransitionPhase, Phase: RampUp, TPS: newTPS, Reason: "recovery"}
		}
		if in.unhealthy(cfg) {
			return Decision{Kind: NoChange}
		}
		return Decision{Kind: NoChange, Candidate: &observed}
	}

	if in.unhealthy(cfg) {
		newTPS := clampTPS(st.CurrentTPS-cfg.RampDecrement, cfg)
		return Decision{Kind: SetTPS, TPS: newTPS, Reason: "ramp_down"}
	}
	return Decision{Kind: NoChange, Candidate: &observed}
}

func sustainDecide(in Inputs, cfg Config) Decision {
	st := in.State
	if in.unhealthy(cfg) {
		newTPS := clampTPS(st.CurrentTPS-cfg.RampDecrement, cfg)
		return Decision{Kind: TransitionPhase, Phase: RampDown, TPS: newTPS, Reason: "sustain_unhealthy"}
	}
	elapsedInPhase := in.NowMS - st.PhaseStartMS
	if in.healthy(cfg) && elapsedInPhase >= uint64(cfg.SustainDuration.Milliseconds()) && st.CurrentTPS < cfg.MaxTPS {
		newTPS := clampTPS(st.CurrentTPS+cfg.RampIncrement, cfg)
		return Decision{Kind: TransitionPhase, Phase: RampUp, TPS: newTPS, Reason: "sustain_expired"}
	}
	return Decision{Kind: NoChange}
}

// candidateStep computes what the stability-candidate bookkeeping would be
// if observed is folded into prev's existing candidate, without mutating
// anything — used identically by the firing check in Decide and by
// applyDecision, so both agree on the same arithmetic.
func candidateStep(prev State, observed float64, cfg Config) (consecutive uint32, startMS uint64, isNew bool) {
	if prev.CandidateTPS != nil && math.Abs(observed-*prev.CandidateTPS) <= cfg.TPSTolerance {
		return prev.ConsecutiveStable + 1, prev.CandidateStartMS, false
	}
	return 1, 0, true
}

// checkStability reports whether folding observed into state's candidate
// would satisfy stability: consecutive_stable >= stable_intervals_required,
// held for at least stable_intervals_required * ramp_interval.
func checkStability(st State, observed float64, nowMS uint64, cfg Config) (tps float64, fired bool) {
	consecutive, startMS, isNew := candidateStep(st, observed, cfg)
	if isNew {
		startMS = nowMS
	}
	requiredMS := cfg.RampInterval.Milliseconds() * int64(cfg.StableIntervalsRequired)
	if consecutive >= cfg.StableIntervalsRequired && int64(nowMS)-int64(startMS) >= requiredMS {
		return observed, true
	}
	return 0, false
}

// applyDecision folds a Decision onto prev to produce the next State: phase
// bookkeeping, stability-candidate tracking, and last_known_good_tps.
func applyDecision(prev State, d Decision, nowMS uint64, cfg Config) State {
	next := prev
	next.LastAdjustmentMS = nowMS

	switch d.Kind {
	case NoChange:
	case SetTPS:
		next.CurrentTPS = clampTPS(d.TPS, cfg)
	case TransitionPhase:
		next.Phase = d.Phase
		next.CurrentTPS = clampTPS(d.TPS, cfg)
		next.PhaseStartMS = nowMS
		next.PhaseTransitionCount++
		next.ConsecutiveStable = 0
		next.CandidateTPS = nil
		next.CandidateStartMS = 0
		if d.Phase == Sustain {
			v := next.CurrentTPS
			next.StableTPS = &v
		} else {
			next.StableTPS = nil
		}
	}

	if d.Kind != TransitionPhase {
		if d.Candidate == nil {
			next.CandidateTPS = nil
			next.CandidateStartMS = 0
			next.ConsecutiveStable = 0
		} else {
			consecutive, startMS, isNew := candidateStep(prev, *d.Candidate, cfg)
			if isNew {
				startMS = nowMS
			}
			c := *d.Candidate
			next.CandidateTPS = &c
			next.CandidateStartMS = startMS
			next.ConsecutiveStable = consecutive
		}
	}

	if d.LastKnownGood != nil && *d.LastKnownGood > next.LastKnownGoodTPS {
		next.LastKnownGoodTPS = *d.LastKnownGood
	}

	return next
}
