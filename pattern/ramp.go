package pattern

import "fmt"

// LinearRamp ramps target TPS linearly from 0 up to target over duration,
// holding at 0 beyond it: target * min(elapsed/duration, 1.0) while
// elapsed <= duration.
type LinearRamp struct {
	NoMetrics
	AlwaysRecords
	target     float64
	durationMS uint64
}

func NewLinearRamp(target float64, durationMS uint64) (*LinearRamp, error) {
	if target < 0 {
		return nil, fmt.Errorf("%w: ramp target %v must be non-negative", ErrInvalidConfig, target)
	}
	if durationMS == 0 {
		return nil, fmt.Errorf("%w: ramp duration must be > 0", ErrInvalidConfig)
	}
	return &LinearRamp{target: target, durationMS: durationMS}, nil
}

func (r *LinearRamp) TPSAt(elapsedMS uint64) float64 {
	if elapsedMS > r.durationMS {
		return 0
	}
	frac := float64(elapsedMS) / float64(r.durationMS)
	if frac > 1 {
		frac = 1
	}
	return r.target * frac
}

func (r *LinearRamp) IsTerminating() bool { return true }

func (r *LinearRamp) DurationMS() uint64 { return r.durationMS }

// RampThenHold ramps linearly to target over ramp, holds target for hold,
// then drops to 0.
type RampThenHold struct {
	NoMetrics
	AlwaysRecords
	target       float64
	rampMS       uint64
	holdMS       uint64
}

func NewRampThenHold(target float64, rampMS, holdMS uint64) (*RampThenHold, error) {
	if target < 0 {
		return nil, fmt.Errorf("%w: ramp-then-hold target %v must be non-negative", ErrInvalidConfig, target)
	}
	if rampMS == 0 {
		return nil, fmt.Errorf("%w: ramp-then-hold ramp duration must be > 0", ErrInvalidConfig)
	}
	return &RampThenHold{target: target, rampMS: rampMS, holdMS: holdMS}, nil
}

func (r *RampThenHold) TPSAt(elapsedMS uint64) float64 {
	switch {
	case elapsedMS < r.rampMS:
		return r.target * float64(elapsedMS) / float64(r.rampMS)
	case elapsedMS < r.rampMS+r.holdMS:
		return r.target
	default:
		return 0
	}
}

func (r *RampThenHold) IsTerminating() bool { return true }

func (r *RampThenHold) DurationMS() uint64 { return r.rampMS + r.holdMS }
