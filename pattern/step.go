package pattern

import "fmt"

// Stage is one entry of a Step pattern: hold TPS for DurationMS.
type Stage struct {
	TPS        float64
	DurationMS uint64
}

// Step is a step function over a list of (tps, duration) stages, cloned at
// construction so later mutation of the caller's slice cannot affect an
// in-flight run — grounded on the stage-table dispatch of k6's ramping
// arrival-rate executor, which walks an immutable []Stage the same way.
type Step struct {
	NoMetrics
	AlwaysRecords
	stages  []Stage
	offsets []uint64 // cumulative end-of-stage elapsed_ms, same length as stages
}

func NewStep(stages []Stage) (*Step, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: step pattern requires at least one stage", ErrInvalidConfig)
	}
	cloned := make([]Stage, len(stages))
	offsets := make([]uint64, len(stages))
	var cum uint64
	for i, s := range stages {
		if s.TPS < 0 {
			return nil, fmt.Errorf("%w: step stage %d tps %v must be non-negative", ErrInvalidConfig, i, s.TPS)
		}
		if s.DurationMS == 0 {
			return nil, fmt.Errorf("%w: step stage %d duration must be > 0", ErrInvalidConfig, i)
		}
		cloned[i] = s
		cum += s.DurationMS
		offsets[i] = cum
	}
	return &Step{stages: cloned, offsets: offsets}, nil
}

func (s *Step) TPSAt(elapsedMS uint64) float64 {
	for i, end := range s.offsets {
		if elapsedMS < end {
			return s.stages[i].TPS
		}
	}
	return 0
}

func (s *Step) IsTerminating() bool { return true }

func (s *Step) DurationMS() uint64 {
	if len(s.offsets) == 0 {
		return 0
	}
	return s.offsets[len(s.offsets)-1]
}
