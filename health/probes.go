package health

import (
	"context"
	"fmt"

	"github.com/99souls/vajrapulse/adaptive"
	"github.com/99souls/vajrapulse/backpressure"
	"github.com/99souls/vajrapulse/metrics"
)

// InFlightProbe reports degraded/unhealthy status when the collector's
// in-flight invocation count exceeds the configured capacity thresholds —
// a proxy for worker-pool saturation, since the bounded pool's queue length
// is itself the collector's CurrentInFlight value.
func InFlightProbe(name string, collector *metrics.Collector, capacity int64, degradedRatio, unhealthyRatio float64) Probe {
	return ProbeFunc(func(ctx context.Context) ProbeResult {
		inFlight := collector.CurrentInFlight()
		if capacity <= 0 {
			return Healthy(name)
		}
		ratio := float64(inFlight) / float64(capacity)
		switch {
		case ratio >= unhealthyRatio:
			return Unhealthy(name, fmt.Sprintf("in_flight=%d capacity=%d ratio=%.2f", inFlight, capacity, ratio))
		case ratio >= degradedRatio:
			return Degraded(name, fmt.Sprintf("in_flight=%d capacity=%d ratio=%.2f", inFlight, capacity, ratio))
		default:
			return Healthy(name)
		}
	})
}

// AdaptivePhaseProbe reports degraded when the adaptive pattern is in
// RampDown (actively shedding load due to unhealthy conditions) and
// unhealthy when it is in RampDown and the pattern's total phase transition
// count (State.PhaseTransitionCount, across all phases since construction)
// has reached maxRampDownStreak; 0 disables the unhealthy check. Consecutive
// RampDown entries are not counted separately.
func AdaptivePhaseProbe(name string, pattern *adaptive.Pattern, maxRampDownStreak uint64) Probe {
	return ProbeFunc(func(ctx context.Context) ProbeResult {
		st := pattern.State()
		if st.Phase != adaptive.RampDown {
			return Healthy(name)
		}
		if maxRampDownStreak > 0 && st.PhaseTransitionCount >= maxRampDownStreak {
			return Unhealthy(name, fmt.Sprintf("ramp_down phase_transitions=%d", st.PhaseTransitionCount))
		}
		return Degraded(name, fmt.Sprintf("ramp_down current_tps=%.2f", st.CurrentTPS))
	})
}

// BackpressureProbe surfaces the configured Provider's current level
// directly, using the same thresholds convention as the adaptive decision
// engine's ramp-up/ramp-down thresholds so operators see one consistent
// scale across dashboards and health checks.
func BackpressureProbe(name string, provider backpressure.Provider, degradedAt, unhealthyAt float64) Probe {
	return ProbeFunc(func(ctx context.Context) ProbeResult {
		level := provider.Level()
		switch {
		case level >= unhealthyAt:
			return Unhealthy(name, fmt.Sprintf("level=%.2f", level))
		case level >= degradedAt:
			return Degraded(name, fmt.Sprintf("level=%.2f", level))
		default:
			return Healthy(name)
		}
	})
}
