// Package pattern implements load-pattern shaping: a small interface
// dispatched per variant (constant, ramps, steps, sinusoid, spike, warm/cool
// wrapper, and the adaptive pattern in package adaptive) — no shared
// abstract base, each variant stands alone.
package pattern

import (
	"errors"

	"github.com/99souls/vajrapulse/metrics"
)

// ErrInvalidConfig is raised by pattern constructors for bad configuration
// (non-positive duration, negative TPS, empty step lists, etc.) — surfaced
// before any run starts.
var ErrInvalidConfig = errors.New("pattern: invalid configuration")

// Pattern is the load-pattern capability contract.
type Pattern interface {
	// TPSAt returns the instantaneous target transactions-per-second at
	// elapsedMS milliseconds into the run. Must be non-negative.
	TPSAt(elapsedMS uint64) float64
	// IsTerminating reports whether the pattern has an intrinsic end time
	// after which TPSAt returns 0 indefinitely.
	IsTerminating() bool
	// RegisterMetrics is an opt-in hook for patterns that expose gauges
	// (used by the adaptive pattern); most built-ins no-op.
	RegisterMetrics(provider metrics.Provider)
	// RecordsMetrics reports whether samples taken at elapsedMS should be
	// counted — false only inside a warm-up/cool-down window.
	RecordsMetrics(elapsedMS uint64) bool
}

// NoMetrics can be embedded by patterns with nothing to register.
type NoMetrics struct{}

func (NoMetrics) RegisterMetrics(metrics.Provider) {}

// AlwaysRecords can be embedded by patterns with no warm/cool window.
type AlwaysRecords struct{}

func (AlwaysRecords) RecordsMetrics(uint64) bool { return true }

// Durationer is an optional capability a terminating Pattern can implement
// to report its intrinsic end time precisely, rather than forcing callers
// to infer termination from an incidental TPSAt(elapsed)==0 sample (several
// built-ins, e.g. LinearRamp, legitimately return 0 at elapsed=0 too).
// Every terminating built-in in this package implements it; the adaptive
// pattern does not, since it never terminates.
type Durationer interface {
	DurationMS() uint64
}
