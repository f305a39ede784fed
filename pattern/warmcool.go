package pattern

import (
	"fmt"

	"github.com/99souls/vajrapulse/metrics"
)

// WarmCoolWrapper defers tps_at to inner unchanged (warmup/cooldown never
// alter load, only measurement) and suppresses metric recording outside the
// steady-state window [warm, total-cool). Wrapping an already-wrapped
// pattern is idempotent: instead of nesting, the warm and cool windows merge
// onto the same inner pattern.
type WarmCoolWrapper struct {
	inner          Pattern
	warmMS, coolMS uint64
	totalMS        uint64
}

// NewWarmCoolWrapper validates warm+cool <= total and returns a wrapper. If
// inner is already a *WarmCoolWrapper, its warm and cool windows are merged
// with the new ones around the same underlying pattern rather than nested.
func NewWarmCoolWrapper(inner Pattern, warmMS, coolMS, totalMS uint64) (*WarmCoolWrapper, error) {
	if existing, ok := inner.(*WarmCoolWrapper); ok {
		mergedWarm := existing.warmMS + warmMS
		mergedCool := existing.coolMS + coolMS
		if mergedWarm+mergedCool > totalMS {
			return nil, fmt.Errorf("%w: merged warm+cool window exceeds total duration", ErrInvalidConfig)
		}
		return &WarmCoolWrapper{inner: existing.inner, warmMS: mergedWarm, coolMS: mergedCool, totalMS: totalMS}, nil
	}
	if warmMS+coolMS > totalMS {
		return nil, fmt.Errorf("%w: warm+cool window exceeds total duration", ErrInvalidConfig)
	}
	return &WarmCoolWrapper{inner: inner, warmMS: warmMS, coolMS: coolMS, totalMS: totalMS}, nil
}

func (w *WarmCoolWrapper) TPSAt(elapsedMS uint64) float64 {
	return w.inner.TPSAt(elapsedMS)
}

func (w *WarmCoolWrapper) IsTerminating() bool {
	return w.inner.IsTerminating()
}

func (w *WarmCoolWrapper) RegisterMetrics(provider metrics.Provider) {
	w.inner.RegisterMetrics(provider)
}

// RecordsMetrics reports false inside [0, warm) and [total-cool, total),
// true on the steady-state window [warm, total-cool) in between.
func (w *WarmCoolWrapper) RecordsMetrics(elapsedMS uint64) bool {
	if elapsedMS < w.warmMS {
		return false
	}
	if w.totalMS >= w.coolMS && elapsedMS >= w.totalMS-w.coolMS {
		return false
	}
	return true
}

// Inner returns the wrapped pattern, unwrapping through any warm/cool layer.
func (w *WarmCoolWrapper) Inner() Pattern { return w.inner }

// DurationMS reports the wrapper's own total duration, which bounds the
// inner pattern's regardless of whether inner implements Durationer itself.
func (w *WarmCoolWrapper) DurationMS() uint64 { return w.totalMS }
