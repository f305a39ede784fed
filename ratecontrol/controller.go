// Package ratecontrol converts a load pattern's instantaneous TPS into a
// stream of release deadlines, with catch-up suppression so a stall or
// burst never causes an unbounded backlog of overdue releases.
package ratecontrol

import (
	"context"
	"time"

	"github.com/99souls/vajrapulse/clock"
	"github.com/99souls/vajrapulse/pattern"
)

// MinPollInterval bounds how often Controller polls a pattern reporting
// tps <= 0, avoiding a busy-wait while still observing cancellation
// promptly (a bounded minimum poll frequency of 10 Hz).
const MinPollInterval = 100 * time.Millisecond

// Signal is the result of one WaitForNext call.
type Signal int

const (
	// Release means the caller should issue one invocation now.
	Release Signal = iota
	// Idle means the pattern's instantaneous TPS was <= 0. WaitForNext has
	// already waited MinPollInterval before returning it, so the caller
	// can poll again at once, or stop if the pattern is terminating and has
	// run past its duration.
	Idle
)

// Controller computes wake-up deadlines for successive invocations. Not
// safe for concurrent use by multiple dispatchers — it assumes a single
// logical dispatcher goroutine.
type Controller struct {
	clk     clock.Clock
	pattern pattern.Pattern
	startNS int64

	// nextReleaseNS starts at the clock's zero value, which is always
	// earlier than any real Now() — step 5 of spec.md §4.4 treats that the
	// same as having already caught up, so no separate "first call" branch
	// is needed.
	nextReleaseNS int64
	issuedCount   uint64
}

// New constructs a Controller that measures elapsed time from the moment
// of construction.
func New(clk clock.Clock, p pattern.Pattern) *Controller {
	return &Controller{clk: clk, pattern: p, startNS: clk.Now().UnixNano()}
}

// ElapsedMS returns milliseconds elapsed since the controller started.
func (c *Controller) ElapsedMS() uint64 {
	return uint64(c.clk.Now().UnixNano()-c.startNS) / uint64(time.Millisecond)
}

// IssuedCount returns the number of Release signals returned so far.
func (c *Controller) IssuedCount() uint64 { return c.issuedCount }

// WaitForNext blocks (respecting ctx) until the next invocation should be
// released. Ties between simultaneous wake-ups are broken by FIFO order of
// caller arrival, which falls out naturally since Controller serializes
// calls from a single dispatcher goroutine.
func (c *Controller) WaitForNext(ctx context.Context) (Signal, error) {
	now := c.clk.Now()
	elapsedMS := uint64(now.UnixNano()-c.startNS) / uint64(time.Millisecond)
	tps := c.pattern.TPSAt(elapsedMS)
	if tps <= 0 {
		if err := c.clk.SleepUntilCtx(ctx, now.Add(MinPollInterval)); err != nil {
			return Idle, err
		}
		return Idle, nil
	}

	intervalNS := int64(1e9 / tps)
	nowNS := now.UnixNano()
	if c.nextReleaseNS <= nowNS {
		c.nextReleaseNS = nowNS
	} else if err := c.clk.SleepUntilCtx(ctx, time.Unix(0, c.nextReleaseNS)); err != nil {
		return Idle, err
	}
	c.nextReleaseNS += intervalNS
	c.issuedCount++
	return Release, nil
}
