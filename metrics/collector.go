package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/99souls/vajrapulse/clock"
	"github.com/99souls/vajrapulse/task"
)

// DefaultQuantiles is the caller-fixed set of quantiles tracked when none is
// supplied.
var DefaultQuantiles = []float64{0.50, 0.95, 0.99}

// Snapshot is an immutable point-in-time view of aggregated run metrics.
type Snapshot struct {
	TotalExecutions uint64
	SuccessCount    uint64
	FailureCount    uint64

	SuccessPercentiles map[float64]float64
	FailurePercentiles map[float64]float64

	ElapsedNS          int64
	ResponseTPSTotal   float64
	ResponseTPSSuccess float64
	ResponseTPSFailure float64
	RequestTPSTotal    float64

	QueueWaitPercentiles map[float64]float64
	CurrentInFlight      int64

	// RecentFailureRate10s is RecentFailureRate(10) evaluated at snapshot
	// time, folded into the snapshot value itself so the adaptive decision
	// engine's Decide (a pure function of its inputs) can read it off the
	// snapshot instead of requiring a live Collector handle.
	RecentFailureRate10s float64
}

// recentEvent is one bucketed outcome timestamp retained only long enough
// to answer RecentFailureRate; the Collector never retains individual
// ExecutionRecords past record().
type recentEvent struct {
	atNS    int64
	success bool
}

// Collector is a thread-safe, lock-free-fast-path recorder of per-invocation
// outcomes, a bounded-memory P² percentile sketch per latency stream
// (success, failure, queue-wait), and a ring of recent outcome timestamps
// for RecentFailureRate. Each stream is guarded by its own lock rather than
// one global lock.
type Collector struct {
	clk clock.Clock

	totalExec  atomic.Uint64
	successCnt atomic.Uint64
	failureCnt atomic.Uint64
	issuedCnt  atomic.Uint64
	inFlight   atomic.Int64

	startNS int64

	quantiles []float64

	successMu sync.Mutex
	success   *quantileSketch
	failureMu sync.Mutex
	failure   *quantileSketch
	queueMu   sync.Mutex
	queueWait *quantileSketch

	// RecentFailureRate window: a buffer of recent events, trimmed on write
	// once it exceeds recentCap; reads only filter by timestamp. Bounded by
	// recentCap, never unbounded growth.
	recentMu  sync.Mutex
	recent    []recentEvent
	recentCap int
}

// Option configures a Collector at construction.
type Option func(*Collector)

// WithQuantiles overrides DefaultQuantiles.
func WithQuantiles(qs []float64) Option {
	return func(c *Collector) { c.quantiles = qs }
}

// WithClock injects a clock.Clock, for deterministic RecentFailureRate tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Collector) { c.clk = clk }
}

// WithRecentCapacity bounds the recent-event ring used by RecentFailureRate.
// Defaults to 100_000 entries, which at sustained high TPS still represents
// a few seconds to minutes of history while staying allocation-bounded.
func WithRecentCapacity(n int) Option {
	return func(c *Collector) { c.recentCap = n }
}

// NewCollector constructs a Collector ready to record outcomes.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		clk:       clock.Real(),
		quantiles: DefaultQuantiles,
		recentCap: 100_000,
	}
	for _, o := range opts {
		o(c)
	}
	c.success = newQuantileSketch(c.quantiles)
	c.failure = newQuantileSketch(c.quantiles)
	c.queueWait = newQuantileSketch(c.quantiles)
	c.startNS = c.clk.Now().UnixNano()
	return c
}

// Record records one completed execution. Thread-safe; the counter updates
// are lock-free, only the percentile-sketch update briefly locks its own
// per-stream mutex (never a lock shared with the other streams).
func (c *Collector) Record(outcome task.Outcome, latencyNS int64) {
	c.totalExec.Add(1)
	latency := float64(latencyNS)
	switch outcome.Kind {
	case task.Success:
		c.successCnt.Add(1)
		c.successMu.Lock()
		c.success.observe(latency)
		c.successMu.Unlock()
	default:
		c.failureCnt.Add(1)
		c.failureMu.Lock()
		c.failure.observe(latency)
		c.failureMu.Unlock()
	}
	c.pushRecent(outcome.Kind == task.Success)
}

// RecordQueueWait records the time an invocation waited for a worker slot
// before its task execution began.
func (c *Collector) RecordQueueWait(latencyNS int64) {
	c.queueMu.Lock()
	c.queueWait.observe(float64(latencyNS))
	c.queueMu.Unlock()
}

// RecordIssued marks that the rate controller released one invocation slot.
// Called by the engine's dispatch loop, not by task execution itself, so
// RequestTPSTotal in the snapshot reflects issuance rate independently of
// how many of those invocations have completed.
func (c *Collector) RecordIssued() { c.issuedCnt.Add(1) }

// IncrInFlight and DecrInFlight track the current in-flight invocation count.
func (c *Collector) IncrInFlight() { c.inFlight.Add(1) }
func (c *Collector) DecrInFlight() { c.inFlight.Add(-1) }

// CurrentInFlight returns the live in-flight invocation count.
func (c *Collector) CurrentInFlight() int64 { return c.inFlight.Load() }

func (c *Collector) pushRecent(success bool) {
	c.recentMu.Lock()
	c.recent = append(c.recent, recentEvent{atNS: c.clk.Now().UnixNano(), success: success})
	if len(c.recent) > c.recentCap {
		// drop the oldest half rather than one at a time, amortizing the
		// cost of keeping the ring bounded.
		drop := len(c.recent) / 2
		copy(c.recent, c.recent[drop:])
		c.recent = c.recent[:len(c.recent)-drop]
	}
	c.recentMu.Unlock()
}

// RecentFailureRate returns the failure rate over the last windowSeconds of
// wall-clock time, or 0.0 if no sample falls in the window (including
// before the first sample arrives) rather than the all-time rate.
func (c *Collector) RecentFailureRate(windowSeconds float64) float64 {
	if windowSeconds <= 0 {
		return 0
	}
	cutoff := c.clk.Now().Add(-time.Duration(windowSeconds * float64(time.Second))).UnixNano()
	c.recentMu.Lock()
	defer c.recentMu.Unlock()
	var total, failed int
	for _, e := range c.recent {
		if e.atNS >= cutoff {
			total++
			if !e.success {
				failed++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

// Snapshot returns a consistent-enough-for-policy-decisions view; it is not
// required to be strictly point-in-time across all counters.
func (c *Collector) Snapshot() Snapshot {
	now := c.clk.Now().UnixNano()
	elapsed := now - c.startNS
	elapsedS := float64(elapsed) / float64(time.Second)
	if elapsedS <= 0 {
		elapsedS = 1e-9
	}

	total := c.totalExec.Load()
	successN := c.successCnt.Load()
	failureN := c.failureCnt.Load()

	c.successMu.Lock()
	successPct := c.success.snapshot()
	c.successMu.Unlock()
	c.failureMu.Lock()
	failurePct := c.failure.snapshot()
	c.failureMu.Unlock()
	c.queueMu.Lock()
	queuePct := c.queueWait.snapshot()
	c.queueMu.Unlock()

	return Snapshot{
		TotalExecutions:      total,
		SuccessCount:         successN,
		FailureCount:         failureN,
		SuccessPercentiles:   successPct,
		FailurePercentiles:   failurePct,
		ElapsedNS:            elapsed,
		ResponseTPSTotal:     float64(total) / elapsedS,
		ResponseTPSSuccess:   float64(successN) / elapsedS,
		ResponseTPSFailure:   float64(failureN) / elapsedS,
		RequestTPSTotal:      float64(c.issuedCnt.Load()) / elapsedS,
		QueueWaitPercentiles: queuePct,
		CurrentInFlight:      c.inFlight.Load(),
		RecentFailureRate10s: c.RecentFailureRate(10),
	}
}

// Close releases the collector's per-stream state. Safe to call once after
// the engine has drained; subsequent Record calls are not expected.
func (c *Collector) Close() error {
	c.recentMu.Lock()
	c.recent = nil
	c.recentMu.Unlock()
	return nil
}
