package metrics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/99souls/vajrapulse/clock"
	"github.com/99souls/vajrapulse/metrics"
	"github.com/99souls/vajrapulse/task"
)

func TestCollectorTotalsInvariant(t *testing.T) {
	c := metrics.NewCollector()
	for i := 0; i < 50; i++ {
		if i%5 == 0 {
			c.Record(task.OutcomeFailure(nil), int64(10*time.Millisecond))
		} else {
			c.Record(task.OutcomeSuccess(nil), int64(10*time.Millisecond))
		}
	}
	snap := c.Snapshot()
	assert.Equal(t, snap.SuccessCount+snap.FailureCount, snap.TotalExecutions)
	assert.Equal(t, uint64(50), snap.TotalExecutions)
	assert.Equal(t, uint64(10), snap.FailureCount)
}

func TestCollectorPercentilesNonNegative(t *testing.T) {
	c := metrics.NewCollector()
	for i := 1; i <= 200; i++ {
		c.Record(task.OutcomeSuccess(nil), int64(i)*int64(time.Millisecond))
	}
	snap := c.Snapshot()
	for q, v := range snap.SuccessPercentiles {
		assert.GreaterOrEqualf(t, v, 0.0, "quantile %v was negative", q)
	}
	p50 := snap.SuccessPercentiles[0.50]
	require.InDelta(t, 100*float64(time.Millisecond), p50, 40*float64(time.Millisecond))
}

func TestRecentFailureRateZeroBeforeAnySample(t *testing.T) {
	c := metrics.NewCollector()
	assert.Equal(t, 0.0, c.RecentFailureRate(10))
}

func TestRecentFailureRateWindowed(t *testing.T) {
	mock := clock.NewMock(time.Unix(0, 0))
	c := metrics.NewCollector(metrics.WithClock(mock))

	c.Record(task.OutcomeFailure(nil), 1)
	c.Record(task.OutcomeFailure(nil), 1)
	mock.Advance(20 * time.Second)
	c.Record(task.OutcomeSuccess(nil), 1)
	c.Record(task.OutcomeSuccess(nil), 1)

	// only the two recent successes fall within the last 5s window
	assert.Equal(t, 0.0, c.RecentFailureRate(5))
	// the 25s window includes the two earlier failures too
	assert.InDelta(t, 0.5, c.RecentFailureRate(25), 1e-9)
}

func TestInFlightCounter(t *testing.T) {
	c := metrics.NewCollector()
	c.IncrInFlight()
	c.IncrInFlight()
	c.DecrInFlight()
	assert.Equal(t, int64(1), c.CurrentInFlight())
}
