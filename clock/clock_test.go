package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/99souls/vajrapulse/clock"
)

func TestRealClockAdvances(t *testing.T) {
	c := clock.Real()
	start := c.Now()
	c.Sleep(5 * time.Millisecond)
	assert.True(t, c.Now().After(start))
}

func TestMockSleepUntilReleasedByAdvance(t *testing.T) {
	start := time.Unix(0, 0)
	m := clock.NewMock(start)

	released := make(chan time.Time, 1)
	go func() {
		m.Sleep(10 * time.Second)
		released <- m.Now()
	}()

	// give the goroutine a chance to register as a waiter
	time.Sleep(20 * time.Millisecond)
	m.Advance(10 * time.Second)

	select {
	case got := <-released:
		assert.Equal(t, start.Add(10*time.Second), got)
	case <-time.After(time.Second):
		t.Fatal("sleeper was not released by Advance")
	}
}

func TestMockSetNeverGoesBackwards(t *testing.T) {
	start := time.Unix(100, 0)
	m := clock.NewMock(start)
	m.Set(time.Unix(50, 0))
	require.Equal(t, start, m.Now())
}

func TestMockSleepUntilPastDeadlineReturnsImmediately(t *testing.T) {
	m := clock.NewMock(time.Unix(100, 0))
	done := make(chan struct{})
	go func() {
		m.SleepUntil(time.Unix(50, 0))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SleepUntil with a past deadline should not block")
	}
}
