package engine_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/99souls/vajrapulse/adaptive"
	"github.com/99souls/vajrapulse/engine"
	"github.com/99souls/vajrapulse/pattern"
	"github.com/99souls/vajrapulse/task"
)

// realTimeTest skips, in short mode, the tests that run the engine on the
// real clock. They use a real clock so Run's dispatch loop makes forward
// progress without a separate goroutine manually advancing a mock clock in
// lockstep with the dispatcher's own timing decisions.
func realTimeTest(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping real-time engine test in short mode")
	}
}

func TestRunCompletesForTerminatingPattern(t *testing.T) {
	realTimeTest(t)

	var executed atomic.Int64
	tk := task.Func{Fn: func(ctx context.Context, iteration uint64) task.Outcome {
		executed.Add(1)
		return task.OutcomeSuccess(nil)
	}}
	p, err := pattern.NewConstant(200, 100) // 100ms duration, 200 tps -> ~20 invocations
	require.NoError(t, err)

	cfg := engine.DefaultConfig()
	e, err := engine.New(tk, p, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = e.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	assert.Greater(t, executed.Load(), int64(0))
	snap := e.Snapshot()
	assert.Equal(t, uint64(executed.Load()), snap.Metrics.TotalExecutions)
}

func TestStopHaltsDispatchBeforeNaturalCompletion(t *testing.T) {
	realTimeTest(t)

	tk := task.SleepTask{Duration: time.Millisecond}
	p, err := pattern.NewConstant(1000, 60_000) // never naturally completes within test window
	require.NoError(t, err)

	cfg := engine.DefaultConfig()
	e, err := engine.New(tk, p, cfg)
	require.NoError(t, err)

	ctx := context.Background()
	runDone := make(chan error, 1)
	go func() { runDone <- e.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	e.Stop()

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	require.NoError(t, e.Close())
}

func TestRunWithAdaptivePatternInvokesAdjuster(t *testing.T) {
	realTimeTest(t)

	tk := task.Func{Fn: func(ctx context.Context, iteration uint64) task.Outcome {
		return task.OutcomeSuccess(nil)
	}}
	cfg := adaptive.DefaultConfig()
	cfg.RampInterval = 20 * time.Millisecond
	cfg.InitialTPS = 200
	ap, err := adaptive.New(cfg)
	require.NoError(t, err)

	ecfg := engine.DefaultConfig()
	e, err := engine.New(tk, ap, ecfg)
	require.NoError(t, err)

	ctx := context.Background()
	runDone := make(chan error, 1)
	go func() { runDone <- e.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	e.Stop()

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	require.NoError(t, e.Close())

	phase, ok := e.CurrentPhase()
	require.True(t, ok)
	assert.NotEmpty(t, phase.String())
}

func TestRunRejectsSecondConcurrentCall(t *testing.T) {
	realTimeTest(t)

	tk := task.SleepTask{Duration: time.Millisecond}
	p, err := pattern.NewConstant(50, 60_000)
	require.NoError(t, err)

	e, err := engine.New(tk, p, engine.DefaultConfig())
	require.NoError(t, err)

	ctx := context.Background()
	go func() { _ = e.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	err = e.Run(ctx)
	assert.ErrorIs(t, err, engine.ErrAlreadyRunning)

	e.Stop()
	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Run never completed")
	}
	require.NoError(t, e.Close())
}

func TestNewRejectsNilTaskOrPattern(t *testing.T) {
	p, err := pattern.NewConstant(1, 1)
	require.NoError(t, err)

	_, err = engine.New(nil, p, engine.DefaultConfig())
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)

	_, err = engine.New(task.SleepTask{}, nil, engine.DefaultConfig())
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

func TestBoundedPolicyTaskRunsToCompletion(t *testing.T) {
	realTimeTest(t)

	var executed atomic.Int64
	tk := boundedTask{fn: func() { executed.Add(1) }}
	p, err := pattern.NewConstant(200, 100)
	require.NoError(t, err)

	cfg := engine.DefaultConfig()
	cfg.Workers = 4
	e, err := engine.New(tk, p, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	require.NoError(t, e.Close())

	assert.Greater(t, executed.Load(), int64(0))
}

func TestWarmCoolWindowExcludesSamplesFromMetrics(t *testing.T) {
	realTimeTest(t)

	var executed atomic.Int64
	tk := task.Func{Fn: func(ctx context.Context, iteration uint64) task.Outcome {
		executed.Add(1)
		return task.OutcomeSuccess(nil)
	}}
	inner, err := pattern.NewConstant(200, 200) // 200ms duration, 200 tps
	require.NoError(t, err)
	wrapped, err := pattern.NewWarmCoolWrapper(inner, 100, 0, 200) // warm for the first half
	require.NoError(t, err)

	cfg := engine.DefaultConfig()
	e, err := engine.New(tk, wrapped, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	require.NoError(t, e.Close())

	snap := e.Snapshot()
	// Every invocation issued during the run increments executed, but only
	// those issued on or after the 100ms warm-up boundary should have been
	// recorded into the metrics collector.
	assert.Greater(t, executed.Load(), int64(0))
	assert.Greater(t, int64(snap.Metrics.TotalExecutions), int64(0))
	assert.Less(t, snap.Metrics.TotalExecutions, uint64(executed.Load()))
}

type boundedTask struct {
	fn func()
}

func (boundedTask) Init(context.Context) error     { return nil }
func (boundedTask) Teardown(context.Context) error { return nil }
func (b boundedTask) ExecutionPolicy() task.Policy { return task.Bounded }
func (b boundedTask) Execute(ctx context.Context, _ uint64) task.Outcome {
	b.fn()
	return task.OutcomeSuccess(nil)
}
