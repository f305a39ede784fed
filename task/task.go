// Package task defines the unit of work the execution engine drives: a
// Task's lifecycle (init, many concurrent executions, teardown) and the
// Outcome each execution reports back to the metrics collector.
package task

import (
	"context"
	"time"
)

// Policy selects how the engine sizes the worker pool that runs a Task's
// invocations. It is a construction-time property of the task, not the
// engine — see engine.pool for the two implementations.
type Policy int

const (
	// Cooperative runs invocations on goroutines bounded only by a
	// semaphore sized to MaxInFlight — suited to I/O-bound tasks. This is
	// the default.
	Cooperative Policy = iota
	// Bounded runs invocations on a fixed-size worker-goroutine pool sized
	// to the configured worker count — suited to CPU-bound tasks.
	Bounded
)

// Kind tags an Outcome as Success or Failure.
type Kind int

const (
	Success Kind = iota
	Failure
)

// Outcome is the tagged union a Task execution reports.
type Outcome struct {
	Kind    Kind
	Payload []byte
	Err     error
}

// OutcomeSuccess builds a Success outcome, optionally carrying a payload.
func OutcomeSuccess(payload []byte) Outcome {
	return Outcome{Kind: Success, Payload: payload}
}

// OutcomeFailure builds a Failure outcome wrapping the execution error.
func OutcomeFailure(err error) Outcome {
	return Outcome{Kind: Failure, Err: err}
}

// Record is the engine-created, collector-consumed record of one execution.
// Not retained individually past the call to the collector.
type Record struct {
	Iteration uint64
	StartNS   int64
	EndNS     int64
	Outcome   Outcome
}

// LatencyNS returns the derived execution latency in nanoseconds.
func (r Record) LatencyNS() int64 { return r.EndNS - r.StartNS }

// Task is the workload contract. Init runs once on the caller's goroutine
// before any invocation; Execute runs many times, concurrently, with
// iteration numbers assigned gap-free starting at 0 by the engine; Teardown
// runs once after all invocations have settled.
//
// Implementations need not be internally synchronized when the engine runs
// them under Bounded policy with a single worker, but under the default
// Cooperative policy Execute MUST be safe for concurrent use.
type Task interface {
	Init(ctx context.Context) error
	Execute(ctx context.Context, iteration uint64) Outcome
	Teardown(ctx context.Context) error
	// ExecutionPolicy reports the worker-pool sizing policy this task
	// requires. Most tasks should embed DefaultPolicy to get Cooperative.
	ExecutionPolicy() Policy
}

// DefaultPolicy can be embedded by Task implementations that don't need to
// choose a non-default worker-pool policy.
type DefaultPolicy struct{}

func (DefaultPolicy) ExecutionPolicy() Policy { return Cooperative }

// Func adapts a plain function into a Task with no-op Init/Teardown and the
// default Cooperative policy, for simple or test tasks.
type Func struct {
	DefaultPolicy
	Fn func(ctx context.Context, iteration uint64) Outcome
}

func (f Func) Init(context.Context) error     { return nil }
func (f Func) Teardown(context.Context) error { return nil }
func (f Func) Execute(ctx context.Context, iteration uint64) Outcome {
	return f.Fn(ctx, iteration)
}

// SleepTask is a demo/smoke-test task: it sleeps a fixed duration and always
// succeeds. Used by cmd/vajrapulse's built-in task registry and by tests
// that exercise rate-controller and engine behavior without a real backend.
type SleepTask struct {
	DefaultPolicy
	Duration time.Duration
}

func (SleepTask) Init(context.Context) error     { return nil }
func (SleepTask) Teardown(context.Context) error { return nil }
func (s SleepTask) Execute(ctx context.Context, _ uint64) Outcome {
	timer := time.NewTimer(s.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	return OutcomeSuccess(nil)
}
