package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/99souls/vajrapulse/backpressure"
	"github.com/99souls/vajrapulse/clock"
	"github.com/99souls/vajrapulse/metrics"
)

// ErrInvalidConfig wraps a bad construction-time Config, per spec.md §7's
// ValidationError category.
var ErrInvalidConfig = errors.New("engine: invalid configuration")

// ErrNotStarted reports that an operation needs Run to have been called
// first. No Engine method in this package returns it.
var ErrNotStarted = errors.New("engine: not started")

// ErrAlreadyRunning is returned by Run when called on an engine already
// running.
var ErrAlreadyRunning = errors.New("engine: already running")

// Config configures engine construction. MaxInFlight bounds the
// cooperative pool's semaphore; Workers sizes the bounded pool; both are
// ignored by the policy they don't apply to.
type Config struct {
	Clock           clock.Clock
	MetricsProvider metrics.Provider
	Backpressure    backpressure.Provider
	MaxInFlight     int
	Workers         int
	RampInterval    time.Duration
	DrainTimeout    time.Duration
	ForceTimeout    time.Duration
	MinPollInterval time.Duration
	Quantiles       []float64
}

// DefaultConfig returns sane defaults matching spec.md §5's named
// defaults for drain_timeout (5s) and force_timeout (10s).
func DefaultConfig() Config {
	return Config{
		Clock:           clock.Real(),
		MetricsProvider: metrics.NewNoopProvider(),
		Backpressure:    backpressure.Static(0),
		MaxInFlight:     1000,
		Workers:         0,
		DrainTimeout:    5 * time.Second,
		ForceTimeout:    10 * time.Second,
	}
}

// Validate checks the constructor-time invariants of this Config.
func (c Config) Validate() error {
	switch {
	case c.Clock == nil:
		return fmt.Errorf("%w: clock must not be nil", ErrInvalidConfig)
	case c.MetricsProvider == nil:
		return fmt.Errorf("%w: metrics provider must not be nil", ErrInvalidConfig)
	case c.DrainTimeout <= 0:
		return fmt.Errorf("%w: drain_timeout must be > 0", ErrInvalidConfig)
	case c.ForceTimeout <= 0:
		return fmt.Errorf("%w: force_timeout must be > 0", ErrInvalidConfig)
	case c.MaxInFlight < 0:
		return fmt.Errorf("%w: max_in_flight must be >= 0", ErrInvalidConfig)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must be >= 0", ErrInvalidConfig)
	}
	return nil
}
