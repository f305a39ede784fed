package metrics_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/99souls/vajrapulse/metrics"
)

func TestNoopProviderDiscardsValues(t *testing.T) {
	p := metrics.NewNoopProvider()
	c := p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Name: "x"}})
	c.Inc(1)
	require.NoError(t, p.Health(context.Background()))
}

func TestPrometheusProviderRegistersAndServes(t *testing.T) {
	p := metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{})
	counter := p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "vajrapulse", Subsystem: "engine", Name: "requests_total", Labels: []string{"outcome"},
	}})
	counter.Inc(1, "success")
	counter.Inc(2, "success")

	gauge := p.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "vajrapulse", Name: "in_flight",
	}})
	gauge.Set(5)

	hist := p.NewHistogram(metrics.HistogramOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "vajrapulse", Name: "latency_seconds",
	}})
	hist.Observe(0.01)

	assert.NotNil(t, p.MetricsHandler())
	assert.NoError(t, p.Health(context.Background()))
}

func TestPrometheusProviderCardinalityWarns(t *testing.T) {
	p := metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{CardinalityLimit: 2})
	counter := p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
		Name: "labeled_total", Labels: []string{"k"},
	}})
	counter.Inc(1, "a")
	counter.Inc(1, "b")
	counter.Inc(1, "c") // exceeds limit of 2 distinct label combos; must not panic
	assert.NoError(t, p.Health(context.Background()))
}

func TestOTelProviderInstrumentLifecycle(t *testing.T) {
	p := metrics.NewOTelProvider(metrics.OTelProviderOptions{})
	counter := p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: "vajrapulse", Name: "requests_total"}})
	counter.Inc(3)

	gauge := p.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{Namespace: "vajrapulse", Name: "in_flight"}})
	gauge.Set(2)
	gauge.Add(1)
	gauge.Set(1)

	timerFn := p.NewTimer(metrics.HistogramOpts{CommonOpts: metrics.CommonOpts{Namespace: "vajrapulse", Name: "latency"}})
	timer := timerFn()
	timer.ObserveDuration()

	assert.NoError(t, p.Health(context.Background()))
}
