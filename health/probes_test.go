package health

import (
	"context"
	"testing"

	"github.com/99souls/vajrapulse/adaptive"
	"github.com/99souls/vajrapulse/backpressure"
	"github.com/99souls/vajrapulse/metrics"
)

func TestInFlightProbeThresholds(t *testing.T) {
	c := metrics.NewCollector()
	for i := 0; i < 9; i++ {
		c.IncrInFlight()
	}
	probe := InFlightProbe("pool", c, 10, 0.5, 0.9)
	result := probe.Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy at 90%% ratio, got %s", result.Status)
	}
}

func TestInFlightProbeHealthyBelowThreshold(t *testing.T) {
	c := metrics.NewCollector()
	c.IncrInFlight()
	probe := InFlightProbe("pool", c, 100, 0.5, 0.9)
	result := probe.Check(context.Background())
	if result.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", result.Status)
	}
}

func TestAdaptivePhaseProbeDegradedInRampDown(t *testing.T) {
	cfg := adaptive.DefaultConfig()
	p, err := adaptive.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.CheckAndAdjust(adaptive.Inputs{Snapshot: metrics.Snapshot{RecentFailureRate10s: 0.9}, NowMS: 1000})
	if err != nil {
		t.Fatal(err)
	}

	probe := AdaptivePhaseProbe("adaptive", p, 0)
	result := probe.Check(context.Background())
	if result.Status != StatusDegraded {
		t.Fatalf("expected degraded in ramp_down, got %s", result.Status)
	}
}

func TestAdaptivePhaseProbeHealthyInRampUp(t *testing.T) {
	cfg := adaptive.DefaultConfig()
	p, err := adaptive.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	probe := AdaptivePhaseProbe("adaptive", p, 0)
	result := probe.Check(context.Background())
	if result.Status != StatusHealthy {
		t.Fatalf("expected healthy in ramp_up, got %s", result.Status)
	}
}

func TestBackpressureProbeThresholds(t *testing.T) {
	provider := backpressure.Static(0.95)
	probe := BackpressureProbe("bp", provider, 0.5, 0.9)
	result := probe.Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", result.Status)
	}
}
