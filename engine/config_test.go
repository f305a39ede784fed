package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/99souls/vajrapulse/engine"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := engine.DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*engine.Config)
	}{
		{"nil clock", func(c *engine.Config) { c.Clock = nil }},
		{"nil metrics provider", func(c *engine.Config) { c.MetricsProvider = nil }},
		{"zero drain timeout", func(c *engine.Config) { c.DrainTimeout = 0 }},
		{"zero force timeout", func(c *engine.Config) { c.ForceTimeout = 0 }},
		{"negative max in flight", func(c *engine.Config) { c.MaxInFlight = -1 }},
		{"negative workers", func(c *engine.Config) { c.Workers = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := engine.DefaultConfig()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), engine.ErrInvalidConfig)
		})
	}
}
