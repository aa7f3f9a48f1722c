package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{name: "go duration", value: "1500ms", expected: 1500 * time.Millisecond},
		{name: "bare milliseconds", value: "3000", expected: 3 * time.Second},
		{name: "garbage falls back", value: "soon", expected: 42 * time.Second},
		{name: "empty falls back", value: "", expected: 42 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			assert.Equal(t, tt.expected, getEnvDuration("TEST_DURATION", 42*time.Second))
		})
	}
}

func TestGetEnvNumbers(t *testing.T) {
	t.Setenv("TEST_INT", "17")
	t.Setenv("TEST_BAD_INT", "x")
	t.Setenv("TEST_FLOAT", "0.5")

	assert.Equal(t, 17, getEnvInt("TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("TEST_BAD_INT", 1))
	assert.Equal(t, 9, getEnvInt("TEST_MISSING_INT", 9))
	assert.InDelta(t, 0.5, getEnvFloat("TEST_FLOAT", 2), 1e-9)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("GENERATION_TICK_INTERVAL", "")

	cfg := Load()

	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "user-models", cfg.R2.BucketName)
	assert.Equal(t, 3*time.Second, cfg.Generation.TickInterval)
	assert.Equal(t, 120*time.Second, cfg.Generation.EstimateWindow)
	assert.Equal(t, 90, cfg.Generation.CapPercent)
	assert.Equal(t, time.Duration(0), cfg.Generation.Timeout)
}
