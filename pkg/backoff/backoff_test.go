package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay_ExponentialGrowth(t *testing.T) {
	cfg := Config{
		InitialDelay: 5 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: DefaultJitterFactor,
	}

	tests := []struct {
		attempt int
		mean    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, 80 * time.Second},
	}

	for _, tt := range tests {
		d := cfg.Delay(tt.attempt)
		low := time.Duration(float64(tt.mean) * 0.8)
		high := time.Duration(float64(tt.mean) * 1.2)
		assert.GreaterOrEqual(t, d, low, "attempt %d", tt.attempt)
		assert.LessOrEqual(t, d, high, "attempt %d", tt.attempt)
	}
}

func TestDelay_NeverExceedsMax(t *testing.T) {
	cfg := Config{
		InitialDelay: 5 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0,
	}

	for attempt := 1; attempt <= 20; attempt++ {
		assert.LessOrEqual(t, cfg.Delay(attempt), 30*time.Second)
	}
}

func TestDelay_ClampsInputs(t *testing.T) {
	cfg := Config{
		InitialDelay: 5 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: 0,
	}

	// Attempt below 1 behaves like attempt 1.
	assert.Equal(t, cfg.Delay(1), cfg.Delay(0))
	assert.Equal(t, cfg.Delay(1), cfg.Delay(-3))

	// Negative initial delay behaves like zero.
	neg := Config{InitialDelay: -time.Second, Multiplier: 2.0, JitterFactor: 0}
	assert.Equal(t, time.Duration(0), neg.Delay(3))

	// Multiplier below 1 does not shrink the delay.
	flat := Config{InitialDelay: 5 * time.Second, Multiplier: 0.5, JitterFactor: 0}
	assert.Equal(t, 5*time.Second, flat.Delay(4))
}

func TestDelay_JitterStaysInsideBand(t *testing.T) {
	cfg := Config{
		InitialDelay: 10 * time.Second,
		Multiplier:   1.0,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: 0.2,
	}

	for i := 0; i < 200; i++ {
		d := cfg.Delay(1)
		assert.GreaterOrEqual(t, d, 8*time.Second)
		assert.LessOrEqual(t, d, 12*time.Second)
	}
}

func TestDelay_NeverNegative(t *testing.T) {
	cfg := Config{
		InitialDelay: time.Millisecond,
		Multiplier:   1.0,
		JitterFactor: 5, // absurd jitter still must not go below zero
	}
	for i := 0; i < 100; i++ {
		assert.GreaterOrEqual(t, cfg.Delay(1), time.Duration(0))
	}
}

func TestCompute_UsesDefaults(t *testing.T) {
	d := Compute(5*time.Second, 2.0, 10)
	// 5s * 2^9 = 2560s, so the cap applies; jitter may push up to +20%.
	assert.LessOrEqual(t, d, time.Duration(float64(DefaultMaxDelay)*1.2))
	assert.GreaterOrEqual(t, d, time.Duration(float64(DefaultMaxDelay)*0.8))
}
