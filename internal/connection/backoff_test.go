package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffSequence(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial:    100 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 2.0,
		Jitter:     0,
	})

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}

	for i, want := range expected {
		assert.Equal(t, want, b.Next(), "attempt %d", i)
	}
	assert.Equal(t, len(expected), b.Attempts())
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2.0,
		Jitter:     0.25,
	})

	got := b.Next()
	require.GreaterOrEqual(t, got, time.Second)
	require.LessOrEqual(t, got, 1250*time.Millisecond)
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial:    100 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 2.0,
		Jitter:     0,
	})

	for i := 0; i < 4; i++ {
		b.Next()
	}
	b.Reset()

	assert.Equal(t, 0, b.Attempts())
	assert.Equal(t, 100*time.Millisecond, b.Next())
}

func TestBackoffDefaults(t *testing.T) {
	b := NewBackoff()
	first := b.Next()
	require.GreaterOrEqual(t, first, InitialBackoff)
}
