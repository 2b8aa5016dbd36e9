package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowBurstThenRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(1, 2)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestSweepDropsIdleKeys(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(5, 5)
	l.now = func() time.Time { return now }

	l.Allow("idle")
	now = now.Add(5 * time.Minute)
	l.Allow("active")
	now = now.Add(6 * time.Minute)

	l.Sweep()
	assert.Equal(t, 1, l.Len())

	l.Reset("active")
	assert.Equal(t, 0, l.Len())
}
