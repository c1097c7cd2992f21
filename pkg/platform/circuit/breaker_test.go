package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_InitialStateAllows(t *testing.T) {
	b := New(3, time.Minute)
	assert.True(t, b.Allow())
	assert.False(t, b.IsOpen())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.True(t, b.IsOpen())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())

	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b := New(1, 10*time.Millisecond)

	b.RecordFailure()
	assert.False(t, b.Allow())

	assert.Eventually(t, b.Allow, time.Second, 5*time.Millisecond, "probe allowed after cooldown")
	assert.False(t, b.IsOpen())
}

func TestBreaker_Reset(t *testing.T) {
	b := New(1, time.Minute)

	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.True(t, b.Allow())
}

func TestBreaker_DefaultsForNonPositiveArgs(t *testing.T) {
	b := New(0, 0)
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	assert.False(t, b.IsOpen(), "default threshold is five")
	b.RecordFailure()
	assert.True(t, b.IsOpen())
}
