package outbound

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := newCircuitBreaker(3, 30*time.Second)
	require.True(t, cb.allow())

	cb.recordFailure()
	cb.recordFailure()
	assert.True(t, cb.allow(), "still closed before threshold")

	cb.recordFailure()
	assert.False(t, cb.allow(), "should trip open at threshold")
}

func TestCircuitBreaker_HalfOpenSingleProbe(t *testing.T) {
	cb := newCircuitBreaker(1, 10*time.Millisecond)
	cb.recordFailure()
	require.False(t, cb.allow())

	time.Sleep(15 * time.Millisecond)
	require.True(t, cb.allow(), "cooldown elapsed, probe should be allowed")
	assert.False(t, cb.allow(), "a second concurrent caller must not get a probe slot")
}

func TestCircuitBreaker_SuccessClosesFromHalfOpen(t *testing.T) {
	cb := newCircuitBreaker(1, 10*time.Millisecond)
	cb.recordFailure()
	time.Sleep(15 * time.Millisecond)
	require.True(t, cb.allow())

	cb.recordSuccess()
	assert.True(t, cb.allow())
	assert.Equal(t, stateClosed, cb.state)
}

func TestCircuitBreaker_FailureDuringProbeReopens(t *testing.T) {
	cb := newCircuitBreaker(1, 10*time.Millisecond)
	cb.recordFailure()
	time.Sleep(15 * time.Millisecond)
	require.True(t, cb.allow())

	cb.recordFailure()
	assert.False(t, cb.allow())
	assert.Equal(t, stateOpen, cb.state)
}
