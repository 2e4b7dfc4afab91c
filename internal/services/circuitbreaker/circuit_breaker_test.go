package circuitbreaker

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(t *testing.T, config Config) (*CircuitBreaker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewWithConfig(client, "test_service", config), mr
}

func TestCircuitBreakerStartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		ResetAfter:       time.Minute,
	})

	assert.Equal(t, Closed, cb.GetState())
	assert.True(t, cb.CanExecute())
}

func TestCircuitBreakerOpensAfterFailureThreshold(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		ResetAfter:       time.Minute,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, Closed, cb.GetState())
	assert.True(t, cb.CanExecute())

	cb.RecordFailure()
	assert.Equal(t, Open, cb.GetState())
	assert.False(t, cb.CanExecute())
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		ResetAfter:       time.Minute,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	// The success in between reset the streak: still under the threshold.
	assert.Equal(t, Closed, cb.GetState())
}

func TestCircuitBreakerHalfOpenAfterTimeout(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
		ResetAfter:       time.Minute,
	})

	cb.RecordFailure()
	require.Equal(t, Open, cb.GetState())

	// The probe is allowed once the timeout elapses.
	assert.Eventually(t, cb.CanExecute, time.Second, 10*time.Millisecond)
	assert.Equal(t, HalfOpen, cb.GetState())
}

func TestCircuitBreakerClosesAfterSuccessThreshold(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
		ResetAfter:       time.Minute,
	})

	cb.RecordFailure()
	require.Eventually(t, cb.CanExecute, time.Second, 10*time.Millisecond)
	require.Equal(t, HalfOpen, cb.GetState())

	cb.RecordSuccess()
	assert.Equal(t, HalfOpen, cb.GetState())

	cb.RecordSuccess()
	assert.Equal(t, Closed, cb.GetState())
	assert.True(t, cb.CanExecute())
}

func TestCircuitBreakerFailureInHalfOpenReopens(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
		ResetAfter:       time.Minute,
	})

	cb.RecordFailure()
	require.Eventually(t, cb.CanExecute, time.Second, 10*time.Millisecond)
	require.Equal(t, HalfOpen, cb.GetState())

	cb.RecordFailure()
	assert.Equal(t, Open, cb.GetState())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		ResetAfter:       time.Minute,
	})

	cb.RecordFailure()
	require.Equal(t, Open, cb.GetState())

	cb.Reset()
	assert.Equal(t, Closed, cb.GetState())
	assert.True(t, cb.CanExecute())
}

func TestCircuitBreakerAllowsExecutionWhenRedisDown(t *testing.T) {
	cb, mr := newTestBreaker(t, Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		ResetAfter:       time.Minute,
	})

	mr.Close()

	// Fail open: a broken breaker never blocks the caller.
	assert.True(t, cb.CanExecute())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Closed", Closed.String())
	assert.Equal(t, "Open", Open.String())
	assert.Equal(t, "HalfOpen", HalfOpen.String())
}
