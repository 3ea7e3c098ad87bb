package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"discussion-facilitator/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRemote = errors.New("remote down")

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestBreaker(failures, successes uint) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: failures,
		SuccessThreshold: successes,
		RetryTimeout:     time.Minute,
	}, logger.Nop())
	cb.now = clock.now
	return cb, clock
}

func fail(context.Context) error    { return errRemote }
func succeed(context.Context) error { return nil }

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errRemote)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	m := cb.GetMetrics()
	assert.Equal(t, uint64(3), m.TotalFailures)
	assert.Equal(t, uint64(1), m.Rejected)
	assert.Equal(t, uint64(1), m.OpenCircuitCount)
	assert.Equal(t, StateOpen, m.State)
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(2, 1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))
	_ = cb.Execute(ctx, fail)

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(1, 2)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.GetState())

	clock.advance(30 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)

	clock.advance(31 * time.Second)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.GetState())

	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(1, 1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.advance(time.Minute)

	assert.ErrorIs(t, cb.Execute(ctx, fail), errRemote)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.Equal(t, uint64(2), cb.GetMetrics().OpenCircuitCount)
}

func TestCircuitBreakerHalfOpenLimitsProbes(t *testing.T) {
	cb, clock := newTestBreaker(1, 1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.advance(time.Minute)

	inner := make(chan error, 1)
	err := cb.Execute(ctx, func(ctx context.Context) error {
		// a second caller while the probe is still in flight
		inner <- cb.Execute(ctx, succeed)
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, <-inner, ErrCircuitOpen)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb, _ := newTestBreaker(1, 1)
	ctx := context.Background()

	err := cb.Execute(ctx, func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Zero(t, cb.GetMetrics().TotalFailures)
}

func TestCircuitBreakerCustomFailurePredicate(t *testing.T) {
	benign := errors.New("bad request")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "custom",
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, benign) },
	}, logger.Nop())

	_ = cb.Execute(context.Background(), func(context.Context) error { return benign })
	assert.Equal(t, StateClosed, cb.GetState())

	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, cb.GetState())
}
