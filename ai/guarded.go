package ai

import (
	"context"
	"errors"

	"discussion-facilitator/backend/pkg/resilience"
)

// GuardedFacilitator stops calling a failing completion service for a while
type GuardedFacilitator struct {
	inner   Facilitator
	breaker *resilience.CircuitBreaker
}

func NewGuardedFacilitator(inner Facilitator, breaker *resilience.CircuitBreaker) *GuardedFacilitator {
	return &GuardedFacilitator{inner: inner, breaker: breaker}
}

func (g *GuardedFacilitator) Invoke(ctx context.Context, req Request) (Reply, error) {
	var reply Reply
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		reply, err = g.inner.Invoke(ctx, req)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return Reply{}, &RemoteError{Op: "invoke", Err: err}
	}
	if err != nil {
		return Reply{}, NewRemoteError("invoke", err)
	}
	return reply, nil
}

// State reports the breaker state for health checks
func (g *GuardedFacilitator) State() string {
	return string(g.breaker.GetState())
}
