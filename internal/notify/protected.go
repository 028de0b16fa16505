package notify

import (
	"context"
	"fmt"

	"github.com/orderpulse/orderpulse/internal/circuitbreaker"
)

// ProtectedProvider wraps a Provider with a circuit breaker so a failing
// downstream (SNS, the chat gateway) fails fast instead of tying up workers.
// A rejected send is an ordinary retryable error to the caller.
type ProtectedProvider struct {
	inner   Provider
	breaker *circuitbreaker.CircuitBreaker
}

// NewProtectedProvider wraps the provider with the given breaker.
func NewProtectedProvider(inner Provider, breaker *circuitbreaker.CircuitBreaker) *ProtectedProvider {
	return &ProtectedProvider{
		inner:   inner,
		breaker: breaker,
	}
}

func (p *ProtectedProvider) Channel() string {
	return p.inner.Channel()
}

func (p *ProtectedProvider) Send(ctx context.Context, recipient, body string) (Result, error) {
	if !p.breaker.Allow() {
		return Result{}, fmt.Errorf("%s provider: %w", p.inner.Channel(), circuitbreaker.ErrCircuitOpen)
	}

	result, err := p.inner.Send(ctx, recipient, body)
	if err != nil {
		p.breaker.RecordFailure()
		return Result{}, err
	}

	p.breaker.RecordSuccess()
	return result, nil
}

// Stats exposes breaker state for the status endpoint.
func (p *ProtectedProvider) Stats() circuitbreaker.Stats {
	return p.breaker.Stats()
}
