package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"event-registration/internal/status"
	"event-registration/monitoring"
	"event-registration/utils"
)

// guardedGateway sends outbound calls through a circuit breaker. Only
// transport failures count against it; a declined card must not open it.
type guardedGateway struct {
	Gateway
	breaker *utils.CircuitBreaker
}

func newGuardedGateway(g Gateway, opts ...utils.BreakerOption) *guardedGateway {
	opts = append([]utils.BreakerOption{
		utils.WithFailurePolicy(func(err error) bool {
			return errors.Is(err, status.ErrGatewayUnreachable)
		}),
	}, opts...)

	return &guardedGateway{
		Gateway: g,
		breaker: utils.NewCircuitBreaker(string(g.Provider()), opts...),
	}
}

func (g *guardedGateway) Initialize(ctx context.Context, req *InitRequest) (*Checkout, error) {
	start := time.Now()
	res, err := g.breaker.Execute(ctx, func() (any, error) {
		return g.Gateway.Initialize(ctx, req)
	})
	monitoring.TrackGatewayCall(string(g.Provider()), "initialize", start, err)
	if err != nil {
		return nil, g.breakerError(err)
	}
	return res.(*Checkout), nil
}

func (g *guardedGateway) Verify(ctx context.Context, reference string) (*Verification, error) {
	start := time.Now()
	res, err := g.breaker.Execute(ctx, func() (any, error) {
		return g.Gateway.Verify(ctx, reference)
	})
	monitoring.TrackGatewayCall(string(g.Provider()), "verify", start, err)
	if err != nil {
		return nil, g.breakerError(err)
	}
	return res.(*Verification), nil
}

func (g *guardedGateway) breakerError(err error) error {
	switch {
	case errors.Is(err, utils.ErrOpenState), errors.Is(err, utils.ErrTooManyRequests):
		return fmt.Errorf("%w: %s: %w", status.ErrGatewayUnreachable, g.Provider(), err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if !errors.Is(err, status.ErrGatewayUnreachable) {
			return fmt.Errorf("%w: %s: %w", status.ErrGatewayUnreachable, g.Provider(), err)
		}
	}
	return err
}
