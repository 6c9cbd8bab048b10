package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/fathima-sithara/mailbox-service/internal/domain"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerGateway short-circuits the provider after consecutive failures.
type BreakerGateway struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerGateway(next Gateway, maxFailures int, timeout time.Duration, log *zap.SugaredLogger) *BreakerGateway {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	st := gobreaker.Settings{
		Name:        "push",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Infow("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerGateway{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (g *BreakerGateway) SendMulticast(ctx context.Context, tokens []string, n Notification) ([]bool, error) {
	res, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.SendMulticast(ctx, tokens, n)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}
	return res.([]bool), nil
}

func (g *BreakerGateway) State() gobreaker.State {
	return g.cb.State()
}
