package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/nakshjewels/cart-service/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerSettings configures the catalog circuit breaker.
type BreakerSettings struct {
	Timeout          time.Duration // per lookup
	OpenTimeout      time.Duration // how long the breaker stays open
	FailureThreshold uint32        // consecutive failures before tripping
}

// Breaker bounds every lookup by a timeout and stops calling a failing catalog.
// A missing product is a valid answer and does not count as a failure. Lookups
// the caller cancelled are not counted at all.
type Breaker struct {
	inner   Browser
	timeout time.Duration
	resolve *gobreaker.CircuitBreaker[*domain.Product]
	list    *gobreaker.CircuitBreaker[[]*domain.Product]
}

func NewBreaker(inner Browser, s BreakerSettings, logger *zap.Logger) *Breaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 10 * time.Second
	}

	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     s.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= s.FailureThreshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrProductNotFound)
			},
			IsExcluded: func(err error) bool {
				var ab *abandonedError
				return errors.As(err, &ab)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("catalog breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}
	}

	return &Breaker{
		inner:   inner,
		timeout: s.Timeout,
		resolve: gobreaker.NewCircuitBreaker[*domain.Product](settings("catalog-resolve")),
		list:    gobreaker.NewCircuitBreaker[[]*domain.Product](settings("catalog-list")),
	}
}

func (b *Breaker) Resolve(ctx context.Context, productID string) (*domain.Product, error) {
	lookupCtx, cancel := b.withTimeout(ctx)
	defer cancel()

	p, err := b.resolve.Execute(func() (*domain.Product, error) {
		p, err := b.inner.Resolve(lookupCtx, productID)
		return p, markAbandoned(ctx, err)
	})
	return p, unwrapAbandoned(err)
}

func (b *Breaker) List(ctx context.Context, filter Filter) ([]*domain.Product, error) {
	lookupCtx, cancel := b.withTimeout(ctx)
	defer cancel()

	products, err := b.list.Execute(func() ([]*domain.Product, error) {
		products, err := b.inner.List(lookupCtx, filter)
		return products, markAbandoned(ctx, err)
	})
	return products, unwrapAbandoned(err)
}

// State reports the resolve breaker state, used by health checks.
func (b *Breaker) State() gobreaker.State {
	return b.resolve.State()
}

func (b *Breaker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

// abandonedError marks a lookup that failed after its caller cancelled it.
// Deadlines still count: a catalog too slow for the caller is failing.
type abandonedError struct {
	err error
}

func (e *abandonedError) Error() string { return e.err.Error() }

func (e *abandonedError) Unwrap() error { return e.err }

func markAbandoned(caller context.Context, err error) error {
	if err != nil && errors.Is(caller.Err(), context.Canceled) {
		return &abandonedError{err: err}
	}
	return err
}

func unwrapAbandoned(err error) error {
	if ab, ok := err.(*abandonedError); ok {
		return ab.err
	}
	return err
}
