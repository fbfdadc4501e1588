package store

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/rowles/inverted-index/pkg/errors"
	"github.com/rowles/inverted-index/pkg/resilience"
)

// Breaker fails fast with errors.ErrStoreUnavailable while its circuit is
// open. Missing keys and cancelled contexts are not held against the backend.
type Breaker struct {
	inner Store
	cb    *resilience.CircuitBreaker
}

// WithBreaker guards s with a circuit breaker built from cfg. cfg.IsFailure is
// replaced.
func WithBreaker(s Store, name string, cfg resilience.CircuitBreakerConfig) *Breaker {
	cfg.IsFailure = countsAgainstBackend
	return &Breaker{inner: s, cb: resilience.NewCircuitBreaker(name, cfg)}
}

func countsAgainstBackend(err error) bool {
	return !errors.Is(err, ErrMissingKey) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, apperrors.ErrBlobCorruption) &&
		!errors.Is(err, apperrors.ErrInvariantViolation)
}

func (b *Breaker) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := resilience.Do(b.cb, func() (bool, error) {
		return b.inner.Exists(ctx, key)
	})
	return ok, b.unavailable(err)
}

func (b *Breaker) Get(ctx context.Context, key string) ([]byte, error) {
	blob, err := resilience.Do(b.cb, func() ([]byte, error) {
		return b.inner.Get(ctx, key)
	})
	return blob, b.unavailable(err)
}

func (b *Breaker) Put(ctx context.Context, key string, value []byte) error {
	return b.execute(func() error {
		return b.inner.Put(ctx, key, value)
	})
}

func (b *Breaker) Update(ctx context.Context, key string, fn UpdateFunc) error {
	u, ok := AsUpdater(b.inner)
	if !ok {
		return fmt.Errorf("store %T does not support atomic updates", b.inner)
	}
	return b.execute(func() error {
		return u.Update(ctx, key, fn)
	})
}

func (b *Breaker) Ping(ctx context.Context) error {
	return b.execute(func() error {
		return Ping(ctx, b.inner)
	})
}

// State reports the circuit state.
func (b *Breaker) State() resilience.State {
	return b.cb.State()
}

func (b *Breaker) Unwrap() Store {
	return b.inner
}

func (b *Breaker) Close() error {
	return b.inner.Close()
}

func (b *Breaker) execute(fn func() error) error {
	return b.unavailable(b.cb.Execute(fn))
}

func (b *Breaker) unavailable(err error) error {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
	}
	return err
}

// CircuitState reports the state of the first Breaker in the decorator chain
// of s. ok is false when s has none.
func CircuitState(s Store) (state resilience.State, ok bool) {
	for s != nil {
		if b, isBreaker := s.(*Breaker); isBreaker {
			return b.State(), true
		}
		u, wraps := s.(interface{ Unwrap() Store })
		if !wraps {
			break
		}
		s = u.Unwrap()
	}
	return resilience.StateClosed, false
}
