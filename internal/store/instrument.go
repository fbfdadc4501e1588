package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rowles/inverted-index/pkg/metrics"
	"github.com/rowles/inverted-index/pkg/tracing"
)

// Instrumented records the latency and outcome of every call to the wrapped
// Store, labelled with the backend name, and opens a "store.<op>" span under
// any trace the context carries.
type Instrumented struct {
	inner   Store
	m       *metrics.Metrics
	backend string
}

func Instrument(s Store, m *metrics.Metrics, backend string) *Instrumented {
	return &Instrumented{inner: s, m: m, backend: backend}
}

func (s *Instrumented) Exists(ctx context.Context, key string) (ok bool, err error) {
	ctx, done := s.begin(ctx, "exists")
	defer func() { done(err) }()
	return s.inner.Exists(ctx, key)
}

func (s *Instrumented) Get(ctx context.Context, key string) (blob []byte, err error) {
	ctx, done := s.begin(ctx, "get")
	defer func() { done(err) }()
	return s.inner.Get(ctx, key)
}

func (s *Instrumented) Put(ctx context.Context, key string, value []byte) (err error) {
	ctx, done := s.begin(ctx, "put")
	defer func() { done(err) }()
	return s.inner.Put(ctx, key, value)
}

func (s *Instrumented) Update(ctx context.Context, key string, fn UpdateFunc) (err error) {
	u, ok := AsUpdater(s.inner)
	if !ok {
		return fmt.Errorf("store %T does not support atomic updates", s.inner)
	}
	ctx, done := s.begin(ctx, "update")
	defer func() { done(err) }()
	return u.Update(ctx, key, fn)
}

func (s *Instrumented) Ping(ctx context.Context) error {
	return Ping(ctx, s.inner)
}

func (s *Instrumented) Unwrap() Store {
	return s.inner
}

func (s *Instrumented) Close() error {
	return s.inner.Close()
}

// begin starts timing op; the returned func records its outcome.
func (s *Instrumented) begin(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracing.StartChildSpan(ctx, "store."+op)
	span.SetAttr("backend", s.backend)
	return ctx, func(err error) {
		status := outcome(err)
		span.SetAttr("status", status)
		span.End()
		s.m.StoreOpDuration.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
		s.m.StoreOpsTotal.WithLabelValues(s.backend, op, status).Inc()
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissingKey):
		return "missing"
	default:
		return "error"
	}
}
