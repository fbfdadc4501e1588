package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rowles/inverted-index/pkg/errors"
	"github.com/rowles/inverted-index/pkg/metrics"
	"github.com/rowles/inverted-index/pkg/resilience"
)

var errConnRefused = errors.New("dial tcp: connection refused")

// flakyStore fails every call while down is set.
type flakyStore struct {
	*Memory
	down  bool
	calls int
}

func (f *flakyStore) Exists(ctx context.Context, key string) (bool, error) {
	f.calls++
	if f.down {
		return false, errConnRefused
	}
	return f.Memory.Exists(ctx, key)
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.calls++
	if f.down {
		return nil, errConnRefused
	}
	return f.Memory.Get(ctx, key)
}

func TestBreaker_OpensOnBackendFailures(t *testing.T) {
	inner := &flakyStore{Memory: NewMemory(), down: true}
	b := WithBreaker(inner, "store-test", resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.Exists(ctx, "cat")
		require.ErrorIs(t, err, errConnRefused)
	}
	assert.Equal(t, resilience.StateOpen, b.State())

	_, err := b.Exists(ctx, "cat")
	require.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls, "open circuit must not reach the backend")

	inner.down = false
	time.Sleep(30 * time.Millisecond)
	ok, err := b.Exists(ctx, "cat")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, resilience.StateClosed, b.State())
}

func TestBreaker_MissingKeysDoNotTrip(t *testing.T) {
	b := WithBreaker(NewMemory(), "store-test", resilience.CircuitBreakerConfig{FailureThreshold: 1})
	for i := 0; i < 3; i++ {
		_, err := b.Get(context.Background(), "ghost")
		require.ErrorIs(t, err, ErrMissingKey)
	}
	assert.Equal(t, resilience.StateClosed, b.State())
}

func TestBreaker_ForwardsUpdates(t *testing.T) {
	mem := NewMemory()
	b := WithBreaker(mem, "store-test", resilience.CircuitBreakerConfig{FailureThreshold: 1})

	u, ok := AsUpdater(b)
	require.True(t, ok)
	require.NoError(t, u.Update(context.Background(), "k", func([]byte, bool) ([]byte, bool, error) {
		return []byte("v"), true, nil
	}))
	assert.Equal(t, 1, mem.Len())

	_, ok = AsUpdater(WithBreaker(&plainStore{Store: mem}, "x", resilience.CircuitBreakerConfig{}))
	assert.False(t, ok, "a breaker over a non-updater must not advertise updates")
}

func TestInstrumented_CountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := Instrument(NewMemory(), m, "memory")
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "cat", []byte{1}))
	_, err := s.Get(ctx, "cat")
	require.NoError(t, err)
	_, err = s.Get(ctx, "dog")
	require.ErrorIs(t, err, ErrMissingKey)

	assert.Equal(t, 1.0, counterValue(t, reg, "iidx_store_operations_total", map[string]string{"backend": "memory", "op": "put", "status": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "iidx_store_operations_total", map[string]string{"backend": "memory", "op": "get", "status": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "iidx_store_operations_total", map[string]string{"backend": "memory", "op": "get", "status": "missing"}))
}

func counterValue(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if matchLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestCircuitState_FindsBreakerThroughDecorators(t *testing.T) {
	inner := &flakyStore{Memory: NewMemory()}
	b := WithBreaker(inner, "store-test", resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	s := Instrument(b, metrics.New(prometheus.NewRegistry()), "memory")

	state, ok := CircuitState(s)
	require.True(t, ok)
	assert.Equal(t, resilience.StateClosed, state)

	inner.down = true
	_, err := s.Get(context.Background(), "x")
	require.Error(t, err)
	state, _ = CircuitState(s)
	assert.Equal(t, resilience.StateOpen, state)

	_, ok = CircuitState(NewMemory())
	assert.False(t, ok)
}
