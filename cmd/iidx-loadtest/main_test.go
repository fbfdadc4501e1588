package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowles/inverted-index/internal/api"
	"github.com/rowles/inverted-index/internal/index"
	"github.com/rowles/inverted-index/internal/store"
	"github.com/rowles/inverted-index/pkg/health"
)

func TestRunLoadTest_AgainstRouter(t *testing.T) {
	ix := index.NewLocked(index.New(store.NewMemory(), index.WithVerify(true)))
	srv := httptest.NewServer(api.NewRouter(api.New(ix), health.NewChecker(), api.RouterOptions{Timeout: time.Second}))
	defer srv.Close()

	cfg := Config{
		BaseURL:     srv.URL,
		Concurrency: 4,
		WriteRatio:  0.5,
		MaxDocID:    50,
		Terms:       []string{"cat", "dog", "a/b"},
		Seed:        1,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	stats := runLoadTest(ctx, cfg, srv.Client(), nil)
	require.Positive(t, stats.totalRequests.Load())
	assert.Zero(t, stats.errorCount.Load())
	assert.Positive(t, stats.writes.Load())
	assert.Equal(t, stats.totalRequests.Load(), stats.successCount.Load())

	// Every written posting list is sorted and duplicate free.
	for _, term := range cfg.Terms {
		list, ok, err := ix.Lookup(context.Background(), term)
		require.NoError(t, err)
		if ok {
			require.NoError(t, list.Validate())
		}
	}

	var out bytes.Buffer
	assert.True(t, printReport(&out, stats, 200*time.Millisecond))
	assert.Contains(t, out.String(), "=== Latency ===")
	assert.Contains(t, out.String(), "  204: ")
}

func TestStats_Classification(t *testing.T) {
	s := NewStats()
	s.RecordRequest(true, time.Millisecond, http.StatusNoContent, nil)
	s.RecordRequest(false, time.Millisecond, http.StatusOK, nil)
	s.RecordRequest(false, time.Millisecond, http.StatusNotFound, nil)
	s.RecordRequest(false, time.Millisecond, http.StatusTooManyRequests, nil)
	s.RecordRequest(true, time.Millisecond, 0, assert.AnError)

	assert.Equal(t, int64(5), s.totalRequests.Load())
	assert.Equal(t, int64(3), s.successCount.Load())
	assert.Equal(t, int64(2), s.errorCount.Load())
	assert.Equal(t, int64(1), s.lookupMisses.Load())
	assert.Len(t, s.latencies, 4)
}

func TestPrintReport_NoRequests(t *testing.T) {
	var out bytes.Buffer
	assert.False(t, printReport(&out, NewStats(), time.Second))
	assert.Contains(t, out.String(), "No requests completed")
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Zero(t, percentile(nil, 50))
}
