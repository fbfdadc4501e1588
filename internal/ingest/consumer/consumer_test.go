package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowles/inverted-index/internal/index"
	"github.com/rowles/inverted-index/internal/ingest"
	"github.com/rowles/inverted-index/internal/store"
	"github.com/rowles/inverted-index/pkg/logger"
	"github.com/rowles/inverted-index/pkg/metrics"
)

func encode(t *testing.T, event ingest.PostingEvent) []byte {
	t.Helper()
	b, err := json.Marshal(event)
	require.NoError(t, err)
	return b
}

func TestHandleMessage_IndexesEvents(t *testing.T) {
	ix := index.NewLocked(index.New(store.NewMemory(), index.WithVerify(true)))
	reg := prometheus.NewRegistry()
	handle := HandleMessage(ix, metrics.New(reg))
	ctx := context.Background()

	for _, ev := range []ingest.PostingEvent{
		{DocID: 2, Terms: []string{"cat", "dog", "tree"}},
		{DocID: 0, Terms: []string{"dog", "cat"}},
		{DocID: 1, Terms: []string{"cat", "mouse", "house", "tree", "cat"}},
	} {
		require.NoError(t, handle(ctx, []byte(ev.Key()), encode(t, ev)))
	}

	got, ok, err := ix.Lookup(ctx, "cat")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, index.PostingList{0, 1, 2}, got)

	got, _, err = ix.Lookup(ctx, "tree")
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{1, 2}, got)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "iidx_ingest_events_total" {
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, 3.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
}

func TestHandleMessage_SkipsBadEvents(t *testing.T) {
	ix := index.New(store.NewMemory())
	handle := HandleMessage(ix, nil)
	ctx := context.Background()

	require.NoError(t, handle(ctx, []byte("k"), []byte("{not json")))
	require.NoError(t, handle(ctx, []byte("7"), encode(t, ingest.PostingEvent{DocID: 7})))
	require.NoError(t, handle(ctx, []byte("7"), encode(t, ingest.PostingEvent{DocID: 7, Terms: []string{"ok", ""}})))

	_, ok, err := ix.Lookup(ctx, "ok")
	require.NoError(t, err)
	assert.False(t, ok, "an event with an empty term is dropped whole")
}

type failingIndexer struct{ err error }

func (f failingIndexer) AddAll(context.Context, index.DocID, []string) error { return f.err }

func TestHandleMessage_ReturnsIndexErrors(t *testing.T) {
	errStore := errors.New("store unavailable")
	handle := HandleMessage(failingIndexer{err: errStore}, nil)

	err := handle(context.Background(), []byte("1"), encode(t, ingest.PostingEvent{DocID: 1, Terms: []string{"cat"}}))
	require.ErrorIs(t, err, errStore)
}

func TestPostingEvent(t *testing.T) {
	ev := ingest.PostingEvent{DocID: 1 << 40, Terms: []string{"x"}}
	assert.Equal(t, "1099511627776", ev.Key())
	assert.NoError(t, ev.Validate())
}

func TestHandleMessage_LogsUnderComponent(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	logger.SetupWriter(&buf, "info", "json")

	handle := HandleMessage(index.New(store.NewMemory()), nil)
	require.NoError(t, handle(context.Background(), []byte("k"), []byte("{not json")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.SplitN(buf.Bytes(), []byte("\n"), 2)[0], &rec))
	assert.Equal(t, "posting-consumer", rec["component"])
	assert.Equal(t, "failed to decode posting event", rec["msg"])
}
