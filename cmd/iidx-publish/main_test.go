package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowles/inverted-index/internal/api"
	"github.com/rowles/inverted-index/internal/index"
	"github.com/rowles/inverted-index/internal/ingest"
	"github.com/rowles/inverted-index/internal/ingest/tokenizer"
	"github.com/rowles/inverted-index/internal/store"
	"github.com/rowles/inverted-index/pkg/health"
	"github.com/rowles/inverted-index/pkg/metrics"
)

type recordingSink struct {
	batches [][]ingest.PostingEvent
	err     error
}

func (r *recordingSink) Send(_ context.Context, events []ingest.PostingEvent) error {
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, append([]ingest.PostingEvent(nil), events...))
	return nil
}

func (r *recordingSink) Close() error { return nil }

const input = "0\tThe dog and the cat\n" +
	"not-a-number\tignored\n" +
	"\n" +
	"1\tcat mouse house tree\n" +
	"no tab here\n" +
	"3\tthe of and\n" +
	"2\tcat dog tree\n"

func TestPublish_BatchesParsedDocuments(t *testing.T) {
	out := &recordingSink{}
	n, err := publish(context.Background(), strings.NewReader(input), tokenizer.New(), out, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, out.batches, 2)
	assert.Len(t, out.batches[0], 2)
	assert.Len(t, out.batches[1], 1)

	first := out.batches[0][0]
	assert.Equal(t, uint64(0), first.DocID)
	assert.Equal(t, []string{"dog", "cat"}, first.Terms)
	assert.False(t, first.IngestedAt.IsZero())
	assert.Equal(t, uint64(2), out.batches[1][0].DocID)
}

func TestPublish_StopsOnSinkError(t *testing.T) {
	errDown := errors.New("brokers down")
	n, err := publish(context.Background(), strings.NewReader(input), tokenizer.New(), &recordingSink{err: errDown}, 1)
	require.ErrorIs(t, err, errDown)
	assert.Zero(t, n)
}

func TestParseLine(t *testing.T) {
	doc, body, err := parseLine("18446744073709551615\thello")
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), doc)
	assert.Equal(t, "hello", body)

	_, _, err = parseLine("-1\thello")
	assert.Error(t, err)
	_, _, err = parseLine("7 hello")
	assert.Error(t, err)
}

func TestHTTPSink_PostsToDaemon(t *testing.T) {
	ix := index.NewLocked(index.New(store.NewMemory()))
	srv := httptest.NewServer(api.NewRouter(api.New(ix), health.NewChecker(), api.RouterOptions{
		Metrics: metrics.New(prometheus.NewRegistry()),
		Timeout: time.Second,
	}))
	defer srv.Close()

	out := newHTTPSink(srv.URL + "/")
	defer out.Close()
	n, err := publish(context.Background(), strings.NewReader(input), tokenizer.New(), out, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, ok, err := ix.Lookup(context.Background(), "cat")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, index.PostingList{0, 1, 2}, got)

	got, _, err = ix.Lookup(context.Background(), "tree")
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{1, 2}, got)
}
