package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowles/inverted-index/pkg/resilience"
)

// fakeReader serves queued messages and then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []int64
	closed    int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumer_CommitsOnlyHandledMessages(t *testing.T) {
	r := &fakeReader{
		fetchErrs: []error{errors.New("broker not available")},
		queue: []kafka.Message{
			{Offset: 1, Value: []byte("ok")},
			{Offset: 2, Value: []byte("fail")},
			{Offset: 3, Value: []byte("ok")},
		},
	}
	var handled []string
	c := newConsumer(r, "postings", func(_ context.Context, _ []byte, value []byte) error {
		handled = append(handled, string(value))
		if string(value) == "fail" {
			return errors.New("index unavailable")
		}
		return nil
	})
	c.backoff = resilience.Backoff{Initial: time.Millisecond, Max: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"ok", "fail", "ok"}, handled)
	assert.Equal(t, []int64{1, 3}, r.commits())

	require.NoError(t, c.Close())
	assert.Equal(t, 1, r.closed)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducer_PublishBatch(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "postings")

	type payload struct {
		N int `json:"n"`
	}
	require.NoError(t, p.PublishBatch(context.Background(), []Event{
		{Key: "a", Value: payload{N: 1}},
		{Key: "b", Value: payload{N: 2}},
	}))
	require.NoError(t, p.PublishBatch(context.Background(), nil))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, []byte("a"), w.msgs[0].Key)
	got, err := DecodeJSON[payload](w.msgs[1].Value)
	require.NoError(t, err)
	assert.Equal(t, 2, got.N)
}

func TestProducer_PublishErrors(t *testing.T) {
	errBroker := errors.New("leader not available")
	p := newProducer(&fakeWriter{err: errBroker}, "postings")
	err := p.Publish(context.Background(), Event{Key: "k", Value: 1})
	require.ErrorIs(t, err, errBroker)

	err = newProducer(&fakeWriter{}, "postings").Publish(context.Background(), Event{Key: "k", Value: make(chan int)})
	var unsupported *json.UnsupportedTypeError
	require.ErrorAs(t, err, &unsupported)
}

func TestDecodeJSON_Invalid(t *testing.T) {
	_, err := DecodeJSON[map[string]int]([]byte("{not json"))
	require.Error(t, err)
}
