// Package consumer reads posting events from Kafka and adds them to the
// index.
package consumer

import (
	"context"
	"fmt"

	"github.com/rowles/inverted-index/internal/index"
	"github.com/rowles/inverted-index/internal/ingest"
	"github.com/rowles/inverted-index/pkg/kafka"
	"github.com/rowles/inverted-index/pkg/logger"
	"github.com/rowles/inverted-index/pkg/metrics"
)

// Indexer is the write side of the index the consumer feeds.
type Indexer interface {
	AddAll(ctx context.Context, doc index.DocID, terms []string) error
}

// HandleMessage returns a Kafka MessageHandler that adds every term of each
// PostingEvent under its doc id. Messages that cannot be decoded, or that
// carry no usable terms, are logged and acknowledged so they do not block the
// partition. Index failures are returned and the message is not committed.
// m may be nil.
func HandleMessage(ix Indexer, m *metrics.Metrics) kafka.MessageHandler {
	log := logger.WithComponent("posting-consumer")
	count := func(status string) {
		if m != nil {
			m.IngestEventsTotal.WithLabelValues(status).Inc()
		}
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingest.PostingEvent](value)
		if err != nil {
			log.Error("failed to decode posting event",
				"error", err,
				"key", string(key),
			)
			count("invalid")
			return nil
		}
		if err := event.Validate(); err != nil {
			log.Warn("dropping posting event", "key", string(key), "error", err)
			count("invalid")
			return nil
		}

		log.Debug("processing posting event",
			"doc_id", event.DocID,
			"terms", len(event.Terms),
		)
		if err := ix.AddAll(ctx, index.DocID(event.DocID), event.Terms); err != nil {
			count("failed")
			return fmt.Errorf("indexing doc %d: %w", event.DocID, err)
		}
		count("indexed")
		log.Info("document indexed",
			"doc_id", event.DocID,
			"terms", len(event.Terms),
		)
		return nil
	}
}
