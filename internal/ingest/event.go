// Package ingest defines the messages that carry postings from publishers to
// the indexing daemon.
package ingest

import (
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/rowles/inverted-index/pkg/errors"
)

// PostingEvent announces that a document contains each of Terms. Terms are
// indexed in order and may repeat.
type PostingEvent struct {
	DocID      uint64    `json:"doc_id"`
	Terms      []string  `json:"terms"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Key is the Kafka message key: the decimal doc id, so that all events for a
// document share a partition.
func (e PostingEvent) Key() string {
	return strconv.FormatUint(e.DocID, 10)
}

// Validate rejects events that would index nothing or an empty term.
func (e PostingEvent) Validate() error {
	if len(e.Terms) == 0 {
		return fmt.Errorf("%w: doc %d has no terms", apperrors.ErrInvalidInput, e.DocID)
	}
	for i, term := range e.Terms {
		if term == "" {
			return fmt.Errorf("%w: doc %d term %d is empty", apperrors.ErrInvalidInput, e.DocID, i)
		}
	}
	return nil
}
