// Package index maintains an inverted index from terms to sorted posting lists
// of document IDs, persisted as codec blobs through a store.Store.
//
// For every term the store holds at most one blob, and that blob decodes to a
// strictly ascending list. Adding a (doc, term) pair that is already present
// leaves the stored blob unchanged.
//
// An Index is not safe for concurrent use; wrap it in a Locked when writers
// and readers share it.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/rowles/inverted-index/internal/codec"
	"github.com/rowles/inverted-index/internal/store"
	apperrors "github.com/rowles/inverted-index/pkg/errors"
	"github.com/rowles/inverted-index/pkg/logger"
	"github.com/rowles/inverted-index/pkg/metrics"
	"github.com/rowles/inverted-index/pkg/tracing"
)

var errEmptyTerm = apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "term must not be empty")

type Index struct {
	store   store.Store
	codec   codec.Codec
	verify  bool
	atomic  bool
	updater store.Updater
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Index)

// WithCodec sets the byte order blobs are written and read in. It must match
// the order of any blobs already in the store.
func WithCodec(c codec.Codec) Option {
	return func(ix *Index) { ix.codec = c }
}

// WithVerify makes every decoded posting list be checked for strict ascent.
func WithVerify(verify bool) Option {
	return func(ix *Index) { ix.verify = verify }
}

// WithMetrics records adds and lookups into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ix *Index) { ix.metrics = m }
}

// WithAtomicUpdates runs each Add as a single store.Updater step when the
// store supports it, so that separate processes sharing one backend do not
// lose each other's postings. Stores without the capability fall back to
// exists, get, put.
func WithAtomicUpdates(atomic bool) Option {
	return func(ix *Index) { ix.atomic = atomic }
}

// New returns an Index that owns s.
func New(s store.Store, opts ...Option) *Index {
	ix := &Index{
		store:  s,
		codec:  codec.Native,
		logger: logger.WithComponent("index"),
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.atomic {
		if u, ok := store.AsUpdater(s); ok {
			ix.updater = u
		} else {
			ix.logger.Warn("store does not support atomic updates, using exists/get/put",
				"store", fmt.Sprintf("%T", s))
		}
	}
	return ix
}

// Add records that doc contains term.
func (ix *Index) Add(ctx context.Context, doc DocID, term string) (err error) {
	if term == "" {
		return errEmptyTerm
	}
	ctx, span := tracing.StartChildSpan(ctx, "index.add")
	span.SetAttr("term", term)
	defer func() {
		span.SetError(err)
		span.End()
	}()

	var (
		grew   bool
		length int
	)
	merge := func(current []byte, exists bool) ([]byte, bool, error) {
		if !exists {
			grew, length = true, 1
			return ix.encode(term, PostingList{doc})
		}
		list, err := ix.decode(term, current)
		if err != nil {
			return nil, false, err
		}
		pos, found := slices.BinarySearch(list, doc)
		if found {
			length = len(list)
			return nil, false, nil
		}
		list = slices.Insert(list, pos, doc)
		grew, length = true, len(list)
		return ix.encode(term, list)
	}

	if ix.updater != nil {
		err = ix.updater.Update(ctx, term, merge)
	} else {
		err = ix.readModifyWrite(ctx, term, merge)
	}
	if err != nil {
		return err
	}
	span.SetAttr("grew", grew)

	if grew {
		ix.logger.Debug("posting added", "term", term, "doc_id", doc, "length", length)
		if ix.metrics != nil {
			ix.metrics.PostingsAddedTotal.Inc()
			ix.metrics.PostingListLength.Observe(float64(length))
		}
	} else {
		ix.logger.Debug("posting already present", "term", term, "doc_id", doc)
		if ix.metrics != nil {
			ix.metrics.PostingsNoopTotal.Inc()
		}
	}
	return nil
}

// AddAll adds doc under each of terms in order, stopping at the first error.
func (ix *Index) AddAll(ctx context.Context, doc DocID, terms []string) error {
	for _, term := range terms {
		if err := ix.Add(ctx, doc, term); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Index) readModifyWrite(ctx context.Context, term string, fn store.UpdateFunc) error {
	exists, err := ix.store.Exists(ctx, term)
	if err != nil {
		return fmt.Errorf("checking term %q: %w", term, err)
	}
	var current []byte
	if exists {
		if current, err = ix.get(ctx, term); err != nil {
			return err
		}
	}
	next, write, err := fn(current, exists)
	if err != nil || !write {
		return err
	}
	if err := ix.store.Put(ctx, term, next); err != nil {
		return fmt.Errorf("storing term %q: %w", term, err)
	}
	return nil
}

// Lookup returns the posting list for term. ok is false when term has never
// been added; that is not an error.
func (ix *Index) Lookup(ctx context.Context, term string) (list PostingList, ok bool, err error) {
	if term == "" {
		return nil, false, errEmptyTerm
	}
	ctx, span := tracing.StartChildSpan(ctx, "index.lookup")
	span.SetAttr("term", term)
	defer func() {
		span.SetError(err)
		span.SetAttr("found", ok)
		span.End()
		if ix.metrics == nil {
			return
		}
		result := "hit"
		switch {
		case err != nil:
			result = "error"
		case !ok:
			result = "miss"
		}
		ix.metrics.LookupsTotal.WithLabelValues(result).Inc()
	}()

	exists, err := ix.store.Exists(ctx, term)
	if err != nil {
		return nil, false, fmt.Errorf("checking term %q: %w", term, err)
	}
	if !exists {
		return nil, false, nil
	}
	blob, err := ix.get(ctx, term)
	if err != nil {
		return nil, false, err
	}
	list, err = ix.decode(term, blob)
	if err != nil {
		return nil, false, err
	}
	return list, true, nil
}

// Close closes the underlying store.
func (ix *Index) Close() error {
	return ix.store.Close()
}

// get fetches a blob the store has just reported present.
func (ix *Index) get(ctx context.Context, term string) ([]byte, error) {
	blob, err := ix.store.Get(ctx, term)
	if errors.Is(err, store.ErrMissingKey) {
		return nil, fmt.Errorf("%w: term %q exists but has no blob: %w", apperrors.ErrStoreCorruption, term, err)
	}
	if err != nil {
		return nil, fmt.Errorf("reading term %q: %w", term, err)
	}
	return blob, nil
}

func (ix *Index) decode(term string, blob []byte) (PostingList, error) {
	docs, err := codec.Decode[DocID](ix.codec, blob)
	if err != nil {
		return nil, fmt.Errorf("%w: term %q: %w", apperrors.ErrBlobCorruption, term, err)
	}
	list := PostingList(docs)
	if ix.verify {
		if err := list.Validate(); err != nil {
			return nil, fmt.Errorf("term %q: %w", term, err)
		}
	}
	return list, nil
}

func (ix *Index) encode(term string, list PostingList) ([]byte, bool, error) {
	blob, err := codec.Encode[DocID](ix.codec, list)
	if err != nil {
		return nil, false, fmt.Errorf("encoding term %q: %w", term, err)
	}
	return blob, true, nil
}
