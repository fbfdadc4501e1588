// Package api serves term lookups and direct posting writes over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rowles/inverted-index/internal/index"
	"github.com/rowles/inverted-index/internal/ingest"
	apperrors "github.com/rowles/inverted-index/pkg/errors"
	"github.com/rowles/inverted-index/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Index is the part of the index the API reads and writes.
type Index interface {
	Lookup(ctx context.Context, term string) (index.PostingList, bool, error)
	AddAll(ctx context.Context, doc index.DocID, terms []string) error
}

type Handler struct {
	index  Index
	group  singleflight.Group
	logger *slog.Logger
}

func New(ix Index) *Handler {
	return &Handler{
		index:  ix,
		logger: logger.WithComponent("api-handler"),
	}
}

// TermResponse is the body of a successful lookup.
type TermResponse struct {
	Term   string            `json:"term"`
	DocIDs index.PostingList `json:"doc_ids"`
}

type lookupResult struct {
	list index.PostingList
	ok   bool
}

// Lookup serves GET /api/v1/terms/{term}. Concurrent requests for one term
// share a single index read.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	term := r.PathValue("term")
	if term == "" {
		h.writeError(w, http.StatusBadRequest, "term must not be empty")
		return
	}

	val, err, shared := h.group.Do(term, func() (any, error) {
		list, ok, err := h.index.Lookup(ctx, term)
		return lookupResult{list: list, ok: ok}, err
	})
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("lookup failed", "term", term, "error", err, "status_code", status)
		h.writeError(w, status, "lookup failed")
		return
	}
	res := val.(lookupResult)
	if !res.ok {
		h.writeError(w, apperrors.HTTPStatusCode(apperrors.ErrTermNotFound), apperrors.ErrTermNotFound.Error())
		return
	}

	log.Debug("lookup completed",
		"term", term,
		"docs", len(res.list),
		"shared", shared,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, TermResponse{Term: term, DocIDs: res.list})
}

// AddPostings serves POST /api/v1/postings with a PostingEvent body.
func (h *Handler) AddPostings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var event ingest.PostingEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&event); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := event.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.index.AddAll(ctx, index.DocID(event.DocID), event.Terms); err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("adding postings failed",
			"doc_id", event.DocID,
			"error", err,
			"status_code", status,
		)
		h.writeError(w, status, "adding postings failed")
		return
	}
	log.Info("postings added", "doc_id", event.DocID, "terms", len(event.Terms))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
