// Package tracing records timed span trees that travel in a context. A root
// span is opened per request and child spans are hung under whatever span the
// context carries; the finished tree is written to slog at debug level.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

var spanKey contextKey

// Span is a timed operation within a trace. A nil *Span is valid and ignores
// every call, so callers need not check whether tracing is active.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration

	mu       sync.Mutex
	children []*Span
	attrs    []attr
}

type attr struct {
	key   string
	value any
}

// StartSpan creates a root span and stores it in the returned context.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	span := &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
	}
	return context.WithValue(ctx, spanKey, span), span
}

// StartChildSpan opens a span under the one carried by ctx. Without a parent it
// returns ctx unchanged and a nil span.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return ctx, nil
	}
	child := &Span{
		Name:      name,
		TraceID:   parent.TraceID,
		StartTime: time.Now(),
	}
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey, child), child
}

// SpanFromContext returns the span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// End records the span's duration.
func (s *Span) End() {
	if s == nil {
		return
	}
	d := time.Since(s.StartTime)
	s.mu.Lock()
	s.Duration = d
	s.mu.Unlock()
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, attr{key: key, value: value})
	s.mu.Unlock()
}

// SetError records err, if any, as the span's error attribute.
func (s *Span) SetError(err error) {
	if err != nil {
		s.SetAttr("error", err.Error())
	}
}

// Children returns a copy of the span's direct children.
func (s *Span) Children() []*Span {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Attr returns the last value recorded for key, as it was passed to SetAttr.
func (s *Span) Attr(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.attrs) - 1; i >= 0; i-- {
		if s.attrs[i].key == key {
			return s.attrs[i].value, true
		}
	}
	return nil, false
}

// Log writes the span tree to l, one debug record per span, depth first.
func (s *Span) Log(ctx context.Context, l *slog.Logger) {
	if s == nil || !l.Enabled(ctx, slog.LevelDebug) {
		return
	}
	s.log(ctx, l, 0)
}

func (s *Span) log(ctx context.Context, l *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := make([]slog.Attr, 0, len(s.attrs)+4)
	attrs = append(attrs,
		slog.String("trace_id", s.TraceID),
		slog.String("span", s.Name),
		slog.Float64("duration_ms", float64(s.Duration.Microseconds())/1000),
		slog.Int("depth", depth),
	)
	for _, a := range s.attrs {
		attrs = append(attrs, slog.Any(a.key, a.value))
	}
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	l.LogAttrs(ctx, slog.LevelDebug, "span", attrs...)
	for _, child := range children {
		child.log(ctx, l, depth+1)
	}
}
