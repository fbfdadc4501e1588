package index

import (
	"context"
	"sync"
)

// Locked serialises writers to an Index and lets lookups run concurrently
// with each other.
type Locked struct {
	mu sync.RWMutex
	ix *Index
}

func NewLocked(ix *Index) *Locked {
	return &Locked{ix: ix}
}

func (l *Locked) Add(ctx context.Context, doc DocID, term string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ix.Add(ctx, doc, term)
}

// AddAll adds doc under every term while holding the write lock once. It
// stops at the first error; terms before it remain added.
func (l *Locked) AddAll(ctx context.Context, doc DocID, terms []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ix.AddAll(ctx, doc, terms)
}

func (l *Locked) Lookup(ctx context.Context, term string) (PostingList, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ix.Lookup(ctx, term)
}

func (l *Locked) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ix.Close()
}
