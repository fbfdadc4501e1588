package index

import (
	"fmt"
	"slices"

	apperrors "github.com/rowles/inverted-index/pkg/errors"
)

// DocID identifies a document. Callers assign them; the index never does.
type DocID uint64

// PostingList is the strictly ascending set of documents containing a term.
type PostingList []DocID

// Validate reports an errors.ErrInvariantViolation if l is not strictly
// ascending.
func (l PostingList) Validate() error {
	for i := 1; i < len(l); i++ {
		if l[i-1] >= l[i] {
			return fmt.Errorf("%w: posting list not strictly ascending at %d (%d after %d)",
				apperrors.ErrInvariantViolation, i, l[i], l[i-1])
		}
	}
	return nil
}

// Contains reports whether doc is in l.
func (l PostingList) Contains(doc DocID) bool {
	_, found := slices.BinarySearch(l, doc)
	return found
}
