// Command iidx-demo indexes a small fixed corpus, prints the posting list of
// each query term, and exits non-zero if any list differs from the expected
// one.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rowles/inverted-index/internal/codec"
	"github.com/rowles/inverted-index/internal/index"
	"github.com/rowles/inverted-index/internal/store"
	"github.com/rowles/inverted-index/pkg/config"
	"github.com/rowles/inverted-index/pkg/logger"
)

type posting struct {
	doc  index.DocID
	term string
}

var corpus = []posting{
	{0, "dog"}, {0, "cat"}, {1, "cat"}, {1, "mouse"},
	{1, "house"}, {2, "cat"}, {2, "dog"},
	{2, "tree"}, {1, "tree"},
}

// expected maps each query term to its posting list; nil means absent.
var expected = []struct {
	term string
	docs index.PostingList
}{
	{"cat", index.PostingList{0, 1, 2}},
	{"mouse", index.PostingList{1}},
	{"dog", index.PostingList{0, 2}},
	{"house", index.PostingList{1}},
	{"tree", index.PostingList{1, 2}},
	{"fish", nil},
}

func main() {
	backend := flag.String("backend", config.BackendMemory, "store backend (memory, bolt, redis, postgres)")
	boltPath := flag.String("bolt-path", "", "bolt database file; a temporary file when empty")
	byteOrder := flag.String("byte-order", config.ByteOrderNative, "blob byte order (native, little, big)")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logger.SetupWriter(os.Stderr, *logLevel, "text")

	cfg := config.Default()
	cfg.Store.Backend = *backend
	cfg.Codec.ByteOrder = *byteOrder
	if *backend == config.BackendBolt {
		if *boltPath == "" {
			dir, err := os.MkdirTemp("", "iidx-demo-")
			if err != nil {
				fail(err)
			}
			defer os.RemoveAll(dir)
			*boltPath = filepath.Join(dir, "postings.db")
		}
		cfg.Store.Bolt.Path = *boltPath
	}
	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	c, err := codec.ByName(cfg.Codec.ByteOrder)
	if err != nil {
		fail(err)
	}
	ctx := context.Background()
	s, err := store.Open(ctx, cfg.Store, nil)
	if err != nil {
		fail(err)
	}
	ix := index.New(s, index.WithCodec(c), index.WithVerify(true))
	defer ix.Close()

	mismatches, err := run(ctx, os.Stdout, ix)
	if err != nil {
		fail(err)
	}
	if mismatches > 0 {
		slog.Error("posting lists differ from expected", "mismatches", mismatches)
		ix.Close()
		os.Exit(1)
	}
}

// run indexes the corpus into ix, prints every query term as
// "term: d0 d1 ..." or "term: not found", and returns how many results
// differ from expected.
func run(ctx context.Context, w io.Writer, ix *index.Index) (int, error) {
	for _, p := range corpus {
		if err := ix.Add(ctx, p.doc, p.term); err != nil {
			return 0, fmt.Errorf("adding %q to doc %d: %w", p.term, p.doc, err)
		}
	}

	mismatches := 0
	for _, want := range expected {
		got, ok, err := ix.Lookup(ctx, want.term)
		if err != nil {
			return mismatches, fmt.Errorf("looking up %q: %w", want.term, err)
		}
		if !ok {
			fmt.Fprintf(w, "%s: not found\n", want.term)
		} else {
			fmt.Fprintf(w, "%s: %s\n", want.term, join(got))
		}
		if ok != (want.docs != nil) || !slices.Equal(got, want.docs) {
			slog.Warn("unexpected posting list", "term", want.term, "got", got, "want", want.docs)
			mismatches++
		}
	}
	return mismatches, nil
}

func join(list index.PostingList) string {
	parts := make([]string, len(list))
	for i, d := range list {
		parts[i] = fmt.Sprint(d)
	}
	return strings.Join(parts, " ")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "iidx-demo: %v\n", err)
	os.Exit(1)
}
