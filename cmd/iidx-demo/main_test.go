package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowles/inverted-index/internal/codec"
	"github.com/rowles/inverted-index/internal/index"
	"github.com/rowles/inverted-index/internal/store"
)

const wantOutput = `cat: 0 1 2
mouse: 1
dog: 0 2
house: 1
tree: 1 2
fish: not found
`

func TestRun_Memory(t *testing.T) {
	ix := index.New(store.NewMemory(), index.WithVerify(true))
	defer ix.Close()

	var out bytes.Buffer
	mismatches, err := run(context.Background(), &out, ix)
	require.NoError(t, err)
	assert.Zero(t, mismatches)
	assert.Equal(t, wantOutput, out.String())
}

func TestRun_BoltBigEndian(t *testing.T) {
	s, err := store.OpenBolt(filepath.Join(t.TempDir(), "demo.db"), "", time.Second)
	require.NoError(t, err)
	ix := index.New(s, index.WithCodec(codec.BigEndian), index.WithVerify(true))
	defer ix.Close()

	var out bytes.Buffer
	mismatches, err := run(context.Background(), &out, ix)
	require.NoError(t, err)
	assert.Zero(t, mismatches)
	assert.Equal(t, wantOutput, out.String())
}

func TestRun_ReportsMismatches(t *testing.T) {
	s := store.NewMemory()
	ix := index.New(s)
	// A stray posting makes "fish" present.
	require.NoError(t, ix.Add(context.Background(), 9, "fish"))

	var out bytes.Buffer
	mismatches, err := run(context.Background(), &out, ix)
	require.NoError(t, err)
	assert.Equal(t, 1, mismatches)
	assert.Contains(t, out.String(), "fish: 9\n")
}
