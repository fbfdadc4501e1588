package codec

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type docID uint64

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		seq  []uint64
	}{
		{name: "empty", seq: []uint64{}},
		{name: "single", seq: []uint64{7}},
		{name: "wide values", seq: []uint64{1, 42, 1 << 40}},
		{name: "extremes", seq: []uint64{0, math.MaxUint64}},
	}
	for _, c := range []Codec{Native, LittleEndian, BigEndian} {
		for _, tt := range tests {
			t.Run(c.String()+"/"+tt.name, func(t *testing.T) {
				blob, err := Encode(c, tt.seq)
				require.NoError(t, err)
				assert.Len(t, blob, EncodedLen[uint64](len(tt.seq)))

				got, err := Decode[uint64](c, blob)
				require.NoError(t, err)
				assert.Equal(t, tt.seq, got)
			})
		}
	}
}

func TestEncode_LayoutIsHeaderThenImages(t *testing.T) {
	blob, err := Encode(LittleEndian, []uint64{1, 42, 1 << 40})
	require.NoError(t, err)

	want := make([]byte, 0, 32)
	want = binary.LittleEndian.AppendUint64(want, 3)
	want = binary.LittleEndian.AppendUint64(want, 1)
	want = binary.LittleEndian.AppendUint64(want, 42)
	want = binary.LittleEndian.AppendUint64(want, 1<<40)
	assert.Equal(t, want, blob)
}

func TestEncode_NativeMatchesHostOrder(t *testing.T) {
	blob, err := Encode(Native, []uint64{0x0102030405060708})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), binary.NativeEndian.Uint64(blob[:8]))
	assert.Equal(t, uint64(0x0102030405060708), binary.NativeEndian.Uint64(blob[8:]))
}

func TestEncode_NamedAndNarrowTypes(t *testing.T) {
	ids := []docID{3, 7, 9}
	blob, err := Encode(BigEndian, ids)
	require.NoError(t, err)
	got, err := Decode[docID](BigEndian, blob)
	require.NoError(t, err)
	assert.Equal(t, ids, got)

	small := []uint16{1, 0xffff}
	blob, err = Encode(LittleEndian, small)
	require.NoError(t, err)
	assert.Len(t, blob, HeaderSize+4)
	got16, err := Decode[uint16](LittleEndian, blob)
	require.NoError(t, err)
	assert.Equal(t, small, got16)

	signed := []int32{-1, 0, math.MaxInt32}
	blob, err = Encode(Native, signed)
	require.NoError(t, err)
	got32, err := Decode[int32](Native, blob)
	require.NoError(t, err)
	assert.Equal(t, signed, got32)
}

func TestAppend_PreservesPrefix(t *testing.T) {
	prefix := []byte("hdr")
	out, err := Append(LittleEndian, prefix, []uint64{5})
	require.NoError(t, err)
	assert.Equal(t, []byte("hdr"), out[:3])
	assert.Len(t, out, 3+EncodedLen[uint64](1))
}

func TestRead_ConsumesExactlyOneBlob(t *testing.T) {
	first, err := Encode(LittleEndian, []uint64{1, 2})
	require.NoError(t, err)
	stream, err := Append(LittleEndian, first, []uint64{3})
	require.NoError(t, err)

	seq, n, err := Read[uint64](LittleEndian, stream)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, seq)
	assert.Equal(t, len(first), n)

	seq, n, err = Read[uint64](LittleEndian, stream[n:])
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, seq)
	assert.Equal(t, EncodedLen[uint64](1), n)
}

func TestRead_Errors(t *testing.T) {
	valid, err := Encode(LittleEndian, []uint64{1, 2, 3})
	require.NoError(t, err)

	huge := binary.LittleEndian.AppendUint64(nil, math.MaxUint64)

	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{name: "nil", buf: nil, want: ErrTruncated},
		{name: "short header", buf: valid[:5], want: ErrTruncated},
		{name: "missing last element", buf: valid[:len(valid)-8], want: ErrLengthOverflow},
		{name: "partial element", buf: valid[:len(valid)-3], want: ErrLengthOverflow},
		{name: "absurd length", buf: huge, want: ErrLengthOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Read[uint64](LittleEndian, tt.buf)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecode_RejectsTrailingBytes(t *testing.T) {
	blob, err := Encode(LittleEndian, []uint64{1})
	require.NoError(t, err)
	_, err = Decode[uint64](LittleEndian, append(blob, 0))
	require.ErrorIs(t, err, ErrTrailingBytes)
}

func TestByName(t *testing.T) {
	for name, want := range map[string]Codec{"native": Native, "": Native, "little": LittleEndian, "big": BigEndian} {
		got, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, want.ByteOrder(), got.ByteOrder())
	}
	_, err := ByName("pdp")
	assert.Error(t, err)
}

func BenchmarkEncode(b *testing.B) {
	seq := make([]uint64, 1024)
	for i := range seq {
		seq[i] = uint64(i * 3)
	}
	b.ReportAllocs()
	b.SetBytes(int64(EncodedLen[uint64](len(seq))))
	for b.Loop() {
		if _, err := Encode(Native, seq); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecode(b *testing.B) {
	seq := make([]uint64, 1024)
	for i := range seq {
		seq[i] = uint64(i * 3)
	}
	blob, err := Encode(Native, seq)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.SetBytes(int64(len(blob)))
	for b.Loop() {
		if _, err := Decode[uint64](Native, blob); err != nil {
			b.Fatal(err)
		}
	}
}
