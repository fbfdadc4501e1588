// Package codec encodes sequences of fixed-width integers as length-prefixed
// blobs:
//
//	blob := len:u64 ‖ elem[0] ‖ elem[1] ‖ … ‖ elem[len-1]
//
// len is the element count, not the byte count. Elements are written at their
// natural width with no padding. The byte order is a property of the Codec;
// Native follows the host, so blobs written with it must not be moved between
// machines of different endianness. Use LittleEndian or BigEndian when blobs
// leave the host.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the width of the element-count prefix.
const HeaderSize = 8

var (
	// ErrTruncated is returned when the buffer ends inside the header or
	// inside an element.
	ErrTruncated = errors.New("codec: truncated blob")
	// ErrLengthOverflow is returned when the declared element count cannot fit
	// in the bytes that follow the header.
	ErrLengthOverflow = errors.New("codec: declared length exceeds buffer")
	// ErrTrailingBytes is returned by Decode when bytes remain after the
	// declared elements.
	ErrTrailingBytes = errors.New("codec: trailing bytes after blob")
)

// Integer is the set of element types a Codec can carry.
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Codec writes and reads blobs in a fixed byte order. The zero value is not
// usable; use Native, LittleEndian, BigEndian, or New.
type Codec struct {
	order binary.ByteOrder
}

var (
	Native       = New(binary.NativeEndian)
	LittleEndian = New(binary.LittleEndian)
	BigEndian    = New(binary.BigEndian)
)

// New returns a Codec using order.
func New(order binary.ByteOrder) Codec {
	return Codec{order: order}
}

// ByName maps a configured byte-order name to a Codec.
func ByName(name string) (Codec, error) {
	switch name {
	case "native", "":
		return Native, nil
	case "little":
		return LittleEndian, nil
	case "big":
		return BigEndian, nil
	default:
		return Codec{}, fmt.Errorf("codec: unknown byte order %q", name)
	}
}

// ByteOrder reports the order the Codec writes in.
func (c Codec) ByteOrder() binary.ByteOrder {
	return c.order
}

func (c Codec) String() string {
	return c.order.String()
}

// ElemSize returns the encoded width of one T.
func ElemSize[T Integer]() int {
	var zero T
	return binary.Size(zero)
}

// EncodedLen returns the blob size of an n-element sequence of T.
func EncodedLen[T Integer](n int) int {
	return HeaderSize + n*ElemSize[T]()
}

// Append writes the blob for seq to the end of dst and returns the extended
// slice. It writes exactly EncodedLen[T](len(seq)) bytes.
func Append[T Integer](c Codec, dst []byte, seq []T) ([]byte, error) {
	var header [HeaderSize]byte
	c.order.PutUint64(header[:], uint64(len(seq)))
	dst = append(dst, header[:]...)
	if len(seq) == 0 {
		return dst, nil
	}
	out, err := binary.Append(dst, c.order, seq)
	if err != nil {
		return nil, fmt.Errorf("codec: appending %d elements: %w", len(seq), err)
	}
	return out, nil
}

// Encode returns a freshly allocated blob for seq.
func Encode[T Integer](c Codec, seq []T) ([]byte, error) {
	return Append(c, make([]byte, 0, EncodedLen[T](len(seq))), seq)
}

// Read decodes one blob from the front of buf. It returns the elements and
// the number of bytes consumed; bytes past the blob are left untouched.
func Read[T Integer](c Codec, buf []byte) ([]T, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, fmt.Errorf("%w: %d header bytes, need %d", ErrTruncated, len(buf), HeaderSize)
	}
	n := c.order.Uint64(buf[:HeaderSize])
	size := ElemSize[T]()
	rest := buf[HeaderSize:]
	if n > uint64(len(rest)/size) {
		return nil, 0, fmt.Errorf("%w: %d elements of %d bytes, %d bytes available", ErrLengthOverflow, n, size, len(rest))
	}
	seq := make([]T, int(n))
	if n == 0 {
		return seq, HeaderSize, nil
	}
	consumed, err := binary.Decode(rest, c.order, seq)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return seq, HeaderSize + consumed, nil
}

// Decode decodes buf, which must hold exactly one blob.
func Decode[T Integer](c Codec, buf []byte) ([]T, error) {
	seq, n, err := Read[T](c, buf)
	if err != nil {
		return nil, err
	}
	if n != len(buf) {
		return nil, fmt.Errorf("%w: %d of %d bytes consumed", ErrTrailingBytes, n, len(buf))
	}
	return seq, nil
}
