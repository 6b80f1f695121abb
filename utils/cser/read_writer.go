package cser

import (
	"errors"
	"math/big"

	"github.com/cyclofinance/cy-ledger/utils/bits"
	"github.com/cyclofinance/cy-ledger/utils/fast"
)

var (
	// ErrNonCanonicalEncoding is returned when the value isn't packed minimally
	// or unused bits aren't zero.
	ErrNonCanonicalEncoding = errors.New("non canonical encoding")
	// ErrMalformedEncoding is returned when the structure is invalid or truncated.
	ErrMalformedEncoding = errors.New("malformed encoding")
	// ErrTooLargeAlloc is returned when a decoded size exceeds the allowed limit.
	ErrTooLargeAlloc = errors.New("too large allocation")
)

// MaxAlloc bounds decoded byte slices to prevent memory exhaustion on
// malformed input.
const MaxAlloc = 100 * 1024

// Writer writes to the two streams: bit-level flags and sizes, byte-level data.
type Writer struct {
	BitsW  *bits.Writer
	BytesW *fast.Writer
}

// Reader reads from the two streams.
type Reader struct {
	BitsR  *bits.Reader
	BytesR *fast.Reader
}

// NewWriter returns a ready writer with pre-allocated buffers.
func NewWriter() *Writer {
	return &Writer{
		BitsW:  bits.NewWriter(&bits.Array{Bytes: make([]byte, 0, 32)}),
		BytesW: fast.NewWriter(make([]byte, 0, 200)),
	}
}

// writeUint64Compact writes a varint where the MSB of a chunk marks the
// last byte.
func writeUint64Compact(bytesW *fast.Writer, v uint64) {
	for {
		chunk := v & 0b01111111
		v = v >> 7
		if v == 0 {
			chunk |= 0b10000000
		}
		bytesW.WriteByte(byte(chunk))
		if v == 0 {
			break
		}
	}
}

func readUint64Compact(bytesR *fast.Reader) uint64 {
	v := uint64(0)
	stop := false
	for i := 0; !stop; i++ {
		chunk := uint64(bytesR.ReadByte())
		stop = (chunk & 0b10000000) != 0
		word := chunk & 0b01111111
		v |= word << (i * 7)
		// a zero most significant chunk is never canonical
		if i > 0 && stop && word == 0 {
			panic(ErrNonCanonicalEncoding)
		}
	}
	return v
}

// writeUint64BitCompact writes little-endian bytes, minSize at minimum,
// returning the number of bytes written.
func writeUint64BitCompact(bytesW *fast.Writer, v uint64, minSize int) (size int) {
	for size < minSize || v != 0 {
		bytesW.WriteByte(byte(v))
		size++
		v = v >> 8
	}
	return
}

func readUint64BitCompact(bytesR *fast.Reader, size int) uint64 {
	var (
		v    uint64
		last byte
	)
	buf := bytesR.Read(size)
	for i, b := range buf {
		v |= uint64(b) << uint(8*i)
		last = b
	}
	// a zero most significant byte is never canonical
	if size > 1 && last == 0 {
		panic(ErrNonCanonicalEncoding)
	}
	return v
}

// readU64_bits reads the byte length from the bit stream and the value bytes
// from the byte stream.
func (r *Reader) readU64_bits(minSize int, bitsForSize int) uint64 {
	size := r.BitsR.Read(bitsForSize)
	size += uint(minSize)
	return readUint64BitCompact(r.BytesR, int(size))
}

func (w *Writer) writeU64_bits(minSize int, bitsForSize int, v uint64) {
	size := writeUint64BitCompact(w.BytesW, v, minSize)
	w.BitsW.Write(bitsForSize, uint(size-minSize))
}

// U8 writes uint8
func (w *Writer) U8(v uint8) {
	w.BytesW.WriteByte(v)
}

// U8 reads uint8
func (r *Reader) U8() uint8 {
	return r.BytesR.ReadByte()
}

// U16 writes uint16
func (w *Writer) U16(v uint16) {
	w.writeU64_bits(1, 1, uint64(v))
}

// U16 reads uint16
func (r *Reader) U16() uint16 {
	return uint16(r.readU64_bits(1, 1))
}

// U32 writes uint32
func (w *Writer) U32(v uint32) {
	w.writeU64_bits(1, 2, uint64(v))
}

// U32 reads uint32
func (r *Reader) U32() uint32 {
	return uint32(r.readU64_bits(1, 2))
}

// U64 writes uint64
func (w *Writer) U64(v uint64) {
	w.writeU64_bits(1, 3, v)
}

// U64 reads uint64
func (r *Reader) U64() uint64 {
	return r.readU64_bits(1, 3)
}

// VarUint writes a variable-size uint64
func (w *Writer) VarUint(v uint64) {
	w.writeU64_bits(1, 3, v)
}

// VarUint reads a variable-size uint64
func (r *Reader) VarUint() uint64 {
	return r.readU64_bits(1, 3)
}

// I64 writes a signed int64 as a sign bit plus the absolute value.
func (w *Writer) I64(v int64) {
	w.Bool(v < 0)
	if v < 0 {
		w.U64(uint64(-v))
	} else {
		w.U64(uint64(v))
	}
}

// I64 reads a signed int64.
func (r *Reader) I64() int64 {
	neg := r.Bool()
	abs := r.U64()
	// negative zero is never canonical
	if neg && abs == 0 {
		panic(ErrNonCanonicalEncoding)
	}
	if neg {
		return -int64(abs)
	}
	return int64(abs)
}

// I32 writes a signed int32 as a sign bit plus the absolute value.
func (w *Writer) I32(v int32) {
	w.I64(int64(v))
}

// I32 reads a signed int32.
func (r *Reader) I32() int32 {
	return int32(r.I64())
}

// U56 writes a uint below 2^56, used for slice lengths.
func (w *Writer) U56(v uint64) {
	const max = 1<<(8*7) - 1
	if v > max {
		panic("value too big")
	}
	w.writeU64_bits(0, 3, v)
}

// U56 reads a uint below 2^56.
func (r *Reader) U56() uint64 {
	return r.readU64_bits(0, 3)
}

// Bool writes a single bit into the bit stream.
func (w *Writer) Bool(v bool) {
	u8 := uint(0)
	if v {
		u8 = 1
	}
	w.BitsW.Write(1, u8)
}

// Bool reads a single bit.
func (r *Reader) Bool() bool {
	return r.BitsR.Read(1) != 0
}

// FixedBytes writes a raw byte string without a length prefix.
func (w *Writer) FixedBytes(v []byte) {
	w.BytesW.Write(v)
}

// FixedBytes reads len(v) raw bytes into v.
func (r *Reader) FixedBytes(v []byte) {
	copy(v, r.BytesR.Read(len(v)))
}

// SliceBytes writes a length-prefixed byte string.
func (w *Writer) SliceBytes(v []byte) {
	w.U56(uint64(len(v)))
	w.FixedBytes(v)
}

// SliceBytes reads a length-prefixed byte string of at most maxLen bytes.
func (r *Reader) SliceBytes(maxLen int) []byte {
	size := r.U56()
	if size > uint64(maxLen) {
		panic(ErrTooLargeAlloc)
	}
	buf := make([]byte, size)
	r.FixedBytes(buf)
	return buf
}

// PaddedBytes left-pads b with zeroes to at least n bytes.
func PaddedBytes(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	padding := make([]byte, n-len(b))
	return append(padding, b...)
}

// BigInt writes the magnitude of a non-negative big integer.
func (w *Writer) BigInt(v *big.Int) {
	bigBytes := []byte{}
	if v.Sign() != 0 {
		bigBytes = v.Bytes()
	}
	w.SliceBytes(bigBytes)
}

// BigInt reads a non-negative big integer.
func (r *Reader) BigInt() *big.Int {
	buf := r.SliceBytes(512)
	if len(buf) == 0 {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(buf)
}

// SignedBigInt writes a big integer as a sign bit plus the magnitude.
func (w *Writer) SignedBigInt(v *big.Int) {
	w.Bool(v.Sign() < 0)
	w.BigInt(new(big.Int).Abs(v))
}

// SignedBigInt reads a big integer written by SignedBigInt.
func (r *Reader) SignedBigInt() *big.Int {
	neg := r.Bool()
	abs := r.BigInt()
	// negative zero is never canonical
	if neg && abs.Sign() == 0 {
		panic(ErrNonCanonicalEncoding)
	}
	if neg {
		return abs.Neg(abs)
	}
	return abs
}
