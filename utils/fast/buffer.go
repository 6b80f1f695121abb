package fast

// Reader is a cursor over a byte slice. No bounds checks: reading past the
// end panics, callers recover at a higher level.
type Reader struct {
	buf    []byte
	offset int
}

// Writer is an append-only byte buffer.
type Writer struct {
	buf []byte
}

// NewReader wraps bb for reading.
func NewReader(bb []byte) *Reader {
	return &Reader{
		buf:    bb,
		offset: 0,
	}
}

// NewWriter wraps bb for writing.
func NewWriter(bb []byte) *Writer {
	return &Writer{
		buf: bb,
	}
}

// WriteByte appends a byte.
func (b *Writer) WriteByte(v byte) {
	b.buf = append(b.buf, v)
}

// Write appends a byte slice.
func (b *Writer) Write(v []byte) {
	b.buf = append(b.buf, v...)
}

// Read returns the next n bytes. The result shares memory with the
// underlying buffer.
func (b *Reader) Read(n int) []byte {
	res := b.buf[b.offset : b.offset+n]
	b.offset += n
	return res
}

// ReadByte returns the next byte.
func (b *Reader) ReadByte() byte {
	res := b.buf[b.offset]
	b.offset++
	return res
}

// Position returns the number of consumed bytes.
func (b *Reader) Position() int {
	return b.offset
}

// Bytes returns the underlying buffer.
func (b *Reader) Bytes() []byte {
	return b.buf
}

// Bytes returns the written content.
func (b *Writer) Bytes() []byte {
	return b.buf
}

// Empty returns true if the whole buffer was consumed.
func (b *Reader) Empty() bool {
	return len(b.buf) == b.offset
}
