package bytespan

import (
	"bytes"
	"encoding/binary"
	"io"
)

// minGrow is the smallest capacity a Buffer allocates.
const minGrow = 64

// Buffer is an owning, append-oriented byte buffer. Bytes between the read
// cursor and the write cursor are live; everything before the read cursor
// has been consumed and is reclaimed lazily.
//
// Any append may move the live bytes, which invalidates spans obtained from
// the buffer earlier. The zero value is an empty buffer ready to use.
type Buffer struct {
	buf []byte
	r   int // read cursor
	w   int // write cursor
}

// NewBuffer returns an empty buffer with at least size bytes of capacity.
func NewBuffer(size int) *Buffer {
	return &Buffer{buf: make([]byte, size)}
}

// Len returns the number of live bytes.
func (b *Buffer) Len() int { return b.w - b.r }

// Cap returns the size of the backing array.
func (b *Buffer) Cap() int { return len(b.buf) }

// Span returns a view of the live bytes.
func (b *Buffer) Span() Span { return Span{buf: b.buf, start: b.r, end: b.w} }

// Bytes returns the live bytes aliasing the buffer.
func (b *Buffer) Bytes() []byte { return b.buf[b.r:b.w:b.w] }

// String returns a copy of the live bytes.
func (b *Buffer) String() string { return string(b.Bytes()) }

// Reset empties the buffer, keeping its backing array.
func (b *Buffer) Reset() {
	b.r, b.w = 0, 0
}

// reserve makes room for n more bytes past the write cursor.
func (b *Buffer) reserve(n int) {
	if b.w+n <= len(b.buf) {
		return
	}
	// Reclaim the consumed prefix once it is more than half the array.
	if b.r > len(b.buf)/2 {
		b.compact()
		if b.w+n <= len(b.buf) {
			return
		}
	}
	live := b.w - b.r
	size := 2 * len(b.buf)
	if size < minGrow {
		size = minGrow
	}
	if size < live+n {
		size = live + n
	}
	nb := make([]byte, size)
	copy(nb, b.buf[b.r:b.w])
	b.buf = nb
	b.r, b.w = 0, live
}

// compact moves the live bytes to offset zero.
func (b *Buffer) compact() {
	live := copy(b.buf, b.buf[b.r:b.w])
	b.r, b.w = 0, live
}

// Append copies p to the end of the buffer.
func (b *Buffer) Append(p []byte) {
	b.reserve(len(p))
	b.w += copy(b.buf[b.w:], p)
}

// AppendString copies s to the end of the buffer.
func (b *Buffer) AppendString(s string) {
	b.reserve(len(s))
	b.w += copy(b.buf[b.w:], s)
}

// AppendByte appends a single byte.
func (b *Buffer) AppendByte(c byte) {
	b.reserve(1)
	b.buf[b.w] = c
	b.w++
}

// AppendSpan copies the bytes viewed by s. s may alias this buffer.
func (b *Buffer) AppendSpan(s Span) {
	if s.IsEmpty() {
		return
	}
	b.Append(s.Clone())
}

// AppendUint32 appends v in big-endian order.
func (b *Buffer) AppendUint32(v uint32) {
	b.reserve(4)
	binary.BigEndian.PutUint32(b.buf[b.w:], v)
	b.w += 4
}

// AppendUint64 appends v in big-endian order.
func (b *Buffer) AppendUint64(v uint64) {
	b.reserve(8)
	binary.BigEndian.PutUint64(b.buf[b.w:], v)
	b.w += 8
}

// Write implements io.Writer. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Append(p)
	return len(p), nil
}

// Discard consumes n live bytes.
func (b *Buffer) Discard(n int) error {
	if n < 0 || n > b.Len() {
		return ErrOutOfRange
	}
	b.r += n
	if b.r == b.w {
		b.Reset()
	}
	return nil
}

// ExtractUntil returns the live bytes before the first occurrence of delim
// and consumes them together with delim. ok is false when delim is absent,
// meaning more data is needed; nothing is consumed in that case.
//
// The returned span aliases the buffer and is valid until the next append.
func (b *Buffer) ExtractUntil(delim []byte) (line Span, ok bool) {
	i := bytes.Index(b.buf[b.r:b.w], delim)
	if i < 0 {
		return Span{}, false
	}
	line = Span{buf: b.buf, start: b.r, end: b.r + i}
	b.r += i + len(delim)
	return line, true
}

// DiscardLine consumes everything up to and including the next LF. A
// preceding CR is consumed with it.
func (b *Buffer) DiscardLine() error {
	i := bytes.IndexByte(b.buf[b.r:b.w], '\n')
	if i < 0 {
		return ErrOutOfRange
	}
	return b.Discard(i + 1)
}

// Read implements io.Reader over the live bytes, consuming what it returns.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.Len() == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b.buf[b.r:b.w])
	b.r += n
	if b.r == b.w {
		b.Reset()
	}
	return n, nil
}

// WriteTo implements io.WriterTo, draining the live bytes into w.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	live := b.Len()
	if live == 0 {
		return 0, nil
	}
	n, err := w.Write(b.buf[b.r:b.w])
	b.r += n
	if b.r == b.w {
		b.Reset()
	}
	if err == nil && n < live {
		err = io.ErrShortWrite
	}
	return int64(n), err
}
