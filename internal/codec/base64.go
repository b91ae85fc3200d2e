package codec

import (
	"bytes"
	"io"
)

// LineLength is the maximum encoded line length, excluding CRLF.
const LineLength = 76

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// base64Values maps an ASCII byte to its 6-bit value, or -1 for bytes
// outside the alphabet (including '=').
var base64Values = func() [128]int8 {
	var t [128]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(base64Alphabet); i++ {
		t[base64Alphabet[i]] = int8(i)
	}
	return t
}()

// Base64Encoder is an io.WriteCloser that base64-encodes what is written to
// it, wrapping lines at LineLength with CRLF. Close flushes the final
// padded group; it does not close the underlying writer.
type Base64Encoder struct {
	w    io.Writer
	rem  [3]byte
	nrem int
	col  int
	out  []byte
	err  error
}

// NewBase64Encoder returns an encoder writing to w.
func NewBase64Encoder(w io.Writer) *Base64Encoder {
	return &Base64Encoder{w: w}
}

func (e *Base64Encoder) group(b0, b1, b2 byte, n int) {
	if e.col == LineLength {
		e.out = append(e.out, '\r', '\n')
		e.col = 0
	}
	v := uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2)
	e.out = append(e.out,
		base64Alphabet[v>>18&0x3f],
		base64Alphabet[v>>12&0x3f])
	switch n {
	case 1:
		e.out = append(e.out, '=', '=')
	case 2:
		e.out = append(e.out, base64Alphabet[v>>6&0x3f], '=')
	default:
		e.out = append(e.out, base64Alphabet[v>>6&0x3f], base64Alphabet[v&0x3f])
	}
	e.col += 4
}

// Write encodes p. Bytes that do not complete a 3-byte group are held until
// the next Write or Close.
func (e *Base64Encoder) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n := len(p)
	e.out = e.out[:0]
	for len(p) > 0 {
		if e.nrem > 0 || len(p) < 3 {
			e.rem[e.nrem] = p[0]
			e.nrem++
			p = p[1:]
			if e.nrem == 3 {
				e.group(e.rem[0], e.rem[1], e.rem[2], 3)
				e.nrem = 0
			}
			continue
		}
		e.group(p[0], p[1], p[2], 3)
		p = p[3:]
	}
	if len(e.out) > 0 {
		_, e.err = e.w.Write(e.out)
	}
	if e.err != nil {
		return 0, e.err
	}
	return n, nil
}

// Close flushes a final short group with '=' padding.
func (e *Base64Encoder) Close() error {
	if e.err != nil {
		return e.err
	}
	if e.nrem == 0 {
		return nil
	}
	e.out = e.out[:0]
	var b [3]byte
	copy(b[:], e.rem[:e.nrem])
	e.group(b[0], b[1], b[2], e.nrem)
	e.nrem = 0
	_, e.err = e.w.Write(e.out)
	return e.err
}

// EncodeBase64 returns the line-wrapped base64 encoding of src.
func EncodeBase64(src []byte) []byte {
	var buf bytes.Buffer
	enc := NewBase64Encoder(&buf)
	enc.Write(src)
	enc.Close()
	return buf.Bytes()
}

// EncodeBase64Reader encodes everything read from r.
func EncodeBase64Reader(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	enc := NewBase64Encoder(&buf)
	if _, err := io.Copy(enc, r); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Base64Decoder decodes base64 incrementally. Bytes outside the alphabet,
// including '=' and line breaks, are skipped. The zero value is ready to use.
type Base64Decoder struct {
	value uint32 // pending bits, right-aligned
	bits  uint   // number of pending bits, always < 24
}

// Decode appends the bytes decoded from src to dst. Bits that do not yet
// form a whole 3-byte group are carried to the next call.
func (d *Base64Decoder) Decode(dst, src []byte) []byte {
	for _, c := range src {
		if c >= 128 {
			continue
		}
		v := base64Values[c]
		if v < 0 {
			continue
		}
		d.value = d.value<<6 | uint32(v)
		d.bits += 6
		if d.bits == 24 {
			dst = append(dst, byte(d.value>>16), byte(d.value>>8), byte(d.value))
			d.value, d.bits = 0, 0
		}
	}
	return dst
}

// Flush appends any whole bytes left in the carry and resets the decoder.
// A trailing incomplete byte is discarded.
func (d *Base64Decoder) Flush(dst []byte) []byte {
	n := d.bits / 8
	v := d.value >> (d.bits - n*8)
	for i := int(n) - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(uint(i)*8)))
	}
	d.value, d.bits = 0, 0
	return dst
}

// Pending reports whether the decoder holds carried bits.
func (d *Base64Decoder) Pending() bool { return d.bits > 0 }

// DecodeBase64 decodes src in one call.
func DecodeBase64(src []byte) []byte {
	var d Base64Decoder
	dst := make([]byte, 0, len(src)*3/4+3)
	dst = d.Decode(dst, src)
	return d.Flush(dst)
}
