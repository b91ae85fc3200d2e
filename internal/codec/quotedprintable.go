package codec

import (
	"io"
)

const upperHex = "0123456789ABCDEF"

// qpMaxColumn is the last column a token may end on, leaving room for the
// '=' of a soft line break.
const qpMaxColumn = LineLength - 1

// EncodeQuotedPrintable returns the Quoted-Printable encoding of src.
//
// Printable ASCII other than '=' passes through, as do spaces and tabs
// inside a line. A line ending in a space or tab, and a line consisting of
// a single '.', is closed with a soft break so the encoded line never ends
// that way. Everything else is escaped as =XX. Output lines are wrapped at
// LineLength with soft breaks and every input line break (LF or CRLF)
// becomes CRLF.
func EncodeQuotedPrintable(src []byte) []byte {
	out := make([]byte, 0, len(src)+len(src)/8)
	for len(src) > 0 {
		line := src
		rest := []byte(nil)
		hardBreak := false
		if i := indexLF(src); i >= 0 {
			line, rest = src[:i], src[i+1:]
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			hardBreak = true
		}
		out = encodeQPLine(out, line)
		if hardBreak {
			out = append(out, '\r', '\n')
		}
		src = rest
	}
	return out
}

// EncodeQuotedPrintableReader encodes everything read from r.
func EncodeQuotedPrintableReader(r io.Reader) ([]byte, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return EncodeQuotedPrintable(src), nil
}

func encodeQPLine(out, line []byte) []byte {
	col := 0
	emit := func(tok ...byte) {
		if col+len(tok) > qpMaxColumn {
			out = append(out, '=', '\r', '\n')
			col = 0
		}
		out = append(out, tok...)
		col += len(tok)
	}
	if len(line) == 1 && line[0] == '.' {
		emit('.')
		return append(out, '=', '\r', '\n')
	}
	for i, c := range line {
		switch {
		case c == ' ' || c == '\t':
			emit(c)
			if i == len(line)-1 {
				out = append(out, '=', '\r', '\n')
			}
		case c >= 0x21 && c <= 0x7e && c != '=':
			emit(c)
		default:
			emit('=', upperHex[c>>4], upperHex[c&0x0f])
		}
	}
	return out
}

func indexLF(b []byte) int {
	for i, c := range b {
		if c == '\n' {
			return i
		}
	}
	return -1
}

// QPDecoder decodes Quoted-Printable incrementally. An escape split across
// calls is carried to the next call. Hard line breaks (LF or CRLF) decode
// to CRLF; soft breaks ("=" followed by a line break) decode to nothing.
// The zero value is ready to use.
type QPDecoder struct {
	eq     bool    // an '=' is pending
	carry  [1]byte // byte seen after the pending '='
	n      int     // number of bytes in carry
	lastCR bool    // previous literal output byte was CR
}

// Decode appends the bytes decoded from src to dst. On a malformed escape
// it returns what was decoded so far and ErrInvalidEscapeSequence.
func (d *QPDecoder) Decode(dst, src []byte) ([]byte, error) {
	for _, c := range src {
		if d.eq {
			if d.n == 0 {
				switch {
				case c == '\n':
					d.eq = false
				case c == '\r' || isHex(c):
					d.carry[0] = c
					d.n = 1
				default:
					d.reset()
					return dst, ErrInvalidEscapeSequence
				}
				continue
			}
			first := d.carry[0]
			switch {
			case first == '\r' && c == '\n':
			case first != '\r' && isHex(c):
				dst = append(dst, unhex(first)<<4|unhex(c))
			default:
				d.reset()
				return dst, ErrInvalidEscapeSequence
			}
			d.eq, d.n = false, 0
			continue
		}
		switch c {
		case '=':
			d.eq = true
			d.lastCR = false
			continue
		case '\n':
			if !d.lastCR {
				dst = append(dst, '\r')
			}
			dst = append(dst, '\n')
		default:
			dst = append(dst, c)
		}
		d.lastCR = c == '\r'
	}
	return dst, nil
}

// Flush ends the input. A dangling '=' (optionally followed by CR) is a
// soft break at end of input; a half escape is an error. The decoder is
// reset either way.
func (d *QPDecoder) Flush(dst []byte) ([]byte, error) {
	defer d.reset()
	if d.eq && d.n == 1 && d.carry[0] != '\r' {
		return dst, ErrInvalidEscapeSequence
	}
	return dst, nil
}

// Pending reports whether the decoder holds part of an escape.
func (d *QPDecoder) Pending() bool { return d.eq }

func (d *QPDecoder) reset() {
	*d = QPDecoder{}
}

// DecodeQuotedPrintable decodes src in one call.
func DecodeQuotedPrintable(src []byte) ([]byte, error) {
	var d QPDecoder
	dst, err := d.Decode(make([]byte, 0, len(src)), src)
	if err != nil {
		return nil, err
	}
	return d.Flush(dst)
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
