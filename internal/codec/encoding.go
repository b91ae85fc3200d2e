// Package codec implements the MIME content transfer encodings used by the
// parser: Base64 and Quoted-Printable, each with a one-shot form and an
// incremental form that carries partial state across calls.
package codec

import (
	"errors"
	"strings"
)

// ErrInvalidEscapeSequence is returned when a Quoted-Printable "=" is
// followed by something other than two hex digits or a line break.
var ErrInvalidEscapeSequence = errors.New("codec: invalid quoted-printable escape sequence")

// Encoding is a Content-Transfer-Encoding.
type Encoding int

const (
	// SevenBit is the default encoding; bodies pass through unchanged.
	SevenBit Encoding = iota
	// EightBit bodies pass through unchanged.
	EightBit
	// Binary bodies pass through unchanged.
	Binary
	// QuotedPrintable bodies are decoded with the QP decoder.
	QuotedPrintable
	// Base64 bodies are decoded with the Base64 decoder.
	Base64
)

// String returns the canonical header value for e.
func (e Encoding) String() string {
	switch e {
	case EightBit:
		return "8bit"
	case Binary:
		return "binary"
	case QuotedPrintable:
		return "quoted-printable"
	case Base64:
		return "base64"
	default:
		return "7bit"
	}
}

// ParseEncoding maps a Content-Transfer-Encoding header value to an
// Encoding. Unrecognized values map to SevenBit.
func ParseEncoding(value string) Encoding {
	v := strings.ToLower(strings.TrimSpace(value))
	if i := strings.IndexAny(v, " \t\r\n;("); i >= 0 {
		v = v[:i]
	}
	switch v {
	case "base64":
		return Base64
	case "qp", "quoted-printable":
		return QuotedPrintable
	case "8bit":
		return EightBit
	case "binary":
		return Binary
	default:
		return SevenBit
	}
}
