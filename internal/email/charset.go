package email

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// ErrUnknownCharset is returned when a charset label names no known encoding.
var ErrUnknownCharset = errors.New("email: unknown charset")

// LookupCharset returns the encoding for a MIME charset label. It reports
// nil for labels that need no conversion (empty, us-ascii, utf-8).
func LookupCharset(label string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "us-ascii", "ascii", "utf-8", "utf8":
		return nil, nil
	}
	enc, _ := ianaindex.MIME.Encoding(label)
	if enc == nil {
		enc, _ = ianaindex.IANA.Encoding(label)
	}
	if enc == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCharset, label)
	}
	return enc, nil
}

// Text returns the decoded body converted to UTF-8 according to the
// Content-Type charset parameter.
func (p *BasicPart) Text() (string, error) {
	enc, err := LookupCharset(p.Param("charset"))
	if err != nil {
		return "", err
	}
	if enc == nil {
		return string(p.Bytes()), nil
	}
	out, err := enc.NewDecoder().Bytes(p.Bytes())
	if err != nil {
		return "", fmt.Errorf("failed to decode %s body: %w", p.Param("charset"), err)
	}
	return string(out), nil
}
