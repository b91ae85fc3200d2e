package parser

import (
	"strings"

	"github.com/shineum/mimeparse-lite/internal/bytespan"
)

// lineKind is the classification of one input line.
type lineKind int

const (
	lineBody lineKind = iota
	lineBlank
	lineContinuation
	lineHeader
	lineContent   // content-* header
	lineExtension // x-* header
	lineMalformed
	lineStartBoundary
	lineEndBoundary
)

func (k lineKind) String() string {
	switch k {
	case lineBlank:
		return "blank"
	case lineContinuation:
		return "continuation"
	case lineHeader:
		return "header"
	case lineContent:
		return "content"
	case lineExtension:
		return "extension"
	case lineMalformed:
		return "malformed"
	case lineStartBoundary:
		return "start-boundary"
	case lineEndBoundary:
		return "end-boundary"
	default:
		return "body"
	}
}

var dashes = []byte("--")

// classifyLine classifies line in the parser's current mode. For boundary
// lines it also returns the stack index of the matching multipart.
func (p *Parser) classifyLine(line bytespan.Span) (lineKind, int) {
	if kind, idx := p.checkBoundary(line); idx >= 0 {
		return kind, idx
	}
	if p.mode != modeHeader {
		return lineBody, -1
	}
	return classifyHeaderLine(line), -1
}

// checkBoundary matches line against the delimiters of the open multiparts,
// innermost first. At most two trailing blanks are ignored. idx is -1 when
// nothing matches.
func (p *Parser) checkBoundary(line bytespan.Span) (kind lineKind, idx int) {
	if p.multiparts == 0 || !line.HasPrefix(dashes) {
		return lineBody, -1
	}
	t := line.TrimRightN(2)
	for i := len(p.stack) - 1; i >= 0; i-- {
		f := p.stack[i]
		if f.kind != frameMultipart {
			continue
		}
		switch {
		case t.Equal(f.delim):
			return lineStartBoundary, i
		case t.Len() == len(f.delim)+2 && t.HasPrefix(f.delim) && t.HasSuffix(dashes):
			return lineEndBoundary, i
		}
	}
	return lineBody, -1
}

// classifyHeaderLine classifies a line seen while reading a header block.
// Lines that do not look like a field are reported as body so the caller
// can fall back to treating them as content.
func classifyHeaderLine(line bytespan.Span) lineKind {
	if line.IsEmpty() {
		return lineBlank
	}
	if c := line.First(); c == ' ' || c == '\t' {
		return lineContinuation
	}
	name, _, ok := line.Cut(':')
	if !ok {
		return lineBody
	}
	name = trimRight(name)
	if name.IsEmpty() {
		return lineMalformed
	}
	for _, c := range name.Bytes() {
		switch {
		case c == ' ' || c == '\t':
			return lineBody
		case c < 0x21 || c == 0x7f:
			return lineMalformed
		}
	}
	switch {
	case name.HasPrefixFold("content-"):
		return lineContent
	case name.HasPrefixFold("x-"):
		return lineExtension
	}
	return lineHeader
}

// splitHeader splits a field line into its name and its value with
// surrounding blanks removed.
func splitHeader(line bytespan.Span) (name, value string) {
	n, v, _ := line.Cut(':')
	return trimRight(n).String(), v.TrimSpace().String()
}

func trimRight(s bytespan.Span) bytespan.Span {
	return s.TrimRightN(s.Len())
}

// splitContentType splits a Content-Type value into the primary type, the
// subtype and the raw parameter list after the first ';'.
func splitContentType(value string) (primary, sub, params string) {
	mediaType, params, _ := strings.Cut(value, ";")
	primary, sub, _ = strings.Cut(mediaType, "/")
	return strings.TrimSpace(primary), strings.TrimSpace(sub), strings.TrimSpace(params)
}

// splitDisposition splits a Content-Disposition value into its token and
// its raw parameter list.
func splitDisposition(value string) (token, params string) {
	token, params, _ = strings.Cut(value, ";")
	return strings.TrimSpace(token), strings.TrimSpace(params)
}

func isContentHeader(name string) bool {
	return len(name) >= 8 && strings.EqualFold(name[:8], "content-")
}
