// Package email defines the parsed message tree: a Message owning a header
// list and exactly one body Part, where a Part is a BasicPart, a MultiPart or
// a MessagePart.
package email

import (
	"strings"

	"github.com/shineum/mimeparse-lite/internal/bytespan"
	"github.com/shineum/mimeparse-lite/internal/codec"
)

// Header is a single header field. Values keep folded continuation lines,
// joined with CRLF.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header list. Duplicate names are kept in order.
type Headers []Header

// Get returns the first value for name (case-insensitive), or "".
func (h Headers) Get(name string) string {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value
		}
	}
	return ""
}

// GetAll returns every value for name (case-insensitive) in order.
func (h Headers) GetAll(name string) []string {
	var values []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			values = append(values, hdr.Value)
		}
	}
	return values
}

// Disposition is the Content-Disposition of a part.
type Disposition int

const (
	// Inline is the default disposition.
	Inline Disposition = iota
	// Attachment marks a part meant to be saved rather than displayed.
	Attachment
)

// String returns the header token for d.
func (d Disposition) String() string {
	if d == Attachment {
		return "attachment"
	}
	return "inline"
}

// ParseDisposition maps a disposition token to a Disposition. Anything
// other than "attachment" is Inline.
func ParseDisposition(token string) Disposition {
	if strings.EqualFold(strings.TrimSpace(token), "attachment") {
		return Attachment
	}
	return Inline
}

// BasicType is the primary content type of a BasicPart.
type BasicType int

const (
	Text BasicType = iota
	Audio
	Image
	Video
	Application
)

// String returns the primary type token for t.
func (t BasicType) String() string {
	switch t {
	case Audio:
		return "audio"
	case Image:
		return "image"
	case Video:
		return "video"
	case Application:
		return "application"
	default:
		return "text"
	}
}

// ParseBasicType maps a primary type token to a BasicType. ok is false for
// tokens that do not name a basic type.
func ParseBasicType(token string) (t BasicType, ok bool) {
	switch strings.ToLower(token) {
	case "text":
		return Text, true
	case "audio":
		return Audio, true
	case "image":
		return Image, true
	case "video":
		return Video, true
	case "application":
		return Application, true
	}
	return Text, false
}

// Message is the root of a parsed tree, or a message nested in a
// message/rfc822 part.
type Message struct {
	// Headers holds the message's non-MIME header fields in order. The
	// Content-* fields of the message header block are stored on the body
	// part's PartInfo.Headers instead; Get looks in both.
	Headers Headers
	// Body is the single body part. It is nil only for a message that ended
	// before its body started.
	Body Part
}

// Get returns the first value of name from the message headers, falling
// back to the body part's MIME headers.
func (m *Message) Get(name string) string {
	if v := m.Headers.Get(name); v != "" {
		return v
	}
	if m.Body != nil {
		return m.Body.Info().Headers.Get(name)
	}
	return ""
}

// Part is one of *BasicPart, *MultiPart or *MessagePart.
type Part interface {
	// Info returns the fields common to every part kind.
	Info() *PartInfo
	isPart()
}

// PartInfo holds the MIME fields shared by every part kind.
type PartInfo struct {
	// Headers holds the part's MIME header lines in order.
	Headers Headers

	ContentType        string // primary type, as written
	ContentSubType     string
	ContentTypeParams  string // raw parameter list after the first ';'
	Disposition        Disposition
	DispositionParams  string
	ContentID          string
	ContentDescription string
	ContentMD5         string
	Encoding           codec.Encoding
}

// Info returns p.
func (p *PartInfo) Info() *PartInfo { return p }

// MediaType returns "type/subtype" in lower case.
func (p *PartInfo) MediaType() string {
	return strings.ToLower(p.ContentType + "/" + p.ContentSubType)
}

// Param returns the named Content-Type parameter.
func (p *PartInfo) Param(name string) string {
	return Param(p.ContentTypeParams, name)
}

// Filename returns the disposition filename, falling back to the
// Content-Type name parameter.
func (p *PartInfo) Filename() string {
	if fn := Param(p.DispositionParams, "filename"); fn != "" {
		return fn
	}
	return p.Param("name")
}

// BasicPart is a leaf part holding decoded content.
type BasicPart struct {
	PartInfo

	Type BasicType
	// Body holds the decoded content.
	Body bytespan.Buffer
	// StartLine and EndLine are the 1-based input lines of the first and
	// last encoded body line, or zero when the body was empty.
	StartLine int
	EndLine   int
}

func (*BasicPart) isPart() {}

// Len returns the decoded body length.
func (p *BasicPart) Len() int { return p.Body.Len() }

// Bytes returns the decoded body.
func (p *BasicPart) Bytes() []byte { return p.Body.Bytes() }

// MultiPart is a container of child parts separated by a boundary.
type MultiPart struct {
	PartInfo

	Boundary string
	Parts    []Part
	// Preamble holds the bytes between the headers and the first boundary.
	Preamble []byte
}

func (*MultiPart) isPart() {}

// MessagePart encapsulates a message (message/rfc822) or describes an
// external body (message/external-body).
type MessagePart struct {
	PartInfo

	// Message is the encapsulated message; nil for external bodies.
	Message *Message
	// External reports a message/external-body part.
	External bool
	// ExternalHeaders holds the headers describing the external body.
	ExternalHeaders Headers
}

func (*MessagePart) isPart() {}

// Walk calls fn for every part under msg, depth first and in order,
// including the parts of nested messages. Walking stops early when fn
// returns false.
func Walk(msg *Message, fn func(p Part, depth int) bool) {
	if msg == nil || msg.Body == nil {
		return
	}
	walkPart(msg.Body, 0, fn)
}

func walkPart(p Part, depth int, fn func(Part, int) bool) bool {
	if !fn(p, depth) {
		return false
	}
	switch v := p.(type) {
	case *MultiPart:
		for _, child := range v.Parts {
			if !walkPart(child, depth+1, fn) {
				return false
			}
		}
	case *MessagePart:
		if v.Message != nil && v.Message.Body != nil {
			return walkPart(v.Message.Body, depth+1, fn)
		}
	}
	return true
}

// BasicParts returns every BasicPart under msg in walk order.
func BasicParts(msg *Message) []*BasicPart {
	var parts []*BasicPart
	Walk(msg, func(p Part, _ int) bool {
		if bp, ok := p.(*BasicPart); ok {
			parts = append(parts, bp)
		}
		return true
	})
	return parts
}
