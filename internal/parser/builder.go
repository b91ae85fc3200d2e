package parser

import (
	"strings"

	"github.com/shineum/mimeparse-lite/internal/codec"
	"github.com/shineum/mimeparse-lite/internal/email"
)

// TreeBuilder is a Sink that materializes the events into an email.Message
// tree. Its tokens are the tree nodes themselves: *email.Message,
// *email.BasicPart, *email.MultiPart and *email.MessagePart.
type TreeBuilder struct {
	NopSink
	root *email.Message
}

// NewTreeBuilder returns an empty builder.
func NewTreeBuilder() *TreeBuilder {
	return &TreeBuilder{}
}

// Message returns the root message, or nil before StartMessage.
func (b *TreeBuilder) Message() *email.Message {
	return b.root
}

func (b *TreeBuilder) StartMessage(parent Token) Token {
	m := &email.Message{}
	switch p := parent.(type) {
	case nil:
		b.root = m
	case *email.MessagePart:
		p.Message = m
	}
	return m
}

func (b *TreeBuilder) StartBasicPart(parent Token) Token {
	return attach(parent, &email.BasicPart{})
}

func (b *TreeBuilder) StartMultiPart(parent Token) Token {
	return attach(parent, &email.MultiPart{})
}

func (b *TreeBuilder) StartMessagePart(parent Token) Token {
	return attach(parent, &email.MessagePart{})
}

func attach(parent Token, part email.Part) Token {
	switch p := parent.(type) {
	case *email.Message:
		p.Body = part
	case *email.MultiPart:
		p.Parts = append(p.Parts, part)
	}
	return part
}

func (b *TreeBuilder) Header(tok Token, name, value string) {
	switch t := tok.(type) {
	case *email.Message:
		t.Headers = append(t.Headers, email.Header{Name: name, Value: value})
	case *email.MessagePart:
		t.ExternalHeaders = append(t.ExternalHeaders, email.Header{Name: name, Value: value})
	}
}

func (b *TreeBuilder) AddHeader(part Token, name, value string) {
	if info := infoOf(part); info != nil {
		info.Headers = append(info.Headers, email.Header{Name: name, Value: value})
	}
}

func (b *TreeBuilder) ContentType(part Token, value string) {
	if info := infoOf(part); info != nil {
		info.ContentType = value
	}
	if bp, ok := part.(*email.BasicPart); ok {
		bp.Type, _ = email.ParseBasicType(value)
	}
}

func (b *TreeBuilder) ContentSubType(part Token, value string) {
	if info := infoOf(part); info != nil {
		info.ContentSubType = value
	}
	if mp, ok := part.(*email.MessagePart); ok {
		mp.External = strings.EqualFold(value, "external-body")
	}
}

func (b *TreeBuilder) ContentTypeParams(part Token, value string) {
	if info := infoOf(part); info != nil {
		info.ContentTypeParams = value
	}
}

func (b *TreeBuilder) ContentDisposition(part Token, d email.Disposition) {
	if info := infoOf(part); info != nil {
		info.Disposition = d
	}
}

func (b *TreeBuilder) ContentDispParams(part Token, value string) {
	if info := infoOf(part); info != nil {
		info.DispositionParams = value
	}
}

func (b *TreeBuilder) ContentID(part Token, value string) {
	if info := infoOf(part); info != nil {
		info.ContentID = value
	}
}

func (b *TreeBuilder) ContentDescription(part Token, value string) {
	if info := infoOf(part); info != nil {
		info.ContentDescription = value
	}
}

func (b *TreeBuilder) ContentMD5(part Token, value string) {
	if info := infoOf(part); info != nil {
		info.ContentMD5 = value
	}
}

func (b *TreeBuilder) ContentEncoding(part Token, enc codec.Encoding) {
	if info := infoOf(part); info != nil {
		info.Encoding = enc
	}
}

func (b *TreeBuilder) Boundary(part Token, boundary string) {
	if mp, ok := part.(*email.MultiPart); ok {
		mp.Boundary = boundary
	}
}

func (b *TreeBuilder) BodyData(part Token, data []byte) {
	switch p := part.(type) {
	case *email.BasicPart:
		p.Body.Append(data)
	case *email.MultiPart:
		p.Preamble = append(p.Preamble, data...)
	}
}

func (b *TreeBuilder) bodyLines(part Token, start, end int) {
	if bp, ok := part.(*email.BasicPart); ok {
		bp.StartLine, bp.EndLine = start, end
	}
}

func infoOf(tok Token) *email.PartInfo {
	if p, ok := tok.(email.Part); ok {
		return p.Info()
	}
	return nil
}
