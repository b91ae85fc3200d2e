package parser

import (
	"github.com/shineum/mimeparse-lite/internal/codec"
	"github.com/shineum/mimeparse-lite/internal/email"
)

// Token is an opaque value a Sink returns from a Start call. The parser
// passes it back on every later event about the same message or part.
type Token any

// Sink receives parse events synchronously, in input order.
//
// Every Start method gets the token of the enclosing message, multipart or
// message part (nil for the root message), so a sink does not need a stack
// of its own. Byte slices passed to BodyData are only valid during the call.
type Sink interface {
	StartMessage(parent Token) Token
	// EndMessageHeader is called once the message's header block is done
	// and its body part exists.
	EndMessageHeader(msg Token)
	EndMessage(msg Token)

	StartBasicPart(parent Token) Token
	EndBasicPart(part Token)
	StartMultiPart(parent Token) Token
	EndMultiPart(part Token)
	StartMessagePart(parent Token) Token
	EndMessagePart(part Token)

	// Header delivers a message header field. When tok is a message part
	// token the field belongs to an external-body reference.
	Header(tok Token, name, value string)
	// AddHeader delivers a MIME header line of a body part, in order.
	AddHeader(part Token, name, value string)

	ContentType(part Token, value string)
	ContentSubType(part Token, value string)
	ContentTypeParams(part Token, value string)
	ContentDisposition(part Token, d email.Disposition)
	ContentDispParams(part Token, value string)
	ContentID(part Token, value string)
	ContentDescription(part Token, value string)
	ContentMD5(part Token, value string)
	ContentEncoding(part Token, enc codec.Encoding)
	Boundary(part Token, boundary string)

	// BodyData delivers decoded body bytes of a basic part, or preamble
	// bytes when part is a multipart token.
	BodyData(part Token, data []byte)
}

// NopSink ignores every event. Embed it to implement only some methods.
type NopSink struct{}

var _ Sink = NopSink{}

func (NopSink) StartMessage(Token) Token { return nil }
func (NopSink) EndMessageHeader(Token) {}
func (NopSink) EndMessage(Token) {}
func (NopSink) StartBasicPart(Token) Token { return nil }
func (NopSink) EndBasicPart(Token) {}
func (NopSink) StartMultiPart(Token) Token { return nil }
func (NopSink) EndMultiPart(Token) {}
func (NopSink) StartMessagePart(Token) Token { return nil }
func (NopSink) EndMessagePart(Token) {}
func (NopSink) Header(Token, string, string) {}
func (NopSink) AddHeader(Token, string, string) {}
func (NopSink) ContentType(Token, string) {}
func (NopSink) ContentSubType(Token, string) {}
func (NopSink) ContentTypeParams(Token, string) {}
func (NopSink) ContentDisposition(Token, email.Disposition) {}
func (NopSink) ContentDispParams(Token, string) {}
func (NopSink) ContentID(Token, string) {}
func (NopSink) ContentDescription(Token, string) {}
func (NopSink) ContentMD5(Token, string) {}
func (NopSink) ContentEncoding(Token, codec.Encoding) {}
func (NopSink) Boundary(Token, string) {}
func (NopSink) BodyData(Token, []byte) {}

// lineRecorder is implemented by sinks that want the input line range of
// each basic part's body.
type lineRecorder interface {
	bodyLines(part Token, start, end int)
}
