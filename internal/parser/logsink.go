package parser

import (
	"log/slog"
	"reflect"

	"github.com/shineum/mimeparse-lite/internal/codec"
	"github.com/shineum/mimeparse-lite/internal/email"
)

// LogSink logs every event at debug level and forwards it to another sink.
// Tokens returned by the wrapped sink are passed through unchanged; each
// start event is numbered so related log lines can be matched up.
type LogSink struct {
	next   Sink
	logger *slog.Logger
	ids    map[Token]int
	seq    int
}

// NewLogSink wraps next. A nil logger uses slog.Default().
func NewLogSink(next Sink, logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{next: next, logger: logger, ids: make(map[Token]int)}
}

func (s *LogSink) start(event string, parent, tok Token) Token {
	s.seq++
	if tok != nil && isComparable(tok) {
		s.ids[tok] = s.seq
	}
	s.logger.Debug("mime event", "event", event, "id", s.seq, "parent", s.id(parent))
	return tok
}

func (s *LogSink) event(event string, tok Token, args ...any) {
	s.logger.Debug("mime event", append([]any{"event", event, "id", s.id(tok)}, args...)...)
}

func (s *LogSink) id(tok Token) int {
	if tok == nil || !isComparable(tok) {
		return 0
	}
	return s.ids[tok]
}

// isComparable reports whether tok can be used as a map key. It checks the
// dynamic value, so a struct token whose interface field holds a slice is
// rejected.
func isComparable(tok Token) bool {
	return reflect.ValueOf(tok).Comparable()
}

func (s *LogSink) StartMessage(parent Token) Token {
	return s.start("start_message", parent, s.next.StartMessage(parent))
}

func (s *LogSink) EndMessageHeader(msg Token) {
	s.event("end_message_header", msg)
	s.next.EndMessageHeader(msg)
}

func (s *LogSink) EndMessage(msg Token) {
	s.event("end_message", msg)
	s.next.EndMessage(msg)
}

func (s *LogSink) StartBasicPart(parent Token) Token {
	return s.start("start_basic_part", parent, s.next.StartBasicPart(parent))
}

func (s *LogSink) EndBasicPart(part Token) {
	s.event("end_basic_part", part)
	s.next.EndBasicPart(part)
}

func (s *LogSink) StartMultiPart(parent Token) Token {
	return s.start("start_multipart", parent, s.next.StartMultiPart(parent))
}

func (s *LogSink) EndMultiPart(part Token) {
	s.event("end_multipart", part)
	s.next.EndMultiPart(part)
}

func (s *LogSink) StartMessagePart(parent Token) Token {
	return s.start("start_message_part", parent, s.next.StartMessagePart(parent))
}

func (s *LogSink) EndMessagePart(part Token) {
	s.event("end_message_part", part)
	s.next.EndMessagePart(part)
}

func (s *LogSink) Header(tok Token, name, value string) {
	s.event("header", tok, "name", name, "value", value)
	s.next.Header(tok, name, value)
}

func (s *LogSink) AddHeader(part Token, name, value string) {
	s.event("add_header", part, "name", name, "value", value)
	s.next.AddHeader(part, name, value)
}

func (s *LogSink) ContentType(part Token, value string) {
	s.event("content_type", part, "value", value)
	s.next.ContentType(part, value)
}

func (s *LogSink) ContentSubType(part Token, value string) {
	s.event("content_subtype", part, "value", value)
	s.next.ContentSubType(part, value)
}

func (s *LogSink) ContentTypeParams(part Token, value string) {
	s.event("content_type_params", part, "value", value)
	s.next.ContentTypeParams(part, value)
}

func (s *LogSink) ContentDisposition(part Token, d email.Disposition) {
	s.event("content_disposition", part, "value", d.String())
	s.next.ContentDisposition(part, d)
}

func (s *LogSink) ContentDispParams(part Token, value string) {
	s.event("content_disp_params", part, "value", value)
	s.next.ContentDispParams(part, value)
}

func (s *LogSink) ContentID(part Token, value string) {
	s.event("content_id", part, "value", value)
	s.next.ContentID(part, value)
}

func (s *LogSink) ContentDescription(part Token, value string) {
	s.event("content_description", part, "value", value)
	s.next.ContentDescription(part, value)
}

func (s *LogSink) ContentMD5(part Token, value string) {
	s.event("content_md5", part, "value", value)
	s.next.ContentMD5(part, value)
}

func (s *LogSink) ContentEncoding(part Token, enc codec.Encoding) {
	s.event("content_encoding", part, "value", enc.String())
	s.next.ContentEncoding(part, enc)
}

func (s *LogSink) Boundary(part Token, boundary string) {
	s.event("boundary", part, "value", boundary)
	s.next.Boundary(part, boundary)
}

func (s *LogSink) BodyData(part Token, data []byte) {
	s.event("body_data", part, "bytes", len(data))
	s.next.BodyData(part, data)
}

func (s *LogSink) bodyLines(part Token, start, end int) {
	if r, ok := s.next.(lineRecorder); ok {
		r.bodyLines(part, start, end)
	}
}
