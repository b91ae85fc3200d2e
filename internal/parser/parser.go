// Package parser implements an incremental, line-oriented MIME parser.
//
// Input arrives in chunks of any size through Parse; line boundaries need
// not line up with chunk boundaries. The parser either reports the message
// structure to a Sink as it goes (streaming mode, see WithSink) or builds a
// complete email.Message tree returned by EndParse (batch mode).
package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shineum/mimeparse-lite/internal/bytespan"
	"github.com/shineum/mimeparse-lite/internal/codec"
	"github.com/shineum/mimeparse-lite/internal/email"
)

const (
	// DefaultMaxLineLength is the longest line accepted by default.
	DefaultMaxLineLength = 1 << 20
	// DefaultChunkSize is the read size used by ParseReader when none is given.
	DefaultChunkSize = 32 << 10

	// defaultBoundary is used for a multipart without a boundary parameter.
	defaultBoundary = "-----"
)

var (
	lf   = []byte("\n")
	crlf = []byte("\r\n")
)

type mode int

const (
	modeHeader   mode = iota // reading a header block
	modeBody                 // reading a basic part's body
	modePreamble             // inside a multipart, before its first boundary
	modeEpilogue             // after a multipart's end boundary
	modeExternal             // after the headers of an external body
)

type frameKind int

const (
	frameMessage frameKind = iota
	frameMultipart
	frameMessagePart
)

// frame is an open container on the parser stack.
type frame struct {
	kind         frameKind
	tok          Token
	delim        []byte // "--" + boundary, multipart only
	seenBoundary bool
	startedData  bool // preamble capture is over
}

type blockKind int

const (
	blockMessage  blockKind = iota // message headers plus its body part's MIME headers
	blockPart                      // MIME headers of a multipart body part
	blockExternal                  // headers of a message/external-body reference
)

type partKind int

const (
	partBasic partKind = iota
	partMulti
	partMessage
)

// partState is the body part created by a header block.
type partState struct {
	kind     partKind
	tok      Token
	enc      codec.Encoding
	boundary string
	external bool
}

// headerBlock is a header block being read. Headers that need the part's
// content type are queued until the Content-Type field arrives.
type headerBlock struct {
	kind   blockKind
	parent Token // message token, multipart token or message part token
	part   *partState
	queue  []email.Header

	name    string
	value   strings.Builder
	pending bool
}

// bodyState is the basic part currently receiving body lines.
type bodyState struct {
	tok Token
	enc codec.Encoding

	b64 codec.Base64Decoder
	qp  codec.QPDecoder
	raw bytespan.Buffer // encoded body, batch mode only

	// term is the terminator of the previous body line. It is written only
	// once another body line follows, or at end of input.
	term []byte

	startLine, endLine int
}

// Parser is a single-use-at-a-time MIME parser. Call BeginParse, then Parse
// any number of times, then EndParse. A Parser is not safe for concurrent
// use.
type Parser struct {
	logger    *slog.Logger
	maxLine   int
	sink      Sink
	streaming bool

	out     Sink
	builder *TreeBuilder

	started bool
	ended   bool
	err     error
	line    int

	carry      bytespan.Buffer
	mode       mode
	stack      []*frame
	multiparts int
	block      *headerBlock
	body       *bodyState
	blank      int
	scratch    []byte
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for soft-recovery diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMaxLineLength sets the longest accepted line, excluding its
// terminator. Values <= 0 keep the default.
func WithMaxLineLength(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxLine = n
		}
	}
}

// WithSink selects streaming mode: events go to sink and EndParse returns
// no tree. Body data is decoded line by line.
func WithSink(sink Sink) Option {
	return func(p *Parser) {
		p.sink = sink
	}
}

// New returns a parser configured by opts.
func New(opts ...Option) *Parser {
	p := &Parser{
		logger:  slog.Default(),
		maxLine: DefaultMaxLineLength,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.streaming = p.sink != nil
	return p
}

// BeginParse starts a new message, discarding any previous parse state.
func (p *Parser) BeginParse() {
	p.builder = nil
	p.out = p.sink
	if !p.streaming {
		p.builder = NewTreeBuilder()
		p.out = p.builder
	}
	p.started, p.ended = true, false
	p.err = nil
	p.line = 0
	p.carry.Reset()
	p.stack = p.stack[:0]
	p.multiparts = 0
	p.body = nil
	p.blank = 0

	msg := p.out.StartMessage(nil)
	p.push(&frame{kind: frameMessage, tok: msg})
	p.block = &headerBlock{kind: blockMessage, parent: msg}
	p.mode = modeHeader
}

// Parse consumes the next chunk of input. A line split across chunks is
// carried over to the next call. Once Parse fails, every later call
// returns the same error.
func (p *Parser) Parse(chunk []byte) error {
	if err := p.check(); err != nil {
		return err
	}
	p.carry.Append(chunk)
	for {
		line, ok := p.carry.ExtractUntil(lf)
		if !ok {
			break
		}
		term := lf
		if !line.IsEmpty() && line.Last() == '\r' {
			line, _ = line.Slice(0, line.Len()-1)
			term = crlf
		}
		if err := p.processLine(line, term); err != nil {
			return p.fail(err)
		}
	}
	// A trailing CR may be the first half of a CRLF split across chunks.
	n := p.carry.Len()
	if n > 0 && p.carry.Span().Last() == '\r' {
		n--
	}
	if n > p.maxLine {
		p.line++
		return p.fail(fmt.Errorf("%w: more than %d bytes without a line break", ErrLineTooLong, p.maxLine))
	}
	return nil
}

// EndParse processes any unterminated last line and closes every open
// part, innermost first. In batch mode it returns the message tree and
// fails with ErrEmptyBasicPart if a basic part decoded to nothing.
func (p *Parser) EndParse() (*email.Message, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	p.ended = true
	if p.carry.Len() > 0 {
		line := p.carry.Span()
		p.carry.Reset()
		if err := p.processLine(line, nil); err != nil {
			return nil, p.fail(err)
		}
	}
	if p.line == 0 {
		p.err = ErrEmptyMessage
		return nil, p.err
	}
	if err := p.closeOpen(true); err != nil {
		return nil, p.fail(err)
	}
	for len(p.stack) > 0 {
		p.pop()
	}
	if p.streaming {
		return nil, nil
	}
	msg := p.builder.Message()
	for _, bp := range email.BasicParts(msg) {
		if bp.Len() == 0 {
			p.err = fmt.Errorf("%w: %s part", ErrEmptyBasicPart, bp.MediaType())
			if bp.StartLine > 0 {
				p.err = fmt.Errorf("%w: %s part at line %d", ErrEmptyBasicPart, bp.MediaType(), bp.StartLine)
			}
			return nil, p.err
		}
	}
	return msg, nil
}

func (p *Parser) check() error {
	switch {
	case p.err != nil:
		return p.err
	case !p.started:
		return ErrNotStarted
	case p.ended:
		return ErrAlreadyEnded
	}
	return nil
}

func (p *Parser) fail(err error) error {
	p.err = fmt.Errorf("line %d: %w", p.line, err)
	return p.err
}

func (p *Parser) processLine(line bytespan.Span, term []byte) error {
	p.line++
	if line.Len() > p.maxLine {
		return fmt.Errorf("%w: %d bytes", ErrLineTooLong, line.Len())
	}
	return p.route(line, term)
}

// route classifies line in the current mode and hands it to the matching
// handler.
func (p *Parser) route(line bytespan.Span, term []byte) error {
	kind, idx := p.classifyLine(line)
	switch kind {
	case lineStartBoundary:
		return p.startBoundary(idx)
	case lineEndBoundary:
		return p.endBoundary(idx)
	}
	switch p.mode {
	case modeHeader:
		return p.headerLine(kind, line, term)
	case modeBody:
		return p.bodyLine(line, term)
	case modePreamble:
		p.preambleLine(line, term)
	}
	return nil
}

func (p *Parser) headerLine(kind lineKind, line bytespan.Span, term []byte) error {
	b := p.block
	switch kind {
	case lineBlank:
		return p.endHeaders(true)
	case lineContinuation:
		if !b.pending {
			if line.IsBlank() {
				return p.endHeaders(true)
			}
			p.logger.Debug("indented line without a field treated as body", "line", p.line)
			if err := p.endHeaders(false); err != nil {
				return err
			}
			return p.route(line, term)
		}
		// A blank continuation of Content-Transfer-Encoding is dropped so
		// the encoding token stays clean.
		if line.IsBlank() && strings.EqualFold(b.name, "content-transfer-encoding") {
			return nil
		}
		b.value.WriteString("\r\n")
		b.value.Write(line.Bytes())
		return nil
	case lineMalformed:
		return fmt.Errorf("%w: %q", ErrMalformedHeaderLine, line.String())
	case lineBody:
		p.logger.Debug("header block ended by non-header line", "line", p.line)
		if err := p.endHeaders(false); err != nil {
			return err
		}
		return p.route(line, term)
	}

	if err := p.flushHeader(); err != nil {
		return err
	}
	name, value := splitHeader(line)
	b.name = name
	b.value.WriteString(value)
	b.pending = true
	return nil
}

// flushHeader emits the folded header being accumulated, if any.
func (p *Parser) flushHeader() error {
	b := p.block
	if !b.pending {
		return nil
	}
	h := email.Header{Name: b.name, Value: b.value.String()}
	b.name = ""
	b.value.Reset()
	b.pending = false
	return p.emitHeader(b, h)
}

func (p *Parser) emitHeader(b *headerBlock, h email.Header) error {
	content := isContentHeader(h.Name)
	switch {
	case b.kind == blockExternal:
		p.out.Header(b.parent, h.Name, h.Value)
		return nil
	case b.kind == blockMessage && !content:
		p.out.Header(b.parent, h.Name, h.Value)
		return nil
	}

	if b.part == nil {
		b.queue = append(b.queue, h)
		if !strings.EqualFold(h.Name, "content-type") {
			return nil
		}
		if err := p.newPart(b, h.Value); err != nil {
			return err
		}
		p.replay(b, len(b.queue)-1)
		return nil
	}
	p.out.AddHeader(b.part.tok, h.Name, h.Value)
	if content {
		p.applyContent(b.part, h)
	}
	return nil
}

// replay delivers the queued headers of b to its new part. The entry at
// typeIdx is the Content-Type field that created the part.
func (p *Parser) replay(b *headerBlock, typeIdx int) {
	for i, h := range b.queue {
		p.out.AddHeader(b.part.tok, h.Name, h.Value)
		if i != typeIdx && isContentHeader(h.Name) {
			p.applyContent(b.part, h)
		}
	}
	b.queue = nil
}

func (p *Parser) applyContent(ps *partState, h email.Header) {
	value := strings.TrimSpace(h.Value)
	switch strings.ToLower(h.Name) {
	case "content-type":
		p.logger.Debug("duplicate content-type ignored", "line", p.line, "value", value)
	case "content-transfer-encoding":
		ps.enc = codec.ParseEncoding(value)
		p.out.ContentEncoding(ps.tok, ps.enc)
	case "content-disposition":
		token, params := splitDisposition(value)
		p.out.ContentDisposition(ps.tok, email.ParseDisposition(token))
		p.out.ContentDispParams(ps.tok, params)
	case "content-id":
		p.out.ContentID(ps.tok, value)
	case "content-description":
		p.out.ContentDescription(ps.tok, value)
	case "content-md5":
		p.out.ContentMD5(ps.tok, value)
	}
}

// newPart creates the body part of b from a Content-Type value.
func (p *Parser) newPart(b *headerBlock, contentType string) error {
	primary, sub, params := splitContentType(contentType)
	ps := &partState{}
	switch {
	case strings.EqualFold(primary, "multipart"):
		ps.kind = partMulti
		ps.boundary = email.Param(params, "boundary")
		if ps.boundary == "" {
			ps.boundary = defaultBoundary
		}
		ps.tok = p.out.StartMultiPart(b.parent)
	case strings.EqualFold(primary, "message"):
		switch strings.ToLower(sub) {
		case "partial":
			return ErrUnsupportedPartialSubtype
		case "external-body":
			ps.external = true
		}
		ps.kind = partMessage
		ps.tok = p.out.StartMessagePart(b.parent)
	default:
		if _, ok := email.ParseBasicType(primary); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownContentType, primary)
		}
		ps.kind = partBasic
		ps.tok = p.out.StartBasicPart(b.parent)
	}
	p.out.ContentType(ps.tok, primary)
	p.out.ContentSubType(ps.tok, sub)
	p.out.ContentTypeParams(ps.tok, params)
	if ps.kind == partMulti {
		p.out.Boundary(ps.tok, ps.boundary)
	}
	b.part = ps
	return nil
}

// endHeaders closes the current header block and moves on to the part's
// content. blank reports whether a blank line ended the block.
func (p *Parser) endHeaders(blank bool) error {
	b := p.block
	if err := p.flushHeader(); err != nil {
		return err
	}
	p.block = nil
	if b.kind == blockExternal {
		p.mode = modeExternal
		return nil
	}
	if b.part == nil {
		if err := p.newPart(b, "text/plain"); err != nil {
			return err
		}
		p.replay(b, -1)
	}
	if b.kind == blockMessage {
		p.out.EndMessageHeader(b.parent)
	}

	ps := b.part
	switch ps.kind {
	case partBasic:
		p.body = &bodyState{tok: ps.tok, enc: ps.enc}
		p.mode = modeBody
	case partMulti:
		p.push(&frame{kind: frameMultipart, tok: ps.tok, delim: []byte("--" + ps.boundary)})
		p.mode = modePreamble
		p.blank = 0
		if blank {
			p.blank = 1
		}
	case partMessage:
		p.push(&frame{kind: frameMessagePart, tok: ps.tok})
		p.mode = modeHeader
		if ps.external {
			p.block = &headerBlock{kind: blockExternal, parent: ps.tok}
			return nil
		}
		msg := p.out.StartMessage(ps.tok)
		p.push(&frame{kind: frameMessage, tok: msg})
		p.block = &headerBlock{kind: blockMessage, parent: msg}
	}
	return nil
}

func (p *Parser) bodyLine(line bytespan.Span, term []byte) error {
	b := p.body
	if b.startLine == 0 {
		b.startLine = p.line
	}
	b.endLine = p.line
	data := line.Bytes()

	if !p.streaming {
		b.raw.Append(b.term)
		b.raw.Append(data)
	} else {
		out := p.scratch[:0]
		switch b.enc {
		case codec.Base64:
			out = b.b64.Decode(out, data)
		case codec.QuotedPrintable:
			var err error
			if out, err = b.qp.Decode(out, b.term); err == nil {
				out, err = b.qp.Decode(out, data)
			}
			if err != nil {
				return err
			}
		default:
			out = append(append(out, b.term...), data...)
		}
		if len(out) > 0 {
			p.out.BodyData(b.tok, out)
		}
		p.scratch = out[:0]
	}
	b.term = append(b.term[:0], term...)
	return nil
}

// endBody finishes the basic part receiving data. The held-back line
// terminator is kept only at end of input; before a boundary it belongs to
// the boundary.
func (p *Parser) endBody(eof bool) error {
	b := p.body
	if b == nil {
		return nil
	}
	p.body = nil
	var tail []byte
	if eof {
		tail = b.term
	}

	var (
		out []byte
		err error
	)
	if p.streaming {
		out = p.scratch[:0]
		switch b.enc {
		case codec.Base64:
			out = b.b64.Flush(out)
		case codec.QuotedPrintable:
			if out, err = b.qp.Decode(out, tail); err == nil {
				out, err = b.qp.Flush(out)
			}
		default:
			out = append(out, tail...)
		}
		p.scratch = out[:0]
	} else {
		b.raw.Append(tail)
		switch b.enc {
		case codec.Base64:
			out = codec.DecodeBase64(b.raw.Bytes())
		case codec.QuotedPrintable:
			out, err = codec.DecodeQuotedPrintable(b.raw.Bytes())
		default:
			out = b.raw.Bytes()
		}
	}
	if err != nil {
		return err
	}
	if len(out) > 0 {
		p.out.BodyData(b.tok, out)
	}
	if r, ok := p.out.(lineRecorder); ok && b.startLine > 0 {
		r.bodyLines(b.tok, b.startLine, b.endLine)
	}
	p.out.EndBasicPart(b.tok)
	return nil
}

// preambleLine captures a line before a multipart's first boundary. The
// blank line that ended the multipart's headers counts toward the blank
// line run; a second consecutive blank line ends preamble capture.
func (p *Parser) preambleLine(line bytespan.Span, term []byte) {
	f := p.stack[len(p.stack)-1]
	if f.startedData {
		return
	}
	if line.IsEmpty() {
		p.blank++
	} else {
		p.blank = 0
	}
	if p.blank >= 2 {
		f.startedData = true
		p.logger.Debug("preamble capture stopped at repeated blank line", "line", p.line)
		return
	}
	out := append(append(p.scratch[:0], line.Bytes()...), term...)
	p.out.BodyData(f.tok, out)
	p.scratch = out[:0]
}

func (p *Parser) startBoundary(idx int) error {
	if err := p.unwind(idx); err != nil {
		return err
	}
	f := p.stack[idx]
	f.seenBoundary = true
	p.block = &headerBlock{kind: blockPart, parent: f.tok}
	p.mode = modeHeader
	p.blank = 0
	return nil
}

func (p *Parser) endBoundary(idx int) error {
	if err := p.unwind(idx); err != nil {
		return err
	}
	if !p.stack[idx].seenBoundary {
		p.logger.Debug("multipart ended before its first part", "line", p.line)
	}
	p.pop()
	p.mode = modeEpilogue
	return nil
}

// unwind closes everything opened above the frame at idx.
func (p *Parser) unwind(idx int) error {
	if err := p.closeOpen(false); err != nil {
		return err
	}
	for len(p.stack)-1 > idx {
		p.pop()
	}
	return nil
}

// closeOpen finishes any header block still being read, creating the parts
// it implies, then ends the basic part receiving data.
func (p *Parser) closeOpen(eof bool) error {
	for p.block != nil {
		if err := p.endHeaders(false); err != nil {
			return err
		}
	}
	return p.endBody(eof)
}

func (p *Parser) push(f *frame) {
	p.stack = append(p.stack, f)
	if f.kind == frameMultipart {
		p.multiparts++
	}
}

func (p *Parser) pop() {
	f := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	switch f.kind {
	case frameMessage:
		p.out.EndMessage(f.tok)
	case frameMultipart:
		p.multiparts--
		p.out.EndMultiPart(f.tok)
	case frameMessagePart:
		p.out.EndMessagePart(f.tok)
	}
}

// ParseMessage parses a complete message held in memory.
func ParseMessage(raw []byte, opts ...Option) (*email.Message, error) {
	p := New(opts...)
	p.BeginParse()
	if err := p.Parse(raw); err != nil {
		return nil, err
	}
	return p.EndParse()
}

// ParseReader parses a message read from r in chunks of chunkSize bytes.
// A chunkSize <= 0 uses DefaultChunkSize.
func ParseReader(r io.Reader, chunkSize int, opts ...Option) (*email.Message, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	p := New(opts...)
	p.BeginParse()
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if perr := p.Parse(buf[:n]); perr != nil {
				return nil, perr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read message: %w", err)
		}
	}
	return p.EndParse()
}
