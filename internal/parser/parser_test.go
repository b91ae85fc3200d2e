package parser

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/davecgh/go-spew/spew"

	"github.com/shineum/mimeparse-lite/internal/codec"
	"github.com/shineum/mimeparse-lite/internal/email"
)

func crlfLines(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

// nestedMessage exercises nested multiparts, both transfer encodings,
// headers queued before Content-Type, an encapsulated message, a preamble
// and an epilogue.
var nestedMessage = crlfLines(
	"From: a@example.com",
	"To: b@example.com",
	"Subject: nested",
	"MIME-Version: 1.0",
	`Content-Type: multipart/mixed; boundary="outer"`,
	"",
	"This is a preamble.",
	"--outer",
	"Content-Type: multipart/alternative; boundary=inner",
	"",
	"--inner",
	"Content-Type: text/plain; charset=utf-8",
	"Content-Transfer-Encoding: quoted-printable",
	"",
	"Caf=C3=A9 au lait=",
	" is nice",
	"--inner",
	"Content-Type: text/html",
	"",
	"<p>hi</p>",
	"--inner--",
	"--outer",
	`Content-Disposition: attachment; filename="hello.txt"`,
	"Content-Transfer-Encoding: base64",
	"Content-Type: application/octet-stream",
	"",
	"SGVs",
	"bG8=",
	"--outer",
	"Content-Type: message/rfc822",
	"",
	"Subject: inner message",
	"",
	"Inner body",
	"--outer--",
	"epilogue",
	"",
)

func mustParse(t *testing.T, raw []byte, opts ...Option) *email.Message {
	t.Helper()
	msg, err := ParseMessage(raw, opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return msg
}

func marshal(t *testing.T, msg *email.Message) []byte {
	t.Helper()
	b, err := msg.MarshalMsg(nil)
	if err != nil {
		t.Fatalf("MarshalMsg: %v", err)
	}
	return b
}

func TestParsePlainText(t *testing.T) {
	t.Parallel()

	msg := mustParse(t, []byte("Content-Type: text/plain\r\n\r\nHello\r\n"))

	bp, ok := msg.Body.(*email.BasicPart)
	if !ok {
		t.Fatalf("Body: got %T, want *email.BasicPart", msg.Body)
	}
	if bp.Type != email.Text {
		t.Errorf("Type: got %v, want text", bp.Type)
	}
	if bp.ContentSubType != "plain" {
		t.Errorf("ContentSubType: got %q, want %q", bp.ContentSubType, "plain")
	}
	if got := string(bp.Bytes()); got != "Hello\r\n" {
		t.Errorf("body: got %q, want %q", got, "Hello\r\n")
	}
	if bp.StartLine != 3 || bp.EndLine != 3 {
		t.Errorf("lines: got %d-%d, want 3-3", bp.StartLine, bp.EndLine)
	}
	if len(msg.Headers) != 0 {
		t.Errorf("message headers: got %v, want none", msg.Headers)
	}
	if got := bp.Headers.Get("Content-Type"); got != "text/plain" {
		t.Errorf("part Content-Type header: got %q", got)
	}
}

func TestParseMultipartTwoParts(t *testing.T) {
	t.Parallel()

	msg := mustParse(t, crlfLines(
		"Subject: two parts",
		"Content-Type: multipart/mixed; boundary=XYZ",
		"",
		"--XYZ",
		"Content-Type: text/plain",
		"",
		"first",
		"--XYZ",
		"Content-Type: text/html",
		"",
		"<b>second</b>",
		"--XYZ--",
		"",
	))

	mp, ok := msg.Body.(*email.MultiPart)
	if !ok {
		t.Fatalf("Body: got %T, want *email.MultiPart", msg.Body)
	}
	if mp.Boundary != "XYZ" {
		t.Errorf("Boundary: got %q, want %q", mp.Boundary, "XYZ")
	}
	if len(mp.Parts) != 2 {
		t.Fatalf("Parts: got %d, want 2\n%s", len(mp.Parts), spew.Sdump(mp.Parts))
	}
	want := []struct{ subtype, body string }{
		{"plain", "first"},
		{"html", "<b>second</b>"},
	}
	for i, w := range want {
		bp, ok := mp.Parts[i].(*email.BasicPart)
		if !ok {
			t.Fatalf("part %d: got %T, want *email.BasicPart", i, mp.Parts[i])
		}
		if bp.ContentSubType != w.subtype {
			t.Errorf("part %d subtype: got %q, want %q", i, bp.ContentSubType, w.subtype)
		}
		if got := string(bp.Bytes()); got != w.body {
			t.Errorf("part %d body: got %q, want %q", i, got, w.body)
		}
	}
	if got := msg.Headers.Get("Subject"); got != "two parts" {
		t.Errorf("Subject: got %q", got)
	}
}

func TestParseBase64Body(t *testing.T) {
	t.Parallel()

	msg := mustParse(t, crlfLines(
		"Content-Transfer-Encoding: base64",
		"Content-Type: text/plain",
		"",
		"SGVsbG8=",
		"",
	))
	bp := msg.Body.(*email.BasicPart)
	if bp.Encoding != codec.Base64 {
		t.Errorf("Encoding: got %v, want base64", bp.Encoding)
	}
	if got := string(bp.Bytes()); got != "Hello" {
		t.Errorf("body: got %q, want %q", got, "Hello")
	}
	if len(bp.Headers) != 2 || bp.Headers[0].Name != "Content-Transfer-Encoding" {
		t.Errorf("part headers out of order: %v", bp.Headers)
	}
}

func TestParseQuotedPrintableBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "soft break",
			raw:  "Content-Type: text/plain\r\nContent-Transfer-Encoding: quoted-printable\r\n\r\nHello=\r\nWorld",
			want: "HelloWorld",
		},
		{
			name: "escapes",
			raw:  "Content-Transfer-Encoding: Quoted-Printable\r\n\r\na=3Db =C3=A9\r\n",
			want: "a=b \xc3\xa9\r\n",
		},
		{
			name: "lf hard breaks",
			raw:  "Content-Transfer-Encoding: quoted-printable\n\na\nb\n",
			want: "a\r\nb\r\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, streaming := range []bool{false, true} {
				var opts []Option
				if streaming {
					opts = append(opts, WithSink(NewTreeBuilder()))
				}
				msg := parseEither(t, []byte(tt.raw), opts...)
				bp := msg.Body.(*email.BasicPart)
				if got := string(bp.Bytes()); got != tt.want {
					t.Errorf("streaming=%v: got %q, want %q", streaming, got, tt.want)
				}
			}
		})
	}
}

// parseEither parses raw in batch mode, or in streaming mode when opts carry
// a *TreeBuilder sink, and returns the tree either way.
func parseEither(t *testing.T, raw []byte, opts ...Option) *email.Message {
	t.Helper()
	p := New(opts...)
	p.BeginParse()
	if err := p.Parse(raw); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	msg, err := p.EndParse()
	if err != nil {
		t.Fatalf("EndParse: %v", err)
	}
	if p.streaming {
		return p.sink.(*TreeBuilder).Message()
	}
	return msg
}

func TestParseEncapsulatedMessage(t *testing.T) {
	t.Parallel()

	msg := mustParse(t, crlfLines(
		"Subject: outer",
		"Content-Type: message/rfc822",
		"",
		"Subject: inner",
		"From: x@example.com",
		"Content-Type: text/plain",
		"",
		"Hi",
		"",
	))

	if got := msg.Headers.Get("Subject"); got != "outer" {
		t.Errorf("outer Subject: got %q", got)
	}
	mp, ok := msg.Body.(*email.MessagePart)
	if !ok {
		t.Fatalf("Body: got %T, want *email.MessagePart", msg.Body)
	}
	if mp.External || mp.Message == nil {
		t.Fatalf("expected an encapsulated message, got %s", spew.Sdump(mp))
	}
	inner := mp.Message
	if len(inner.Headers) != 2 || inner.Headers.Get("Subject") != "inner" {
		t.Errorf("inner headers: got %v", inner.Headers)
	}
	bp, ok := inner.Body.(*email.BasicPart)
	if !ok {
		t.Fatalf("inner body: got %T, want *email.BasicPart", inner.Body)
	}
	if got := string(bp.Bytes()); got != "Hi\r\n" {
		t.Errorf("inner body: got %q, want %q", got, "Hi\r\n")
	}
}

func TestParseRejectsPartial(t *testing.T) {
	t.Parallel()

	_, err := ParseMessage(crlfLines(
		"Content-Type: message/partial; id=\"abc\"; number=1; total=2",
		"",
		"data",
	))
	if !errors.Is(err, ErrUnsupportedPartialSubtype) {
		t.Fatalf("got %v, want ErrUnsupportedPartialSubtype", err)
	}
	if !strings.HasPrefix(err.Error(), "line 2:") {
		t.Errorf("error should carry the line number: %v", err)
	}
}

func TestParseUnknownContentType(t *testing.T) {
	t.Parallel()

	_, err := ParseMessage([]byte("Content-Type: foo/bar\r\n\r\nx\r\n"))
	if !errors.Is(err, ErrUnknownContentType) {
		t.Fatalf("got %v, want ErrUnknownContentType", err)
	}
}

func TestParseNestedTree(t *testing.T) {
	t.Parallel()

	msg := mustParse(t, nestedMessage)

	if len(msg.Headers) != 4 {
		t.Errorf("root headers: got %d, want 4: %v", len(msg.Headers), msg.Headers)
	}
	outer, ok := msg.Body.(*email.MultiPart)
	if !ok {
		t.Fatalf("Body: got %T, want *email.MultiPart", msg.Body)
	}
	if got := string(outer.Preamble); got != "This is a preamble.\r\n" {
		t.Errorf("preamble: got %q", got)
	}
	if len(outer.Parts) != 3 {
		t.Fatalf("outer parts: got %d, want 3\n%s", len(outer.Parts), spew.Sdump(outer.Parts))
	}

	alt, ok := outer.Parts[0].(*email.MultiPart)
	if !ok || alt.Boundary != "inner" || len(alt.Parts) != 2 {
		t.Fatalf("alternative part: got %s", spew.Sdump(outer.Parts[0]))
	}
	if len(alt.Preamble) != 0 {
		t.Errorf("inner preamble: got %q, want empty", alt.Preamble)
	}
	text := alt.Parts[0].(*email.BasicPart)
	if got := string(text.Bytes()); got != "Café au lait is nice" {
		t.Errorf("qp text: got %q", got)
	}
	if s, err := text.Text(); err != nil || s != "Café au lait is nice" {
		t.Errorf("Text(): got %q err=%v", s, err)
	}
	html := alt.Parts[1].(*email.BasicPart)
	if got := string(html.Bytes()); got != "<p>hi</p>" {
		t.Errorf("html: got %q", got)
	}

	att := outer.Parts[1].(*email.BasicPart)
	if att.Disposition != email.Attachment || att.Filename() != "hello.txt" {
		t.Errorf("attachment info: disposition=%v filename=%q", att.Disposition, att.Filename())
	}
	if att.Type != email.Application || att.Encoding != codec.Base64 {
		t.Errorf("attachment type/encoding: %v/%v", att.Type, att.Encoding)
	}
	if got := string(att.Bytes()); got != "Hello" {
		t.Errorf("attachment body: got %q, want %q", got, "Hello")
	}
	if att.StartLine != 27 || att.EndLine != 28 {
		t.Errorf("attachment lines: got %d-%d, want 27-28", att.StartLine, att.EndLine)
	}

	encap := outer.Parts[2].(*email.MessagePart)
	if encap.Message.Headers.Get("Subject") != "inner message" {
		t.Errorf("encapsulated headers: %v", encap.Message.Headers)
	}
	inner := encap.Message.Body.(*email.BasicPart)
	if got := string(inner.Bytes()); got != "Inner body" {
		t.Errorf("encapsulated body: got %q, want %q", got, "Inner body")
	}
	if inner.MediaType() != "text/plain" {
		t.Errorf("encapsulated default type: got %q", inner.MediaType())
	}
}

func TestChunkSplitEquivalence(t *testing.T) {
	t.Parallel()

	for _, streaming := range []bool{false, true} {
		newOpts := func() []Option {
			if streaming {
				return []Option{WithSink(NewTreeBuilder())}
			}
			return nil
		}
		want := marshal(t, parseEither(t, nestedMessage, newOpts()...))

		for i := 0; i <= len(nestedMessage); i++ {
			p := New(newOpts()...)
			p.BeginParse()
			if err := p.Parse(nestedMessage[:i]); err != nil {
				t.Fatalf("split %d: first Parse: %v", i, err)
			}
			if err := p.Parse(nestedMessage[i:]); err != nil {
				t.Fatalf("split %d: second Parse: %v", i, err)
			}
			msg, err := p.EndParse()
			if err != nil {
				t.Fatalf("split %d: EndParse: %v", i, err)
			}
			if streaming {
				msg = p.sink.(*TreeBuilder).Message()
			}
			if got := marshal(t, msg); !bytes.Equal(got, want) {
				t.Fatalf("streaming=%v split %d: tree differs\n%s", streaming, i, spew.Sdump(msg))
			}
		}
	}
}

func TestStreamingMatchesBatch(t *testing.T) {
	t.Parallel()

	batch := marshal(t, mustParse(t, nestedMessage))
	streamed := marshal(t, parseEither(t, nestedMessage, WithSink(NewTreeBuilder())))
	if !bytes.Equal(batch, streamed) {
		t.Error("streaming and batch trees differ")
	}
}

func TestParseReader(t *testing.T) {
	t.Parallel()

	want := marshal(t, mustParse(t, nestedMessage))
	for _, size := range []int{1, 3, 7, 64, 0} {
		msg, err := ParseReader(bytes.NewReader(nestedMessage), size)
		if err != nil {
			t.Fatalf("chunk %d: %v", size, err)
		}
		if got := marshal(t, msg); !bytes.Equal(got, want) {
			t.Errorf("chunk %d: tree differs", size)
		}
	}

	msg, err := ParseReader(iotest.OneByteReader(bytes.NewReader(nestedMessage)), 16)
	if err != nil {
		t.Fatalf("one byte reader: %v", err)
	}
	if got := marshal(t, msg); !bytes.Equal(got, want) {
		t.Error("one byte reader: tree differs")
	}

	_, err = ParseReader(iotest.ErrReader(errors.New("boom")), 16)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("reader error: got %v", err)
	}
}

// recorder is a Sink that checks the start/end nesting discipline and
// records what it sees. Tokens are sequence numbers.
type recorder struct {
	NopSink
	seq      int
	open     []Token
	kinds    map[Token]string
	starts   map[string]int
	ends     map[string]int
	data     map[Token][]byte
	headers  map[Token][]string
	problems []string
}

func newRecorder() *recorder {
	return &recorder{
		kinds:   make(map[Token]string),
		starts:  make(map[string]int),
		ends:    make(map[string]int),
		data:    make(map[Token][]byte),
		headers: make(map[Token][]string),
	}
}

func (r *recorder) start(kind string, parent Token) Token {
	switch {
	case len(r.open) == 0 && parent != nil:
		r.problems = append(r.problems, fmt.Sprintf("root %s has parent %v", kind, parent))
	case len(r.open) > 0 && parent != r.open[len(r.open)-1]:
		r.problems = append(r.problems, fmt.Sprintf("%s parent %v, open %v", kind, parent, r.open[len(r.open)-1]))
	}
	r.seq++
	tok := Token(r.seq)
	r.open = append(r.open, tok)
	r.kinds[tok] = kind
	r.starts[kind]++
	return tok
}

func (r *recorder) end(kind string, tok Token) {
	if len(r.open) == 0 || r.open[len(r.open)-1] != tok {
		r.problems = append(r.problems, fmt.Sprintf("end %s %v out of order (open %v)", kind, tok, r.open))
	} else {
		r.open = r.open[:len(r.open)-1]
	}
	if r.kinds[tok] != kind {
		r.problems = append(r.problems, fmt.Sprintf("end %s for a %s token", kind, r.kinds[tok]))
	}
	r.ends[kind]++
}

func (r *recorder) StartMessage(parent Token) Token { return r.start("message", parent) }
func (r *recorder) EndMessage(tok Token) { r.end("message", tok) }
func (r *recorder) StartBasicPart(parent Token) Token { return r.start("basic", parent) }
func (r *recorder) EndBasicPart(tok Token) { r.end("basic", tok) }
func (r *recorder) StartMultiPart(parent Token) Token { return r.start("multipart", parent) }
func (r *recorder) EndMultiPart(tok Token) { r.end("multipart", tok) }
func (r *recorder) StartMessagePart(parent Token) Token { return r.start("messagepart", parent) }
func (r *recorder) EndMessagePart(tok Token) { r.end("messagepart", tok) }

func (r *recorder) Header(tok Token, name, value string) {
	r.headers[tok] = append(r.headers[tok], name+": "+value)
}

func (r *recorder) BodyData(tok Token, data []byte) {
	r.data[tok] = append(r.data[tok], data...)
}

func (r *recorder) check(t *testing.T) {
	t.Helper()
	for _, p := range r.problems {
		t.Error(p)
	}
	if len(r.open) != 0 {
		t.Errorf("tokens left open: %v", r.open)
	}
	for kind, n := range r.starts {
		if r.ends[kind] != n {
			t.Errorf("%s: %d starts, %d ends", kind, n, r.ends[kind])
		}
	}
}

func streamTo(t *testing.T, raw []byte) *recorder {
	t.Helper()
	r := newRecorder()
	msg, err := ParseMessage(raw, WithSink(r))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != nil {
		t.Errorf("streaming mode returned a tree")
	}
	return r
}

func TestStreamingNesting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		raw   []byte
		basic int
		multi int
	}{
		{"nested", nestedMessage, 4, 2},
		{
			name: "outer boundary closes inner multipart",
			raw: crlfLines(
				"Content-Type: multipart/mixed; boundary=outer",
				"",
				"--outer",
				"Content-Type: multipart/alternative; boundary=inner",
				"",
				"--inner",
				"Content-Type: text/plain",
				"",
				"unterminated inner",
				"--outer",
				"Content-Type: text/plain",
				"",
				"last",
				"--outer--",
			),
			basic: 2,
			multi: 2,
		},
		{
			name: "end of input closes everything",
			raw: crlfLines(
				"Content-Type: multipart/mixed; boundary=a",
				"",
				"--a",
				"Content-Type: message/rfc822",
				"",
				"Content-Type: multipart/mixed; boundary=b",
				"",
				"--b",
				"",
				"deep",
			),
			basic: 1,
			multi: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := streamTo(t, tt.raw)
			r.check(t)
			if r.starts["basic"] != tt.basic {
				t.Errorf("basic parts: got %d, want %d", r.starts["basic"], tt.basic)
			}
			if r.starts["multipart"] != tt.multi {
				t.Errorf("multiparts: got %d, want %d", r.starts["multipart"], tt.multi)
			}
		})
	}
}

func TestStreamingDoesNotRejectEmptyParts(t *testing.T) {
	t.Parallel()

	raw := []byte("Subject: no body\r\n\r\n")
	r := streamTo(t, raw)
	r.check(t)

	if _, err := ParseMessage(raw); !errors.Is(err, ErrEmptyBasicPart) {
		t.Errorf("batch: got %v, want ErrEmptyBasicPart", err)
	}
}

func TestPreamble(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{
			name: "captured with blank lines",
			raw: crlfLines(
				"Content-Type: multipart/mixed; boundary=X",
				"",
				"preamble line 1",
				"",
				"preamble line 2",
				"--X",
				"Content-Type: text/plain",
				"",
				"body",
				"--X--",
			),
			want: "preamble line 1\r\n\r\npreamble line 2\r\n",
		},
		{
			name: "second blank line right after headers",
			raw: crlfLines(
				"Content-Type: multipart/mixed; boundary=X",
				"",
				"",
				"dropped",
				"--X",
				"",
				"body",
				"--X--",
			),
			want: "",
		},
		{
			name: "two blank lines stop capture",
			raw: crlfLines(
				"Content-Type: multipart/mixed; boundary=X",
				"",
				"kept",
				"",
				"",
				"dropped",
				"--X",
				"",
				"body",
				"--X--",
			),
			want: "kept\r\n\r\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := mustParse(t, tt.raw)
			mp := msg.Body.(*email.MultiPart)
			if got := string(mp.Preamble); got != tt.want {
				t.Errorf("preamble: got %q, want %q", got, tt.want)
			}
			if len(mp.Parts) != 1 {
				t.Fatalf("parts: got %d, want 1", len(mp.Parts))
			}
			if got := string(mp.Parts[0].(*email.BasicPart).Bytes()); got != "body" {
				t.Errorf("body: got %q, want %q", got, "body")
			}

			r := streamTo(t, tt.raw)
			var multiTok Token
			for tok, kind := range r.kinds {
				if kind == "multipart" {
					multiTok = tok
				}
			}
			if got := string(r.data[multiTok]); got != tt.want {
				t.Errorf("streamed preamble: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHeaderFolding(t *testing.T) {
	t.Parallel()

	msg := mustParse(t, crlfLines(
		"Subject: first",
		" second",
		"\tthird",
		"Content-Type: text/plain",
		"Content-Transfer-Encoding: 7bit",
		"   ",
		"X-Custom: yes",
		"",
		"body",
	))
	if got := msg.Headers.Get("Subject"); got != "first\r\n second\r\n\tthird" {
		t.Errorf("Subject: got %q", got)
	}
	if got := msg.Headers.Get("X-Custom"); got != "yes" {
		t.Errorf("X-Custom: got %q", got)
	}
	bp := msg.Body.(*email.BasicPart)
	if got := bp.Headers.Get("Content-Transfer-Encoding"); got != "7bit" {
		t.Errorf("Content-Transfer-Encoding: got %q, want %q", got, "7bit")
	}
	if bp.Encoding != codec.SevenBit {
		t.Errorf("Encoding: got %v", bp.Encoding)
	}
	if len(bp.Headers) != 2 {
		t.Errorf("part headers: got %v", bp.Headers)
	}
}

func TestFoldedContentType(t *testing.T) {
	t.Parallel()

	msg := mustParse(t, crlfLines(
		"Content-Type: multipart/mixed;",
		"\tboundary=\"folded boundary\"",
		"",
		"--folded boundary",
		"",
		"x",
		"--folded boundary--",
	))
	mp := msg.Body.(*email.MultiPart)
	if mp.Boundary != "folded boundary" || len(mp.Parts) != 1 {
		t.Errorf("got boundary %q with %d parts", mp.Boundary, len(mp.Parts))
	}
}

func TestDuplicateContentTypeIgnored(t *testing.T) {
	t.Parallel()

	msg := mustParse(t, crlfLines(
		"Content-Type: text/plain",
		"Content-Type: text/html",
		"",
		"x",
	))
	bp := msg.Body.(*email.BasicPart)
	if bp.ContentSubType != "plain" {
		t.Errorf("ContentSubType: got %q, want plain", bp.ContentSubType)
	}
	if got := bp.Headers.GetAll("Content-Type"); len(got) != 2 {
		t.Errorf("Content-Type headers: got %v", got)
	}
}

func TestBodyFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		headers int
		body    string
	}{
		{"no headers", "just text\r\nmore text\r\n", 0, "just text\r\nmore text\r\n"},
		{"spaced name", "Subject: s\r\nNot A Header: v\r\n", 1, "Not A Header: v\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := mustParse(t, []byte(tt.raw))
			if len(msg.Headers) != tt.headers {
				t.Errorf("headers: got %v", msg.Headers)
			}
			bp := msg.Body.(*email.BasicPart)
			if bp.MediaType() != "text/plain" {
				t.Errorf("media type: got %q", bp.MediaType())
			}
			if got := string(bp.Bytes()); got != tt.body {
				t.Errorf("body: got %q, want %q", got, tt.body)
			}
		})
	}
}

func TestIndentedLineFallsBackToBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		body string
	}{
		{"message start", " indented\r\n\r\nx", " indented\r\n\r\nx"},
		{"part start", "Content-Type: multipart/mixed; boundary=B\r\n\r\n--B\r\n  indented body\r\n--B--\r\n", "  indented body"},
	}
	for _, tt := range tests {
		for _, streaming := range []bool{false, true} {
			var opts []Option
			if streaming {
				opts = append(opts, WithSink(NewTreeBuilder()))
			}
			msg := parseEither(t, []byte(tt.raw), opts...)
			parts := email.BasicParts(msg)
			if len(parts) != 1 {
				t.Fatalf("%s (streaming=%v): got %d basic parts, want 1", tt.name, streaming, len(parts))
			}
			if parts[0].MediaType() != "text/plain" {
				t.Errorf("%s (streaming=%v): media type: got %q", tt.name, streaming, parts[0].MediaType())
			}
			if got := string(parts[0].Bytes()); got != tt.body {
				t.Errorf("%s (streaming=%v): body: got %q, want %q", tt.name, streaming, got, tt.body)
			}
		}
	}
}

func TestBoundaryWithoutBlankLine(t *testing.T) {
	t.Parallel()

	msg := mustParse(t, crlfLines(
		"Content-Type: multipart/mixed; boundary=X",
		"--X",
		"Content-Type: text/plain",
		"",
		"x",
		"--X--",
	))
	mp := msg.Body.(*email.MultiPart)
	if len(mp.Parts) != 1 {
		t.Errorf("parts: got %d, want 1", len(mp.Parts))
	}
}

func TestDefaultBoundary(t *testing.T) {
	t.Parallel()

	msg := mustParse(t, crlfLines(
		"Content-Type: multipart/mixed",
		"",
		"-------",
		"Content-Type: text/plain",
		"",
		"x",
		"---------",
	))
	mp := msg.Body.(*email.MultiPart)
	if mp.Boundary != "-----" {
		t.Errorf("Boundary: got %q, want %q", mp.Boundary, "-----")
	}
	if len(mp.Parts) != 1 {
		t.Errorf("parts: got %d, want 1", len(mp.Parts))
	}
}

func TestMissingEndBoundaryKeepsTerminator(t *testing.T) {
	t.Parallel()

	msg := mustParse(t, crlfLines(
		"Content-Type: multipart/mixed; boundary=X",
		"",
		"--X",
		"",
		"tail",
		"",
	))
	bp := msg.Body.(*email.MultiPart).Parts[0].(*email.BasicPart)
	if got := string(bp.Bytes()); got != "tail\r\n" {
		t.Errorf("body: got %q, want %q", got, "tail\r\n")
	}
}

func TestLFOnlyInput(t *testing.T) {
	t.Parallel()

	msg := mustParse(t, []byte("Subject: lf\nContent-Type: text/plain\n\nline one\nline two\n"))
	bp := msg.Body.(*email.BasicPart)
	if got := string(bp.Bytes()); got != "line one\nline two\n" {
		t.Errorf("body: got %q", got)
	}
	if got := msg.Headers.Get("Subject"); got != "lf" {
		t.Errorf("Subject: got %q", got)
	}
}

func TestExternalBody(t *testing.T) {
	t.Parallel()

	raw := crlfLines(
		`Content-Type: message/external-body; access-type=URL; URL="http://example.com/f"`,
		"",
		"Content-Type: application/octet-stream",
		"Content-ID: <ext@example.com>",
		"",
		"ignored",
		"",
	)
	msg := mustParse(t, raw)
	mp, ok := msg.Body.(*email.MessagePart)
	if !ok {
		t.Fatalf("Body: got %T", msg.Body)
	}
	if !mp.External || mp.Message != nil {
		t.Errorf("External=%v Message=%v", mp.External, mp.Message)
	}
	if len(mp.ExternalHeaders) != 2 || mp.ExternalHeaders.Get("Content-ID") != "<ext@example.com>" {
		t.Errorf("external headers: got %v", mp.ExternalHeaders)
	}
	if got := mp.Param("url"); got != "http://example.com/f" {
		t.Errorf("URL param: got %q", got)
	}

	r := streamTo(t, raw)
	r.check(t)
	if r.starts["messagepart"] != 1 || r.starts["message"] != 1 {
		t.Errorf("starts: %v", r.starts)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		opts []Option
		want error
	}{
		{"empty input", "", nil, ErrEmptyMessage},
		{"empty body", "Subject: x\r\n\r\n", nil, ErrEmptyBasicPart},
		{"empty multipart child", "Content-Type: multipart/mixed; boundary=X\r\n\r\n--X\r\n--X--\r\n", nil, ErrEmptyBasicPart},
		{"missing field name", ": value\r\n\r\nx", nil, ErrMalformedHeaderLine},
		{"control char in name", "Bad\x01Name: v\r\n\r\nx", nil, ErrMalformedHeaderLine},
		{"long line with split crlf", "Subject:x\r", []Option{WithMaxLineLength(8)}, ErrLineTooLong},
		{"long line", "Subject: " + strings.Repeat("a", 64) + "\r\n\r\nx", []Option{WithMaxLineLength(32)}, ErrLineTooLong},
		{"long unterminated line", strings.Repeat("a", 64), []Option{WithMaxLineLength(32)}, ErrLineTooLong},
		{"bad qp", "Content-Transfer-Encoding: quoted-printable\r\n\r\nbad =ZZ\r\n", nil, codec.ErrInvalidEscapeSequence},
		{"bad qp streaming", "Content-Transfer-Encoding: quoted-printable\r\n\r\nbad =ZZ\r\n", []Option{WithSink(NopSink{})}, codec.ErrInvalidEscapeSequence},
		{"partial streaming", "Content-Type: message/partial\r\n\r\n", []Option{WithSink(NopSink{})}, ErrUnsupportedPartialSubtype},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.raw), tt.opts...)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	_, err := ParseMessage([]byte(strings.Repeat("a", 64)), WithMaxLineLength(32))
	if !errors.Is(err, ErrMalformedInput) {
		t.Errorf("ErrLineTooLong should wrap ErrMalformedInput: %v", err)
	}
}

func TestMaxLineLengthIgnoresChunkSplit(t *testing.T) {
	t.Parallel()

	// "Subject:" is exactly the limit; its CRLF arrives in two chunks.
	raw := []byte("Subject:\r\n\r\nbody")
	want := marshal(t, mustParse(t, raw, WithMaxLineLength(8)))
	for i := 1; i < len(raw); i++ {
		p := New(WithMaxLineLength(8))
		p.BeginParse()
		if err := p.Parse(raw[:i]); err != nil {
			t.Fatalf("split at %d: first chunk: %v", i, err)
		}
		if err := p.Parse(raw[i:]); err != nil {
			t.Fatalf("split at %d: second chunk: %v", i, err)
		}
		msg, err := p.EndParse()
		if err != nil {
			t.Fatalf("split at %d: EndParse: %v", i, err)
		}
		if got := marshal(t, msg); !bytes.Equal(got, want) {
			t.Errorf("split at %d: tree differs", i)
		}
	}
}

func TestCallOrder(t *testing.T) {
	t.Parallel()

	p := New()
	if err := p.Parse([]byte("x")); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Parse before BeginParse: got %v", err)
	}
	if _, err := p.EndParse(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("EndParse before BeginParse: got %v", err)
	}

	p.BeginParse()
	if err := p.Parse([]byte("Content-Type: text/plain\r\n\r\nx")); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := p.EndParse(); err != nil {
		t.Fatalf("EndParse: %v", err)
	}
	if err := p.Parse([]byte("more")); !errors.Is(err, ErrAlreadyEnded) {
		t.Errorf("Parse after EndParse: got %v", err)
	}
	if _, err := p.EndParse(); !errors.Is(err, ErrAlreadyEnded) {
		t.Errorf("second EndParse: got %v", err)
	}

	// A parser can be reused after BeginParse.
	p.BeginParse()
	if err := p.Parse([]byte("Content-Type: text/plain\r\n\r\ny")); err != nil {
		t.Fatalf("reuse Parse: %v", err)
	}
	msg, err := p.EndParse()
	if err != nil {
		t.Fatalf("reuse EndParse: %v", err)
	}
	if got := string(msg.Body.(*email.BasicPart).Bytes()); got != "y" {
		t.Errorf("reuse body: got %q", got)
	}
}

func TestErrorsAreSticky(t *testing.T) {
	t.Parallel()

	p := New()
	p.BeginParse()
	first := p.Parse([]byte("Content-Type: foo/bar\r\n\r\n"))
	if !errors.Is(first, ErrUnknownContentType) {
		t.Fatalf("got %v, want ErrUnknownContentType", first)
	}
	if err := p.Parse([]byte("more\r\n")); err != first {
		t.Errorf("second Parse: got %v, want %v", err, first)
	}
	if _, err := p.EndParse(); err != first {
		t.Errorf("EndParse: got %v, want %v", err, first)
	}
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tree := NewTreeBuilder()
	p := New(WithSink(NewLogSink(tree, logger)), WithLogger(logger))
	p.BeginParse()
	if err := p.Parse(nestedMessage); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := p.EndParse(); err != nil {
		t.Fatalf("EndParse: %v", err)
	}

	out := buf.String()
	for _, event := range []string{"start_message", "start_multipart", "end_multipart", "body_data", "content_encoding", "end_message"} {
		if !strings.Contains(out, "event="+event) {
			t.Errorf("log output missing %s", event)
		}
	}

	want := marshal(t, mustParse(t, nestedMessage))
	if got := marshal(t, tree.Message()); !bytes.Equal(got, want) {
		t.Errorf("tree behind LogSink differs\n%s", spew.Sdump(tree.Message()))
	}
	att := tree.Message().Body.(*email.MultiPart).Parts[1].(*email.BasicPart)
	if att.StartLine == 0 {
		t.Error("LogSink should forward body line ranges")
	}
}

// sliceToken is comparable by type but not when its field holds a slice.
type sliceToken struct {
	v any
}

type sliceTokenSink struct {
	NopSink
}

func (sliceTokenSink) StartMessage(Token) Token { return sliceToken{v: []int{1}} }
func (sliceTokenSink) StartBasicPart(Token) Token { return sliceToken{v: []int{2}} }

func TestLogSinkUnhashableTokens(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_, err := ParseMessage([]byte("Subject: x\r\n\r\nbody"), WithSink(NewLogSink(sliceTokenSink{}, logger)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "event=start_basic_part") {
		t.Errorf("log output missing start_basic_part:\n%s", buf.String())
	}
	if isComparable(sliceToken{v: []int{1}}) {
		t.Error("token holding a slice should not be comparable")
	}
	if !isComparable(sliceToken{v: 1}) {
		t.Error("token holding an int should be comparable")
	}
}
