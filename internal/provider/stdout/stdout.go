// Package stdout implements a Provider that prints parsed messages to
// standard output.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"

	"github.com/shineum/mimeparse-lite/internal/email"
)

const separator = "========================================\n"

// ANSI escapes used when writing to a terminal.
const (
	colorReset = "\033[0m"
	colorKind  = "\033[36m"
	colorType  = "\033[1m"
	colorDim   = "\033[37m"
)

// Provider prints a header summary and an outline of the part tree.
type Provider struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
	color  bool
}

// New creates a stdout Provider. Output is colored when stdout is a
// terminal.
func New() *Provider {
	fd := os.Stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return &Provider{writer: colorable.NewColorable(os.Stdout), color: true}
	}
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a stdout Provider that writes uncolored output to
// the given writer. This is useful for testing.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Send prints the message summary and part outline.
func (p *Provider) Send(_ context.Context, msg *email.Message) error {
	c, err := email.Flatten(msg)
	if err != nil {
		return fmt.Errorf("failed to flatten message: %w", err)
	}

	var b strings.Builder
	b.WriteString(separator)
	fmt.Fprintf(&b, "From: %s\n", c.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(c.To, ", "))
	if len(c.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", strings.Join(c.Cc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\n", c.Subject)
	b.WriteString("Body:\n")

	body := c.TextBody
	if body == "" {
		body = c.HTMLBody
	}
	b.WriteString(body + "\n")
	b.WriteString("Parts:\n")
	email.Walk(msg, func(part email.Part, depth int) bool {
		p.writePart(&b, part, depth)
		return true
	})
	b.WriteString(separator)

	if _, err := io.WriteString(p.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (p *Provider) writePart(b *strings.Builder, part email.Part, depth int) {
	info := part.Info()
	b.WriteString(strings.Repeat("  ", depth+1))

	var kind, detail string
	switch v := part.(type) {
	case *email.BasicPart:
		kind = "basic"
		detail = fmt.Sprintf("%s, %s", info.Encoding, formatSize(v.Len()))
		if fn := v.Filename(); fn != "" {
			detail += fmt.Sprintf(", %q", fn)
		}
	case *email.MultiPart:
		kind = "multipart"
		detail = fmt.Sprintf("%d parts", len(v.Parts))
	case *email.MessagePart:
		kind = "message"
		if v.External {
			detail = "external body"
		} else if v.Message != nil {
			detail = fmt.Sprintf("subject %q", email.DecodeHeader(v.Message.Headers.Get("Subject")))
		}
	}

	fmt.Fprintf(b, "%s %s (%s)\n",
		p.paint(colorKind, "["+kind+"]"),
		p.paint(colorType, info.MediaType()),
		p.paint(colorDim, detail),
	)
}

func (p *Provider) paint(color, s string) string {
	if !p.color {
		return s
	}
	return color + s + colorReset
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
