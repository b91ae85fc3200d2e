package email

import (
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"
)

// Content is a flattened view of a message for delivery backends: the
// addressing headers, the first text and HTML bodies, and everything else
// as attachments.
type Content struct {
	From      string
	To        []string
	Cc        []string
	Bcc       []string
	Subject   string
	MessageID string

	TextBody string
	HTMLBody string
	// Attachments holds every basic part not used as a body, in walk order.
	Attachments []*BasicPart
}

// Flatten builds the Content of msg. Text bodies are converted to UTF-8.
// Parts of encapsulated messages are never used as bodies.
func Flatten(msg *Message) (*Content, error) {
	c := &Content{
		From:      DecodeHeader(msg.Headers.Get("From")),
		To:        AddressList(msg.Headers.Get("To")),
		Cc:        AddressList(msg.Headers.Get("Cc")),
		Bcc:       AddressList(msg.Headers.Get("Bcc")),
		Subject:   DecodeHeader(msg.Headers.Get("Subject")),
		MessageID: Unfold(msg.Headers.Get("Message-Id")),
	}

	if msg.Body != nil {
		if err := c.collect(msg.Body, false); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// collect sorts the basic parts under p into bodies and attachments.
// Parts of encapsulated messages are always attachments.
func (c *Content) collect(p Part, nested bool) error {
	switch v := p.(type) {
	case *MultiPart:
		for _, child := range v.Parts {
			if err := c.collect(child, nested); err != nil {
				return err
			}
		}
	case *MessagePart:
		if v.Message != nil && v.Message.Body != nil {
			return c.collect(v.Message.Body, true)
		}
	case *BasicPart:
		if !nested && v.Disposition != Attachment && v.Type == Text {
			sub := strings.ToLower(v.ContentSubType)
			if sub == "plain" && c.TextBody == "" || sub == "html" && c.HTMLBody == "" {
				body, err := v.Text()
				if err != nil {
					return fmt.Errorf("failed to decode %s body: %w", v.MediaType(), err)
				}
				if sub == "plain" {
					c.TextBody = body
				} else {
					c.HTMLBody = body
				}
				return nil
			}
		}
		c.Attachments = append(c.Attachments, v)
	}
	return nil
}

// Unfold removes the line breaks inserted by header folding.
func Unfold(value string) string {
	value = strings.ReplaceAll(value, "\r\n", "")
	return strings.TrimSpace(strings.ReplaceAll(value, "\n", ""))
}

var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := LookupCharset(charset)
		if err != nil {
			return nil, err
		}
		if enc == nil {
			return input, nil
		}
		return enc.NewDecoder().Reader(input), nil
	},
}

// DecodeHeader unfolds a header value and decodes RFC 2047 encoded words.
// Undecodable values are returned unfolded but otherwise unchanged.
func DecodeHeader(value string) string {
	value = Unfold(value)
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// AddressList splits an address header into bare addresses.
func AddressList(raw string) []string {
	raw = Unfold(raw)
	if raw == "" {
		return nil
	}

	parser := mail.AddressParser{WordDecoder: wordDecoder}
	addresses, err := parser.ParseList(raw)
	if err != nil {
		// Fall back to simple comma split if RFC 5322 parsing fails
		parts := strings.Split(raw, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, addr.Address)
	}
	return result
}
