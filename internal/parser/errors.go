package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput reports structurally invalid input.
	ErrMalformedInput = errors.New("mime: malformed input")
	// ErrMalformedHeaderLine reports a header line that is neither a field,
	// a continuation nor recognizable body data.
	ErrMalformedHeaderLine = fmt.Errorf("%w: malformed header line", ErrMalformedInput)
	// ErrLineTooLong reports a line longer than the configured maximum.
	ErrLineTooLong = fmt.Errorf("%w: line too long", ErrMalformedInput)
	// ErrUnknownContentType reports an unrecognized primary content type.
	ErrUnknownContentType = errors.New("mime: unknown content type")
	// ErrUnsupportedPartialSubtype reports a message/partial part.
	ErrUnsupportedPartialSubtype = errors.New("mime: message/partial is not supported")
	// ErrEmptyMessage reports input that held no lines at all.
	ErrEmptyMessage = errors.New("mime: empty message")
	// ErrEmptyBasicPart reports a basic part whose decoded body is empty.
	ErrEmptyBasicPart = errors.New("mime: empty basic part")
	// ErrNotStarted is returned by Parse and EndParse before BeginParse.
	ErrNotStarted = errors.New("mime: parse not started")
	// ErrAlreadyEnded is returned by Parse and EndParse after EndParse.
	ErrAlreadyEnded = errors.New("mime: parse already ended")
)
