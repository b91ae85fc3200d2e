// Package provider defines the interface for message delivery backends.
package provider

import (
	"context"

	"github.com/shineum/mimeparse-lite/internal/email"
)

// Provider is the interface that delivery backends must implement.
// Each provider receives a fully parsed message tree and hands it to
// the target service (e.g., stdout, Amazon SES).
type Provider interface {
	// Send delivers a parsed message through this provider.
	// It returns an error if the delivery fails.
	Send(ctx context.Context, msg *email.Message) error

	// Name returns the human-readable name of this provider.
	Name() string
}
