// Package messaging delivers rendered notifications over mail transports.
package messaging

import (
	"context"
	"errors"
	"strings"
)

// ErrNoRecipients is returned when a message has no primary recipient.
var ErrNoRecipients = errors.New("messaging: message has no recipients")

// Message is a rendered notification ready for delivery.
type Message struct {
	Subject string
	Body    string
	To      []string
	CC      []string
	BCC     []string
	HTML    bool
}

// Validate checks that the message can be addressed.
func (m Message) Validate() error {
	for _, addr := range m.To {
		if strings.TrimSpace(addr) != "" {
			return nil
		}
	}
	return ErrNoRecipients
}

// Sender delivers a message. A nil error means the transport accepted it.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

func compact(addresses []string) []string {
	out := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
