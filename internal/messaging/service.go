// Package messaging defines the transport abstraction campaigns deliver through.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sender delivers a rendered message to a single recipient.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Error variables for recipient and body validation
var (
	ErrEmptyRecipient   = errors.New("recipient cannot be empty")
	ErrInvalidRecipient = errors.New("recipient must contain only digits")
	ErrEmptyBody        = errors.New("message body cannot be empty")
)

// TransportError reports a failed send to one recipient.
type TransportError struct {
	To  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to send message to %s: %v", e.To, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// chat-id suffixes accepted on input and stripped during canonicalization
var recipientSuffixes = []string{"@c.us", "@s.whatsapp.net"}

// CanonicalizeRecipient normalizes a phone identifier to bare digits.
// A leading '+', spaces, dashes, dots, parentheses and chat-id suffixes are
// removed.
func CanonicalizeRecipient(recipient string) (string, error) {
	r := strings.TrimSpace(recipient)
	for _, suffix := range recipientSuffixes {
		r = strings.TrimSuffix(r, suffix)
	}
	r = strings.TrimPrefix(r, "+")
	r = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "").Replace(r)
	if r == "" {
		return "", ErrEmptyRecipient
	}
	for _, c := range r {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidRecipient, recipient)
		}
	}
	return r, nil
}

// ValidateMessage checks the arguments every transport requires.
func ValidateMessage(to, body string) error {
	if to == "" {
		return ErrEmptyRecipient
	}
	if body == "" {
		return ErrEmptyBody
	}
	return nil
}
