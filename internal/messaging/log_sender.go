package messaging

import (
	"context"
	"log/slog"
)

// LogSender logs messages instead of delivering them. It backs dry runs.
type LogSender struct{}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (s *LogSender) SendMessage(_ context.Context, to string, body string) error {
	if err := ValidateMessage(to, body); err != nil {
		return &TransportError{To: to, Err: err}
	}
	slog.Info("Dry run: message not sent", "to", to, "body", body)
	return nil
}
