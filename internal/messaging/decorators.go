package messaging

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// TimeoutSender bounds every send with a deadline.
type TimeoutSender struct {
	next    Sender
	timeout time.Duration
}

// NewTimeoutSender wraps next so each send is cancelled after timeout.
// A non-positive timeout returns next unchanged.
func NewTimeoutSender(next Sender, timeout time.Duration) Sender {
	if timeout <= 0 {
		return next
	}
	return &TimeoutSender{next: next, timeout: timeout}
}

func (s *TimeoutSender) SendMessage(ctx context.Context, to string, body string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.next.SendMessage(ctx, to, body)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		slog.Error("Send timed out", "to", to, "timeout", s.timeout)
	}
	return err
}

// RateLimitedSender caps throughput independently of the delay pattern.
type RateLimitedSender struct {
	next    Sender
	limiter *rate.Limiter
}

// NewRateLimitedSender allows at most perMinute sends per minute.
// A non-positive limit returns next unchanged.
func NewRateLimitedSender(next Sender, perMinute int) Sender {
	if perMinute <= 0 {
		return next
	}
	return &RateLimitedSender{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (s *RateLimitedSender) SendMessage(ctx context.Context, to string, body string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return &TransportError{To: to, Err: err}
	}
	return s.next.SendMessage(ctx, to, body)
}
