package messaging

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingSender struct {
	calls   int
	lastCtx context.Context
	block   bool
}

func (r *recordingSender) SendMessage(ctx context.Context, to string, body string) error {
	r.calls++
	r.lastCtx = ctx
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func TestCanonicalizeRecipient(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"bare digits", "5511999990000", "5511999990000", nil},
		{"e164", "+55 11 99999-0000", "5511999990000", nil},
		{"parentheses and dots", "(11) 9999.0000", "1199990000", nil},
		{"c.us suffix", "5511999990000@c.us", "5511999990000", nil},
		{"jid suffix", "5511999990000@s.whatsapp.net", "5511999990000", nil},
		{"surrounding space", "  123  ", "123", nil},
		{"empty", "", "", ErrEmptyRecipient},
		{"only punctuation", "+ -", "", ErrEmptyRecipient},
		{"letters", "55abc", "", ErrInvalidRecipient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizeRecipient(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("CanonicalizeRecipient(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CanonicalizeRecipient(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateMessage(t *testing.T) {
	if err := ValidateMessage("", "hi"); !errors.Is(err, ErrEmptyRecipient) {
		t.Errorf("expected ErrEmptyRecipient, got %v", err)
	}
	if err := ValidateMessage("1", ""); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("expected ErrEmptyBody, got %v", err)
	}
	if err := ValidateMessage("1", "hi"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTimeoutSender(t *testing.T) {
	inner := &recordingSender{block: true}
	s := NewTimeoutSender(inner, 20*time.Millisecond)

	start := time.Now()
	err := s.SendMessage(context.Background(), "1", "hi")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout was not applied")
	}
}

func TestTimeoutSenderDisabled(t *testing.T) {
	inner := &recordingSender{}
	if s := NewTimeoutSender(inner, 0); s != Sender(inner) {
		t.Errorf("expected zero timeout to return inner sender, got %T", s)
	}
}

func TestRateLimitedSender(t *testing.T) {
	inner := &recordingSender{}
	s := NewRateLimitedSender(inner, 60000) // one per millisecond

	for i := 0; i < 3; i++ {
		if err := s.SendMessage(context.Background(), "1", "hi"); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRateLimitedSenderCancelled(t *testing.T) {
	inner := &recordingSender{}
	s := NewRateLimitedSender(inner, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.SendMessage(ctx, "1", "hi")
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if inner.calls != 0 {
		t.Errorf("expected no inner calls, got %d", inner.calls)
	}
}

func TestRateLimitedSenderDisabled(t *testing.T) {
	inner := &recordingSender{}
	if s := NewRateLimitedSender(inner, 0); s != Sender(inner) {
		t.Errorf("expected zero limit to return inner sender, got %T", s)
	}
}

func TestLogSender(t *testing.T) {
	s := NewLogSender()
	if err := s.SendMessage(context.Background(), "1", "hi"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	var transportErr *TransportError
	if err := s.SendMessage(context.Background(), "1", ""); !errors.As(err, &transportErr) {
		t.Errorf("expected TransportError for empty body, got %v", err)
	}
}
