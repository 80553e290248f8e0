package campaign

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/BulkPipe/internal/contacts"
	"github.com/BTreeMap/BulkPipe/internal/message"
	"github.com/BTreeMap/BulkPipe/internal/messaging"
	"github.com/BTreeMap/BulkPipe/internal/store"
)

// Outcome is the result of processing one contact.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// BatchResult counts per-contact outcomes.
type BatchResult struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (r *BatchResult) record(o Outcome) {
	switch o {
	case OutcomeSent:
		r.Sent++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
}

// Add accumulates other into r.
func (r *BatchResult) Add(other BatchResult) {
	r.Sent += other.Sent
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}

// Executor delivers the contacts of one batch, strictly one at a time.
type Executor struct {
	contacts      *contacts.List
	template      string
	pattern       []int
	ledger        store.Ledger
	sender        messaging.Sender
	sleep         func(time.Duration)
	ledgerTimeout time.Duration
}

// DrainBatch processes every row of r in ascending order. Failures are
// isolated to their contact. Cancellation of ctx is honoured only between
// contacts, in which case the partial result and ctx.Err() are returned.
func (e *Executor) DrainBatch(ctx context.Context, r BatchRange) (BatchResult, error) {
	var result BatchResult
	for i := r.Start; i < r.End; i++ {
		if err := ctx.Err(); err != nil {
			slog.Warn("Campaign batch interrupted", "next_index", i, "error", err)
			return result, err
		}
		result.record(e.deliver(ctx, i))
	}
	return result, nil
}

// deliver runs the wait, check, send, record sequence for row index.
func (e *Executor) deliver(ctx context.Context, index int) Outcome {
	// The contact in progress is never interrupted.
	ctx = context.WithoutCancel(ctx)

	delay := Delay(index, e.pattern)
	slog.Debug("Campaign pacing wait", "index", index, "delay", delay)
	e.sleep(delay)

	phone := e.contacts.Phone(index)
	to, err := messaging.CanonicalizeRecipient(phone)
	if err != nil {
		slog.Error("Campaign invalid contact identifier", "index", index, "phone", phone, "error", err)
		return OutcomeFailed
	}

	sent, err := e.hasSent(ctx, to)
	if err != nil {
		slog.Error("Campaign ledger check failed, contact not sent", "index", index, "to", to, "error", err)
		return OutcomeFailed
	}
	if sent {
		slog.Info("Contact already sent, skipping", "index", index, "to", to)
		return OutcomeSkipped
	}

	row := e.contacts.Rows[index]
	fields := e.contacts.Headers
	if len(fields) == 0 {
		fields = row.Keys()
	}
	body := message.RenderFields(row, fields, e.template)
	if unresolved := message.Unresolved(body); len(unresolved) > 0 {
		slog.Debug("Campaign message has unresolved placeholders", "index", index, "placeholders", unresolved)
	}

	if err := e.sender.SendMessage(ctx, to, body); err != nil {
		slog.Error("Campaign send failed", "index", index, "to", to, "error", err)
		return OutcomeFailed
	}
	slog.Info("Message sent to contact", "index", index, "to", to)

	if err := e.markSent(ctx, to); err != nil {
		slog.Error("Campaign could not record delivery", "index", index, "to", to, "error", err)
	}
	return OutcomeSent
}

func (e *Executor) hasSent(ctx context.Context, to string) (bool, error) {
	ctx, cancel := e.ledgerContext(ctx)
	defer cancel()
	return e.ledger.HasSent(ctx, to)
}

func (e *Executor) markSent(ctx context.Context, to string) error {
	ctx, cancel := e.ledgerContext(ctx)
	defer cancel()
	return e.ledger.MarkSent(ctx, to)
}

func (e *Executor) ledgerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.ledgerTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.ledgerTimeout)
}
