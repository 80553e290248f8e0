// Package campaign runs bulk-messaging campaigns.
//
// A campaign partitions its contact list into fixed-size batches and drains
// one batch per timer tick. Each contact is paced by a cyclic delay pattern,
// checked against the delivery ledger, sent, and recorded. A failure for one
// contact never aborts the batch, and a batch always finishes before the next
// tick is allowed to act.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/BulkPipe/internal/contacts"
	"github.com/BTreeMap/BulkPipe/internal/messaging"
	"github.com/BTreeMap/BulkPipe/internal/models"
	"github.com/BTreeMap/BulkPipe/internal/scheduler"
	"github.com/BTreeMap/BulkPipe/internal/store"
)

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("campaign already running")

// Opts holds optional campaign settings.
type Opts struct {
	Sleep         func(time.Duration) // pacing wait, time.Sleep by default
	LedgerTimeout time.Duration       // bound on each ledger call, 0 disables
}

// Option defines a configuration option for a campaign.
type Option func(*Opts)

// WithSleep replaces the pacing wait function.
func WithSleep(sleep func(time.Duration)) Option {
	return func(o *Opts) {
		o.Sleep = sleep
	}
}

// WithLedgerTimeout bounds each ledger call.
func WithLedgerTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.LedgerTimeout = d
	}
}

// Campaign is the batch scheduler state machine: Idle, Running, Completed.
type Campaign struct {
	executor  *Executor
	batchSize int
	totalRows int

	// tickMu is held for the whole of a tick so batches never overlap.
	tickMu sync.Mutex

	mu       sync.Mutex
	state    models.CampaignState
	progress models.Progress
	totals   BatchResult
	timer    scheduler.Timer

	done     chan struct{}
	doneOnce sync.Once
}

// New creates an idle campaign over list.
func New(list *contacts.List, template string, cfg models.CampaignConfig, ledger store.Ledger, sender messaging.Sender, opts ...Option) (*Campaign, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if list == nil {
		return nil, fmt.Errorf("contact list is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}

	o := Opts{Sleep: time.Sleep}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}

	pattern := append([]int(nil), cfg.DelayPattern...)
	c := &Campaign{
		executor: &Executor{
			contacts:      list,
			template:      template,
			pattern:       pattern,
			ledger:        ledger,
			sender:        sender,
			sleep:         o.Sleep,
			ledgerTimeout: o.LedgerTimeout,
		},
		batchSize: cfg.BatchSize,
		totalRows: list.Len(),
		state:     models.CampaignStateIdle,
		progress: models.Progress{
			TotalBatches: TotalBatches(list.Len(), cfg.BatchSize),
		},
		done: make(chan struct{}),
	}
	slog.Debug("Campaign created", "rows", c.totalRows, "batch_size", c.batchSize, "total_batches", c.progress.TotalBatches)
	return c, nil
}

// State returns the current lifecycle state.
func (c *Campaign) State() models.CampaignState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Progress returns a snapshot of the campaign progress.
func (c *Campaign) Progress() models.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Totals returns the accumulated per-contact outcomes.
func (c *Campaign) Totals() BatchResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals
}

// Done is closed once the campaign reaches Completed.
func (c *Campaign) Done() <-chan struct{} {
	return c.done
}

// Tick handles one timer firing. It drains the next batch to completion, or
// completes the campaign once every batch has been processed. Ticks after
// completion, and ticks arriving while a batch is still draining, do nothing.
func (c *Campaign) Tick(ctx context.Context) {
	if !c.tickMu.TryLock() {
		slog.Warn("Campaign tick skipped: previous batch still draining")
		return
	}
	defer c.tickMu.Unlock()

	c.mu.Lock()
	if c.state == models.CampaignStateCompleted {
		c.mu.Unlock()
		slog.Debug("Campaign tick ignored: already completed")
		return
	}
	if c.state == models.CampaignStateIdle {
		c.state = models.CampaignStateRunning
		slog.Info("Campaign running", "rows", c.totalRows, "total_batches", c.progress.TotalBatches)
	}
	progress := c.progress
	c.mu.Unlock()

	if progress.Done() {
		c.complete()
		return
	}

	r := RangeFor(progress.CycleIndex, c.batchSize, c.totalRows)
	slog.Info("Campaign tick started", "cycle", progress.CycleIndex, "total_batches", progress.TotalBatches, "start", r.Start, "end", r.End)

	result, err := c.executor.DrainBatch(ctx, r)

	c.mu.Lock()
	c.totals.Add(result)
	if err != nil {
		c.mu.Unlock()
		slog.Warn("Campaign tick interrupted", "cycle", progress.CycleIndex, "sent", result.Sent, "skipped", result.Skipped, "failed", result.Failed)
		return
	}
	c.progress.CycleIndex++
	c.mu.Unlock()

	slog.Info("Campaign tick finished", "cycle", progress.CycleIndex, "sent", result.Sent, "skipped", result.Skipped, "failed", result.Failed)
}

// complete moves the campaign to Completed and stops its timer.
func (c *Campaign) complete() {
	c.mu.Lock()
	c.state = models.CampaignStateCompleted
	timer := c.timer
	totals := c.totals
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	c.doneOnce.Do(func() { close(c.done) })
	slog.Info("Messages successfully sent, closing the campaign", "sent", totals.Sent, "skipped", totals.Skipped, "failed", totals.Failed)
}

// Run arms timer with the campaign's tick and blocks until the campaign
// completes or ctx is cancelled. On cancellation the timer is stopped and any
// batch in progress ends after its current contact.
func (c *Campaign) Run(ctx context.Context, timer scheduler.Timer) error {
	c.mu.Lock()
	if c.timer != nil {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.timer = timer
	c.mu.Unlock()

	if err := timer.Start(func() { c.Tick(ctx) }); err != nil {
		slog.Error("Failed to start campaign timer", "error", err)
		return fmt.Errorf("failed to start campaign timer: %w", err)
	}
	slog.Info("Campaign scheduled", "rows", c.totalRows, "batch_size", c.batchSize, "total_batches", c.Progress().TotalBatches)

	select {
	case <-c.done:
		<-timer.Stop().Done()
		return nil
	case <-ctx.Done():
		slog.Info("Campaign stop requested, waiting for the current contact")
		<-timer.Stop().Done()
		return ctx.Err()
	}
}
