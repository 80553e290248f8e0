// Package scheduler provides the recurring timer that drives BulkPipe campaigns.
//
// Ticks are produced by a cron schedule; a tick that fires while the previous
// one is still running is skipped rather than queued.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Timer fires a task on a recurring schedule until stopped.
type Timer interface {
	// Start schedules task. It returns an error if the timer cannot be armed.
	Start(task func()) error
	// Stop prevents further ticks. The returned context is done once any
	// running task has returned. Stop is safe to call from inside the task.
	Stop() context.Context
}

// CycleExpression returns the 5-field cron expression firing every n minutes.
func CycleExpression(minutes int) string {
	return fmt.Sprintf("*/%d * * * *", minutes)
}

// CronTimer is a Timer backed by robfig/cron.
type CronTimer struct {
	expr string

	mu      sync.Mutex
	cron    *cron.Cron
	stopped bool
}

// Compile-time check that CronTimer implements Timer.
var _ Timer = (*CronTimer)(nil)

// NewCronTimer creates a timer for the given standard 5-field cron expression.
func NewCronTimer(expr string) *CronTimer {
	return &CronTimer{expr: expr}
}

// NewCycleTimer creates a timer firing every n minutes.
func NewCycleTimer(minutes int) *CronTimer {
	return NewCronTimer(CycleExpression(minutes))
}

func (t *CronTimer) Start(task func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cron != nil {
		return fmt.Errorf("timer already started")
	}

	logger := cronLogger()
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(t.expr, task); err != nil {
		slog.Error("CronTimer invalid schedule", "expr", t.expr, "error", err)
		return fmt.Errorf("invalid cron expression %q: %w", t.expr, err)
	}
	c.Start()
	t.cron = c
	slog.Info("CronTimer started", "expr", t.expr)
	return nil
}

func (t *CronTimer) Stop() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	ctx := t.cron.Stop()
	if !t.stopped {
		t.stopped = true
		slog.Info("CronTimer stopped", "expr", t.expr)
	}
	return ctx
}

// cronLogger routes cron's own messages (recovered panics, skipped ticks) to slog.
func cronLogger() cron.Logger {
	return cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn))
}
