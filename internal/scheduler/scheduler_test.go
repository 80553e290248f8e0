package scheduler

import (
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestCycleExpression(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{1, "*/1 * * * *"},
		{5, "*/5 * * * *"},
		{60, "*/60 * * * *"},
	}
	for _, tt := range tests {
		if got := CycleExpression(tt.minutes); got != tt.want {
			t.Errorf("CycleExpression(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}

func TestCronTimerStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	timer := NewCycleTimer(5)
	if err := timer.Start(func() {}); err != nil {
		t.Fatalf("Expected no error starting timer, got %v", err)
	}
	if err := timer.Start(func() {}); err == nil {
		t.Error("Expected error starting timer twice")
	}

	select {
	case <-timer.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("Stop did not complete")
	}
	// Stopping twice is a no-op.
	<-timer.Stop().Done()
}

func TestCronTimerInvalidExpression(t *testing.T) {
	defer goleak.VerifyNone(t)

	timer := NewCronTimer("not a schedule")
	if err := timer.Start(func() {}); err == nil {
		t.Fatal("Expected error for invalid cron expression")
	}
	<-timer.Stop().Done()
}

func TestCronTimerStopBeforeStart(t *testing.T) {
	timer := NewCycleTimer(1)
	select {
	case <-timer.Stop().Done():
	default:
		t.Fatal("Stop on an unstarted timer should return a done context")
	}
}
