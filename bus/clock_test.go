package bus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewClock(t *testing.T) {
	tests := []struct {
		period time.Duration
		want   time.Duration
	}{
		{0, DefaultTickPeriod},
		{-time.Second, DefaultTickPeriod},
		{10 * time.Millisecond, 10 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := NewClock(tt.period).Period(); got != tt.want {
			t.Errorf("NewClock(%v).Period() = %v, want %v", tt.period, got, tt.want)
		}
	}
}

func TestClock_Deadline(t *testing.T) {
	c := NewClock(time.Millisecond)
	d := c.Deadline(3 * time.Millisecond)

	c.Advance(2 * time.Millisecond)
	if d.Expired() {
		t.Fatal("Expired() = true after 2 ticks, want false")
	}
	c.Advance(500 * time.Microsecond)
	if !d.Expired() {
		t.Errorf("Expired() = false after 3 ticks, want true")
	}
	if got := c.Now(); got != 3 {
		t.Errorf("Now() = %d, want 3", got)
	}

	var zero Deadline
	if zero.Expired() {
		t.Error("zero Deadline Expired() = true, want false")
	}
}

func TestClock_OnTick(t *testing.T) {
	c := NewClock(time.Millisecond)
	var seen []uint64
	c.OnTick(func(n uint64) { seen = append(seen, n) })

	c.Tick()
	c.Tick()
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("hook ticks = %v, want [1 2]", seen)
	}
}

func TestClock_Run(t *testing.T) {
	c := NewClock(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for c.Now() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want %v", err, context.Canceled)
	}
	if c.Now() < 3 {
		t.Errorf("Now() = %d, want at least 3", c.Now())
	}
}
