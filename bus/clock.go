package bus

import (
	"context"
	"sync/atomic"
	"time"
)

// Default timing.
const (
	// DefaultTickPeriod is the resolution of the timeout clock.
	DefaultTickPeriod = time.Millisecond

	// DefaultTimeout bounds every handshake wait state.
	DefaultTimeout = 500 * time.Millisecond
)

// Clock is a monotonic tick counter advanced by a background goroutine.
// The foreground handshake samples it without locking; the tick never
// touches bus lines or protocol state.
type Clock struct {
	period time.Duration
	ticks  atomic.Uint64
	hooks  []func(tick uint64)
}

// NewClock returns a clock that advances once per period. A non-positive
// period selects DefaultTickPeriod.
func NewClock(period time.Duration) *Clock {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	return &Clock{period: period}
}

// Period returns the tick period.
func (c *Clock) Period() time.Duration {
	return c.period
}

// Now returns the current tick count.
func (c *Clock) Now() uint64 {
	return c.ticks.Load()
}

// OnTick registers fn to be called from the tick goroutine after every
// tick. Hooks must be registered before Run is started and must not touch
// bus state.
func (c *Clock) OnTick(fn func(tick uint64)) {
	c.hooks = append(c.hooks, fn)
}

// Tick advances the clock by one period and runs the tick hooks.
func (c *Clock) Tick() {
	n := c.ticks.Add(1)
	for _, fn := range c.hooks {
		fn(n)
	}
}

// Advance advances the clock by d, rounded up to whole ticks.
func (c *Clock) Advance(d time.Duration) {
	for range c.ticksFor(d) {
		c.Tick()
	}
}

// Run advances the clock at its period until ctx is cancelled.
func (c *Clock) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Deadline returns a deadline d from now.
func (c *Clock) Deadline(d time.Duration) Deadline {
	return Deadline{clock: c, at: c.Now() + c.ticksFor(d)}
}

func (c *Clock) ticksFor(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64((d + c.period - 1) / c.period)
}

// Deadline is a point on a Clock.
type Deadline struct {
	clock *Clock
	at    uint64
}

// Expired reports whether the clock has reached the deadline.
func (d Deadline) Expired() bool {
	return d.clock != nil && d.clock.Now() >= d.at
}
