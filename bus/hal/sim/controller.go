package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/ardnew/softgpib/bus/hal"
	"github.com/ardnew/softgpib/pkg"
)

// Controller timing defaults.
const (
	DefaultControllerTimeout = 2 * time.Second
	DefaultPollSettle        = 5 * time.Millisecond
	DefaultIFCPulse          = 20 * time.Millisecond
)

// Controller plays the system controller on a simulated bus: it addresses
// devices, sends and receives data, runs parallel polls and pulses IFC.
// It exists to drive device emulators from tests and examples; it is not a
// general controller implementation.
type Controller struct {
	port     *Port
	timeout  time.Duration
	settle   time.Duration
	ifcPulse time.Duration
}

// NewController creates a controller on port p.
func NewController(p *Port) *Controller {
	return &Controller{
		port:     p,
		timeout:  DefaultControllerTimeout,
		settle:   DefaultPollSettle,
		ifcPulse: DefaultIFCPulse,
	}
}

// SetTimeout bounds every handshake wait.
func (c *Controller) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Command sends cmds with ATN asserted, then releases ATN.
func (c *Controller) Command(ctx context.Context, cmds ...byte) error {
	defer c.port.Float(hal.ATN)
	for _, v := range cmds {
		if err := c.source(ctx, v, true, false); err != nil {
			return fmt.Errorf("command %02X: %w", v, err)
		}
	}
	return nil
}

// Send sends data bytes, tagging the last with EOI if eoi is set.
func (c *Controller) Send(ctx context.Context, data []byte, eoi bool) error {
	for i, v := range data {
		if err := c.source(ctx, v, false, eoi && i == len(data)-1); err != nil {
			return fmt.Errorf("send byte %d: %w", i, err)
		}
	}
	return nil
}

// Receive accepts up to max bytes, stopping early after a byte tagged with
// EOI. It reports whether EOI ended the transfer.
func (c *Controller) Receive(ctx context.Context, max int) ([]byte, bool, error) {
	p := c.port
	p.Float(hal.DAV)
	p.Float(hal.EOI)
	p.Float(hal.ATN)
	p.FloatData()
	p.Assert(hal.NRFD)
	p.Assert(hal.NDAC)

	out := make([]byte, 0, max)
	for len(out) < max {
		p.Float(hal.NRFD)
		if err := c.wait(ctx, "DAV low", func() bool { return p.IsAsserted(hal.DAV) }); err != nil {
			return out, false, err
		}
		p.Assert(hal.NRFD)
		v := ^p.ReadData()
		eoi := p.IsAsserted(hal.EOI)
		p.Float(hal.NDAC)
		if err := c.wait(ctx, "DAV high", func() bool { return !p.IsAsserted(hal.DAV) }); err != nil {
			return out, false, err
		}
		p.Assert(hal.NDAC)
		out = append(out, v)
		if eoi {
			return out, true, nil
		}
	}
	return out, false, nil
}

// ParallelPoll asserts ATN and EOI together and samples the response byte.
// The sample is taken as soon as any device responds, or after the settle
// time if none does.
func (c *Controller) ParallelPoll(ctx context.Context) (byte, error) {
	p := c.port
	p.Float(hal.NRFD)
	p.Float(hal.NDAC)
	p.Assert(hal.ATN)
	p.Assert(hal.EOI)
	defer func() {
		p.Float(hal.EOI)
		p.Float(hal.ATN)
	}()

	deadline := time.Now().Add(c.settle)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if v := ^p.ReadData(); v != 0 {
			return v, nil
		}
	}
	return ^p.ReadData(), nil
}

// InterfaceClear pulses IFC.
func (c *Controller) InterfaceClear(ctx context.Context) error {
	c.port.Assert(hal.IFC)
	defer c.port.Float(hal.IFC)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.ifcPulse):
		return nil
	}
}

// source sends one byte as talker. Acceptors must be present (NDAC held
// low) and ready (NRFD released) before data is placed on the bus.
func (c *Controller) source(ctx context.Context, v byte, atn, eoi bool) error {
	p := c.port
	p.Float(hal.NRFD)
	p.Float(hal.NDAC)
	if atn {
		p.Assert(hal.ATN)
	} else {
		p.Float(hal.ATN)
	}

	ready := func() bool { return !p.IsAsserted(hal.NRFD) && p.IsAsserted(hal.NDAC) }
	if err := c.wait(ctx, "listeners ready", ready); err != nil {
		return err
	}
	if eoi {
		p.Assert(hal.EOI)
	}
	p.WriteData(^v)
	p.Assert(hal.DAV)
	err := c.wait(ctx, "NDAC high", func() bool { return !p.IsAsserted(hal.NDAC) })
	p.Float(hal.DAV)
	p.Float(hal.EOI)
	p.FloatData()
	return err
}

func (c *Controller) wait(ctx context.Context, what string, cond func() bool) error {
	deadline := time.Now().Add(c.timeout)
	for !cond() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			pkg.LogDebug(pkg.ComponentHAL, "controller wait expired",
				"waiting", what, "bus", c.port.bus.String())
			return fmt.Errorf("waiting for %s: %w", what, pkg.ErrTimeout)
		}
	}
	return nil
}
