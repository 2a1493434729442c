package emulator

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/softgpib/bus"
	"github.com/ardnew/softgpib/device/amigo"
	"github.com/ardnew/softgpib/device/printer"
	"github.com/ardnew/softgpib/device/ss80"
	"github.com/ardnew/softgpib/dispatch"
	"github.com/ardnew/softgpib/pkg"
)

// Reset returns the named device to its power-on state. An empty name
// resets the whole bus: port, session, poll register and every device.
func (e *Emulator) Reset(name string) error {
	if name == "" {
		if err := e.acquire(ownerAdmin); err != nil {
			return err
		}
		defer e.release()
		e.dispatcher.Reset()
		return nil
	}
	dev, err := e.dispatcher.Device(name)
	if err != nil {
		return err
	}
	dev.Init()
	return nil
}

// Clear performs a universal device clear on every device.
func (e *Emulator) Clear() {
	for _, dev := range e.dispatcher.Devices() {
		dev.Clear()
	}
}

// Decode applies a command record to the named drive as if it had been
// received in command state, and describes the decoded commands. AMIGO
// records are taken as arriving under secondary; SS80 ignores it.
func (e *Emulator) Decode(name string, secondary uint8, rec []byte) (string, error) {
	dev, err := e.dispatcher.Device(name)
	if err != nil {
		return "", err
	}
	switch d := dev.(type) {
	case *ss80.Device:
		cmds := d.Decode(rec)
		parts := make([]string, len(cmds))
		for i, c := range cmds {
			parts[i] = c.String()
		}
		return strings.Join(parts, " "), nil
	case *amigo.Device:
		if secondary == 0 {
			secondary = amigo.SecondaryCommand
		}
		c := d.Decode(secondary, rec)
		return c.Op.String(), nil
	}
	return "", fmt.Errorf("%s takes no commands: %w", name, pkg.ErrInvalidParameter)
}

// Execute runs the pending execution phase of the named drive over the bus
// port. The bus must be stopped, and Run is refused until the transfer
// ends. The tick clock runs for the duration of the transfer so the
// transport timeout applies.
func (e *Emulator) Execute(ctx context.Context, name string) (bus.Status, error) {
	if err := e.acquire(ownerAdmin); err != nil {
		return 0, err
	}
	defer e.release()
	dev, err := e.dispatcher.Device(name)
	if err != nil {
		return 0, err
	}

	cctx, cancel := context.WithCancel(ctx)
	var g errgroup.Group
	g.Go(func() error { return e.clock.Run(cctx) })
	defer func() {
		cancel()
		g.Wait()
	}()

	switch d := dev.(type) {
	case *ss80.Device:
		return d.Execute(ctx), nil
	case *amigo.Device:
		secondary := uint8(amigo.SecondaryExecute)
		switch d.Snapshot().Phase {
		case amigo.PhaseRequestStatus, amigo.PhaseRequestStatusBuffered,
			amigo.PhaseRequestStatusUnbuffered, amigo.PhaseRequestLogicalAddress:
			secondary = amigo.SecondaryCommand
		}
		return d.Execute(ctx, secondary), nil
	}
	return 0, fmt.Errorf("%s has no execution phase: %w", name, pkg.ErrInvalidParameter)
}

// Describe returns a one-line summary of the device state.
func Describe(dev dispatch.Device) string {
	switch d := dev.(type) {
	case *ss80.Device:
		s := d.Snapshot()
		return fmt.Sprintf("%s: ss80 %s addr=%d unit=%d vol=%d block=%d len=%d exec=%s qstat=%s errors=%s",
			d.Name(), d.Model().Name, d.Address(), s.Unit, s.Volume, s.Address, s.Length,
			s.Exec, s.QStat, s.Errors)
	case *amigo.Device:
		s := d.Snapshot()
		return fmt.Sprintf("%s: amigo %s addr=%d unit=%d chs=%s phase=%s dsj=%s errors=%s",
			d.Name(), d.Model().Name, d.Address(), s.Unit, s.Position, s.Phase, s.DSJ, s.Errors)
	case *printer.Device:
		return d.String()
	}
	return fmt.Sprintf("%s: addr=%d", dev.Name(), dev.Address())
}

// WriteStatus writes the bus session, the poll register and every device
// summary to w.
func (e *Emulator) WriteStatus(w io.Writer) error {
	state := "stopped"
	if e.Running() {
		state = "running"
	}
	fmt.Fprintf(w, "bus %s: %s ppr=%02X\n", state, e.dispatcher.Snapshot(), e.ppr.Value())
	for _, dev := range e.dispatcher.Devices() {
		if _, err := fmt.Fprintln(w, Describe(dev)); err != nil {
			return err
		}
	}
	return nil
}
