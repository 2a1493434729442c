package amigo

import (
	"context"

	"github.com/ardnew/softgpib/bus"
	"github.com/ardnew/softgpib/device"
	"github.com/ardnew/softgpib/dispatch"
	"github.com/ardnew/softgpib/pkg"
)

// Execute runs the pending phase as if secondary had been received with
// the drive addressed. Secondary 0x60 moves a sector and 0x68 sends the
// prepared status or logical address.
func (d *Device) Execute(ctx context.Context, secondary uint8) bus.Status {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.run(ctx, secondary)
}

func (d *Device) execute(ctx context.Context, v dispatch.View, secondary uint8) bus.Status {
	if v.Talking() == bus.UNT {
		return 0
	}
	return d.run(ctx, secondary)
}

func (d *Device) run(ctx context.Context, secondary uint8) bus.Status {
	phase := d.state.Phase
	if phase == PhaseIdle {
		return 0
	}
	d.ppr.Disable()
	defer func() { d.state.Phase = PhaseIdle }()

	switch secondary {
	case SecondaryExecute:
		switch {
		case phase.reads():
			return d.bufferedRead(ctx)
		case phase.writes():
			return d.bufferedWrite(ctx)
		}
	case SecondaryCommand:
		switch phase {
		case PhaseRequestStatusBuffered, PhaseRequestStatusUnbuffered:
			return d.sendStatus(ctx)
		case PhaseRequestLogicalAddress:
			return d.sendLogicalAddress(ctx)
		}
	}
	pkg.LogDebug(pkg.ComponentAmigo, "execute ignored", "device", d.name,
		"secondary", secondary, "phase", phase.String())
	d.ppr.Enable()
	return 0
}

// sector returns the sector transfer buffer.
func (d *Device) sector() []byte {
	return d.buf[:d.model.BytesPerSector]
}

// bufferedRead sends the sector at the current position with END and
// advances. A failed storage read still sends a zero-filled sector.
func (d *Device) bufferedRead(ctx context.Context) bus.Status {
	defer d.ppr.Enable()
	buf := d.sector()
	pos := d.state.Position
	_, err := d.store.ReadAt(buf, d.model.Offset(pos))
	if err != nil {
		clear(buf)
		d.state.DSJ = device.StatusError
		d.state.Errors |= device.ErrorBitsFor(err, false)
		pkg.LogDebug(pkg.ComponentAmigo, "storage read failed", "device", d.name,
			"chs", pos.String(), "error", err)
	}

	n, st := d.port.WriteString(ctx, buf, bus.EOI)
	if st.IsError() || n != len(buf) {
		d.state.DSJ = device.StatusError
		d.state.Errors |= device.ErrGPIB
		return st & bus.ErrorMask
	}
	if err != nil {
		return 0
	}
	if !d.increment() {
		d.state.DSJ = device.StatusError
		d.state.Errors |= device.ErrSeek
	}
	pkg.LogDebug(pkg.ComponentAmigo, "read sector", "device", d.name,
		"chs", pos.String(), "next", d.state.Position.String())
	return 0
}

// bufferedWrite receives one sector, stores it at the current position and
// advances.
func (d *Device) bufferedWrite(ctx context.Context) bus.Status {
	defer d.ppr.Enable()
	buf := d.sector()
	pos := d.state.Position
	n, st := d.port.ReadString(ctx, buf, 0)
	if st.IsError() || n != len(buf) {
		d.state.DSJ = device.StatusError
		d.state.Errors |= device.ErrGPIB
		pkg.LogDebug(pkg.ComponentAmigo, "short sector", "device", d.name,
			"length", n, "status", st.String())
		return st & bus.ErrorMask
	}

	if _, err := d.store.WriteAt(buf, d.model.Offset(pos)); err != nil {
		d.state.DSJ = device.StatusError
		d.state.Errors |= device.ErrorBitsFor(err, true)
		pkg.LogDebug(pkg.ComponentAmigo, "storage write failed", "device", d.name,
			"chs", pos.String(), "error", err)
		return 0
	}
	if !d.increment() {
		d.state.DSJ = device.StatusError
		d.state.Errors |= device.ErrSeek
	}
	pkg.LogDebug(pkg.ComponentAmigo, "wrote sector", "device", d.name,
		"chs", pos.String(), "next", d.state.Position.String())
	return 0
}

// sendStatus sends the prepared status record. A complete transfer clears
// DSJ and the error bits.
func (d *Device) sendStatus(ctx context.Context) bus.Status {
	defer d.ppr.Enable()
	n, st := d.port.WriteString(ctx, d.status[:], bus.EOI)
	if st.IsError() || n != len(d.status) {
		d.state.DSJ = device.StatusError
		d.state.Errors |= device.ErrGPIB
		return st & bus.ErrorMask
	}
	pkg.LogDebug(pkg.ComponentAmigo, "status", "device", d.name,
		"record", d.status, "errors", d.state.Errors.String())
	d.state.DSJ = device.StatusOK
	d.state.Errors = 0
	return 0
}

func (d *Device) sendLogicalAddress(ctx context.Context) bus.Status {
	defer d.ppr.Enable()
	n, st := d.port.WriteString(ctx, d.logical[:], bus.EOI)
	if st.IsError() || n != len(d.logical) {
		d.state.DSJ = device.StatusError
		d.state.Errors |= device.ErrGPIB
	}
	return st & bus.ErrorMask
}

// dsj sends the DSJ byte and clears it along with the error bits.
func (d *Device) dsj(ctx context.Context) bus.Status {
	q := [1]byte{byte(d.state.DSJ)}
	n, st := d.port.WriteString(ctx, q[:], bus.EOI)
	if st.IsError() || n != len(q) {
		d.state.DSJ = device.StatusError
		d.state.Errors |= device.ErrGPIB
		return st & bus.ErrorMask
	}
	pkg.LogDebug(pkg.ComponentAmigo, "dsj", "device", d.name, "dsj", d.state.DSJ.String())
	d.state.DSJ = device.StatusOK
	d.state.Errors = 0
	return 0
}

// verify reads sectors from the current position, advancing past each.
func (d *Device) verify(sectors uint16) {
	defer d.ppr.Enable()
	buf := d.sector()
	for range sectors {
		if _, err := d.store.ReadAt(buf, d.model.Offset(d.state.Position)); err != nil {
			d.state.DSJ = device.StatusError
			d.state.Errors |= device.ErrRead
			pkg.LogDebug(pkg.ComponentAmigo, "verify failed", "device", d.name,
				"chs", d.state.Position.String(), "error", err)
			return
		}
		if !d.increment() {
			d.state.DSJ = device.StatusError
			d.state.Errors |= device.ErrSeek
			return
		}
	}
}

// format fills every sector with fill and returns to the first sector.
func (d *Device) format(fill byte) {
	defer d.ppr.Enable()
	buf := d.sector()
	for i := range buf {
		buf[i] = fill
	}
	d.state.Position = CHS{}
	for {
		if _, err := d.store.WriteAt(buf, d.model.Offset(d.state.Position)); err != nil {
			d.state.DSJ = device.StatusError
			d.state.Errors |= device.ErrorBitsFor(err, true)
			pkg.LogDebug(pkg.ComponentAmigo, "format failed", "device", d.name,
				"chs", d.state.Position.String(), "error", err)
			return
		}
		if !d.increment() {
			break
		}
	}
	d.state.Position = CHS{}
	d.state.DSJ = device.StatusOK
	pkg.LogDebug(pkg.ComponentAmigo, "format complete", "device", d.name, "fill", fill)
}

// readLoopback sends back the bytes of the last write loopback.
func (d *Device) readLoopback(ctx context.Context) bus.Status {
	d.ppr.Disable()
	defer d.ppr.Enable()
	data := d.loopback
	if len(data) == 0 {
		data = d.buf[:]
	}
	_, st := d.port.WriteString(ctx, data, bus.EOI)
	if st.IsError() {
		d.state.DSJ = device.StatusError
		d.state.Errors |= device.ErrGPIB
	}
	return st & bus.ErrorMask
}

// writeLoopback stores a received message for readLoopback.
func (d *Device) writeLoopback(ctx context.Context) bus.Status {
	d.ppr.Disable()
	defer d.ppr.Enable()
	n, st := d.port.ReadString(ctx, d.buf[:], bus.EOI)
	if st.IsError() {
		d.state.DSJ = device.StatusError
		d.state.Errors |= device.ErrGPIB
		return st & bus.ErrorMask
	}
	d.loopback = append(d.loopback[:0], d.buf[:n]...)
	return 0
}
