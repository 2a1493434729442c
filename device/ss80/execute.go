package ss80

import (
	"context"

	"github.com/ardnew/softgpib/bus"
	"github.com/ardnew/softgpib/device"
	"github.com/ardnew/softgpib/pkg"
)

// chunkSize is the largest data transfer per string call in execution
// messages.
const chunkSize = 256

// StatusSize is the length of the extended status record.
const StatusSize = 20

// Execute runs the scheduled execution message as if secondary 0x6E had
// been received.
func (d *Device) Execute(ctx context.Context) bus.Status {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.executeState(ctx)
}

func (d *Device) executeState(ctx context.Context) bus.Status {
	d.ppr.Disable()
	defer d.ppr.Enable()

	var st bus.Status
	switch d.state.Exec {
	case ExecIdle:
		pkg.LogDebug(pkg.ComponentSS80, "execute with nothing scheduled", "device", d.name)
	case ExecLocateAndRead:
		st = d.locateAndRead(ctx)
	case ExecLocateAndWrite:
		st = d.locateAndWrite(ctx)
	case ExecSendStatus:
		st = d.sendStatus(ctx)
	case ExecDescribe:
		st = d.describe(ctx)
	default:
		pkg.LogWarn(pkg.ComponentSS80, "invalid execution state", "device", d.name, "state", d.state.Exec)
	}
	d.state.Exec = ExecIdle
	return st
}

// offset returns the byte offset of the current address.
func (d *Device) offset() int64 {
	return int64(d.state.Address) * int64(d.model.BlockSize())
}

// seekCheck reports whether the transfer fits the volume, flagging a seek
// error when it does not.
func (d *Device) seekCheck() bool {
	limit := d.model.ImageSize()
	if d.offset()+int64(d.state.Length) > limit {
		d.state.QStat = device.StatusError
		d.state.Errors |= device.ErrSeek
		pkg.LogDebug(pkg.ComponentSS80, "seek beyond volume", "device", d.name,
			"address", d.state.Address, "length", d.state.Length, "max", d.model.MaxBlock())
		return false
	}
	return true
}

// advance moves the current address past n transferred bytes.
func (d *Device) advance(n int) {
	d.state.Address += uint64(n / d.model.BlockSize())
}

func (d *Device) locateAndRead(ctx context.Context) bus.Status {
	d.state.QStat = device.StatusOK
	pkg.LogDebug(pkg.ComponentSS80, "locate and read", "device", d.name,
		"address", d.state.Address, "length", d.state.Length)
	if !d.seekCheck() {
		return d.errorReturn(ctx)
	}

	var st bus.Status
	total := 0
	for count := int(d.state.Length); count > 0; {
		chunk, flags := chunkSize, bus.Status(0)
		if count <= chunkSize {
			chunk, flags = count, bus.EOI
		}
		buf := d.buf[:chunk]
		if _, err := d.store.ReadAt(buf, d.offset()); err != nil {
			d.state.Errors |= device.ErrorBitsFor(err, false)
			pkg.LogDebug(pkg.ComponentSS80, "storage read failed", "device", d.name,
				"address", d.state.Address, "sent", total, "error", err)
			return d.errorReturn(ctx)
		}
		n, ws := d.port.WriteString(ctx, buf, flags)
		total += n
		count -= n
		d.advance(n)
		if n != chunk {
			d.state.QStat = device.StatusError
			if ws.IsError() || n == 0 {
				d.state.Errors |= device.ErrGPIB
				st = ws & bus.ErrorMask
				break
			}
		}
	}
	pkg.LogDebug(pkg.ComponentSS80, "read complete", "device", d.name, "bytes", total)
	return st
}

func (d *Device) locateAndWrite(ctx context.Context) bus.Status {
	d.state.QStat = device.StatusOK
	pkg.LogDebug(pkg.ComponentSS80, "locate and write", "device", d.name,
		"address", d.state.Address, "length", d.state.Length)
	skip := false
	if !d.seekCheck() {
		d.state.Errors |= device.ErrWrite
		skip = true
	}

	var st bus.Status
	total := 0
	for count := int(d.state.Length); count > 0; {
		chunk := min(count, chunkSize)
		clear(d.buf[:chunkSize])
		n, rs := d.port.ReadString(ctx, d.buf[:chunk], 0)
		st = rs
		if n != chunk {
			if rs.IsError() {
				d.state.Errors |= device.ErrWrite
				d.state.QStat = device.StatusError
				break
			}
			if !rs.Has(bus.EOI) {
				// A command byte ended the data message early and waits in
				// the pushback slot for the dispatcher.
				d.state.Errors |= device.ErrWrite
				d.state.QStat = device.StatusError
				pkg.LogDebug(pkg.ComponentSS80, "write data cut short by command", "device", d.name,
					"address", d.state.Address, "received", total+n, "length", d.state.Length)
				break
			}
			if n == 0 {
				break
			}
		}

		// Data keeps arriving after a failure so the handshake completes.
		if !skip && n > 0 {
			if _, err := d.store.WriteAt(d.buf[:d.model.BlockSize()], d.offset()); err != nil {
				d.state.Errors |= device.ErrorBitsFor(err, true)
				if d.store.IsReadOnly() {
					d.state.Errors |= device.ErrWP
				}
				d.state.QStat = device.StatusError
				skip = true
				pkg.LogDebug(pkg.ComponentSS80, "storage write failed", "device", d.name,
					"address", d.state.Address, "error", err)
			} else {
				d.state.Address++
				total += n
			}
		}
		count -= n
		if rs.Has(bus.EOI) {
			break
		}
	}
	pkg.LogDebug(pkg.ComponentSS80, "write complete", "device", d.name, "bytes", total)
	return st & bus.ErrorMask
}

// StatusRecord builds the extended status record for the current state.
func (d *Device) StatusRecord() [StatusSize]byte {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.statusRecord()
}

func (d *Device) statusRecord() [StatusSize]byte {
	var rec [StatusSize]byte
	rec[0] = (d.state.Volume&0x0f)<<4 | d.state.Unit&0x0f
	rec[1] = 0xff
	errs := d.state.Errors
	if errs&device.ErrSeek != 0 {
		rec[3] = 0x01 // address bounds
	}
	if errs&(device.ErrRead|device.ErrWrite|device.ErrDisk) != 0 {
		rec[4] = 0x02 // unit fault
	}
	if errs&device.ErrWP != 0 {
		rec[6] = 0x08 // write protect
	}
	copy(rec[10:16], d.rawAddr[:])
	return rec
}

func (d *Device) sendStatus(ctx context.Context) bus.Status {
	rec := d.statusRecord()
	if d.state.Errors != 0 {
		d.state.QStat = device.StatusError
	}
	n, st := d.port.WriteString(ctx, rec[:], bus.EOI)
	if n != len(rec) {
		pkg.LogDebug(pkg.ComponentSS80, "send status failed", "device", d.name, "status", st.String())
	}
	pkg.LogDebug(pkg.ComponentSS80, "send status", "device", d.name, "errors", d.state.Errors.String())
	return st & bus.ErrorMask
}

func (d *Device) describe(ctx context.Context) bus.Status {
	records := [][]byte{d.model.Controller[:], d.model.Unit[:], d.model.Volume[:]}
	for i, rec := range records {
		var flags bus.Status
		if i == len(records)-1 {
			flags = bus.EOI
		}
		if n, st := d.port.WriteString(ctx, rec, flags); n != len(rec) {
			pkg.LogDebug(pkg.ComponentSS80, "describe failed", "device", d.name,
				"record", i, "status", st.String())
			return st & bus.ErrorMask
		}
	}
	pkg.LogDebug(pkg.ComponentSS80, "describe", "device", d.name, "model", d.model.Name)
	return 0
}

// errorReturn reports a failed execution with a single QSTAT byte. QSTAT
// stays set so the controller requests status.
func (d *Device) errorReturn(ctx context.Context) bus.Status {
	d.state.QStat = device.StatusError
	q := [1]byte{byte(d.state.QStat)}
	_, st := d.port.WriteString(ctx, q[:], bus.EOI)
	return st & bus.ErrorMask
}
