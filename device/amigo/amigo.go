package amigo

import (
	"context"
	"fmt"
	"sync"

	"github.com/ardnew/softgpib/bus"
	"github.com/ardnew/softgpib/device"
	"github.com/ardnew/softgpib/dispatch"
	"github.com/ardnew/softgpib/pkg"
	"github.com/ardnew/softgpib/storage"
)

// Phase is the pending AMIGO protocol phase.
type Phase uint8

// Protocol phases.
const (
	PhaseIdle Phase = iota
	PhaseRequestStatus
	PhaseRequestStatusUnbuffered
	PhaseRequestStatusBuffered
	PhaseRequestLogicalAddress
	PhaseColdLoadRead
	PhaseReadUnbuffered
	PhaseReadBuffered
	PhaseWriteUnbuffered
	PhaseWriteBuffered
	PhaseInitialize
)

var phaseNames = [...]string{
	PhaseIdle:                    "idle",
	PhaseRequestStatus:           "request-status",
	PhaseRequestStatusUnbuffered: "request-status-unbuffered",
	PhaseRequestStatusBuffered:   "request-status-buffered",
	PhaseRequestLogicalAddress:   "request-logical-address",
	PhaseColdLoadRead:            "cold-load-read",
	PhaseReadUnbuffered:          "read-unbuffered",
	PhaseReadBuffered:            "read-buffered",
	PhaseWriteUnbuffered:         "write-unbuffered",
	PhaseWriteBuffered:           "write-buffered",
	PhaseInitialize:              "initialize",
}

// String returns the phase name.
func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// reads reports whether Execute sends a sector in phase p.
func (p Phase) reads() bool {
	return p == PhaseColdLoadRead || p == PhaseReadUnbuffered || p == PhaseReadBuffered
}

// writes reports whether Execute receives a sector in phase p.
func (p Phase) writes() bool {
	return p == PhaseWriteUnbuffered || p == PhaseWriteBuffered || p == PhaseInitialize
}

// State is the mutable protocol state of an AMIGO drive.
type State struct {
	Phase    Phase
	Position CHS
	Unit     uint8
	DSJ      device.QuickStatus
	Errors   device.ErrorBits
}

// Record sizes.
const (
	StatusSize  = 4
	AddressSize = 4
)

// Device emulates one AMIGO drive.
type Device struct {
	name    string
	address uint8
	model   Model
	store   storage.Storage
	port    device.Port
	ppr     bus.PollBit

	mutex    sync.Mutex
	state    State
	status   [StatusSize]byte
	logical  [AddressSize]byte
	buf      [device.BufferSize]byte
	loopback []byte
}

var (
	_ dispatch.Device     = (*Device)(nil)
	_ dispatch.Identifier = (*Device)(nil)
)

// New creates an AMIGO drive named name at primary address addr. Call Init
// before use.
func New(name string, addr uint8, model Model, store storage.Storage, port device.Port, ppr bus.PollBit) *Device {
	return &Device{
		name:    name,
		address: addr,
		model:   model,
		store:   store,
		port:    port,
		ppr:     ppr,
	}
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Address returns the primary bus address.
func (d *Device) Address() uint8 { return d.address }

// Model returns the emulated drive model.
func (d *Device) Model() Model { return d.model }

// Storage returns the backing store.
func (d *Device) Storage() storage.Storage { return d.store }

// Snapshot returns a copy of the protocol state.
func (d *Device) Snapshot() State {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.state
}

// Init restores power-on state. DSJ reports power-on until the first
// status request.
func (d *Device) Init() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.state = State{DSJ: device.StatusPowerOn}
	d.status = [StatusSize]byte{}
	d.logical = [AddressSize]byte{}
	d.ppr.Disable()
	pkg.LogInfo(pkg.ComponentAmigo, "init", "device", d.name,
		"model", d.model.Name, "address", d.address)
}

// Clear performs a universal device clear.
func (d *Device) Clear() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	pkg.LogDebug(pkg.ComponentAmigo, "device clear", "device", d.name)
	d.clear()
}

// SelectedClear performs a selected device clear.
func (d *Device) SelectedClear() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	pkg.LogDebug(pkg.ComponentAmigo, "selected device clear", "device", d.name)
	d.clear()
}

func (d *Device) clear() {
	d.state.Phase = PhaseIdle
	d.state.Position = CHS{}
	d.state.DSJ = device.StatusOK
	d.state.Errors = 0
	d.ppr.Enable()
}

// Identify sends the two identify bytes.
func (d *Device) Identify(ctx context.Context) bus.Status {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.ppr.Disable()
	id := d.model.ID
	_, st := d.port.WriteString(ctx, id[:], bus.EOI)
	pkg.LogDebug(pkg.ComponentAmigo, "identify", "device", d.name,
		"id", fmt.Sprintf("%02X%02X", id[0], id[1]), "status", st.String())
	return st & bus.ErrorMask
}

// Commands handles the secondary addresses of an AMIGO drive.
func (d *Device) Commands(ctx context.Context, v dispatch.View, secondary uint8) bus.Status {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	listener := dispatch.Listener(v, d.address)
	talker := dispatch.Talker(v, d.address)
	if !listener && !talker {
		return 0
	}

	switch {
	case secondary == SecondaryExecute:
		return d.execute(ctx, v, secondary)
	case secondary == SecondaryCommand && talker:
		return d.execute(ctx, v, secondary)
	case secondary == SecondaryDSJ && talker:
		d.ppr.Disable()
		return d.dsj(ctx)
	case secondary == SecondaryReadLoopback && talker:
		return d.readLoopback(ctx)
	case secondary == SecondaryWriteLoopback && listener:
		return d.writeLoopback(ctx)
	case listener && !talker:
		switch secondary {
		case SecondaryCommand, SecondaryWriteBuffered, SecondaryBuffered,
			SecondaryFormat, SecondaryDSJ:
			return d.command(ctx, secondary)
		}
	}
	pkg.LogDebug(pkg.ComponentAmigo, "secondary ignored", "device", d.name,
		"secondary", secondary, "phase", d.state.Phase.String(),
		"listen", v.Listening(), "talk", v.Talking())
	return 0
}

// command receives a command record and applies it.
func (d *Device) command(ctx context.Context, secondary uint8) bus.Status {
	d.ppr.Disable()
	n, st := d.port.ReadString(ctx, d.buf[:], bus.EOI)
	if st.IsError() || n == 0 {
		d.state.DSJ = device.StatusError
		d.state.Errors |= device.ErrGPIB
		pkg.LogDebug(pkg.ComponentAmigo, "command read failed", "device", d.name,
			"secondary", secondary, "length", n, "status", st.String())
		return st & bus.ErrorMask
	}
	d.apply(secondary, d.buf[:n])
	return 0
}

// Decode applies a command record as if received under secondary. It
// returns the decoded command.
func (d *Device) Decode(secondary uint8, rec []byte) Command {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.apply(secondary, rec)
}

func (d *Device) apply(secondary uint8, rec []byte) Command {
	c := Decode(secondary, rec)
	pkg.LogDebug(pkg.ComponentAmigo, "command", "device", d.name,
		"secondary", secondary, "op", c.Op.String(), "record", fmt.Sprintf("% X", rec))
	if c.Op.HasUnit() {
		d.checkUnit(c.Unit)
	}

	switch c.Op {
	case OpColdLoadRead:
		d.state.Unit = 0
		d.state.DSJ = device.StatusOK
		d.state.Errors = 0
		d.seek(c.Position)
		d.state.Phase = PhaseColdLoadRead
	case OpSeek:
		d.seek(c.Position)
	case OpRequestStatus:
		d.requestStatus()
		d.state.Phase = PhaseRequestStatusBuffered
	case OpRequestStatusUnbuffered:
		d.requestStatus()
		d.state.Phase = PhaseRequestStatusUnbuffered
	case OpReadUnbuffered:
		d.state.Phase = PhaseReadUnbuffered
		d.ppr.Enable()
	case OpReadBuffered:
		d.state.Phase = PhaseReadBuffered
		d.ppr.Enable()
	case OpWriteUnbuffered:
		d.state.Phase = PhaseWriteUnbuffered
		d.ppr.Enable()
	case OpWriteBuffered:
		d.state.Phase = PhaseWriteBuffered
		d.ppr.Enable()
	case OpInitialize:
		d.state.Phase = PhaseInitialize
		d.ppr.Enable()
	case OpVerify:
		d.verify(c.Sectors)
	case OpFormat:
		d.format(c.Fill)
	case OpRequestLogicalAddress:
		p := d.state.Position
		d.logical = [AddressSize]byte{byte(p.Cylinder >> 8), byte(p.Cylinder), p.Head, p.Sector}
		d.state.Phase = PhaseRequestLogicalAddress
		d.ppr.Enable()
	case OpClear:
		// The record is a single dummy byte.
	default:
		pkg.LogDebug(pkg.ComponentAmigo, "unsupported command", "device", d.name,
			"secondary", secondary, "opcode", c.Opcode, "length", len(rec))
		d.ppr.Enable()
	}
	return c
}

// checkUnit records the unit selected by a command. Unit 15 keeps the
// current unit. Only unit 0 exists.
func (d *Device) checkUnit(unit uint8) {
	if unit != 15 {
		d.state.Unit = unit
	}
	if d.state.Unit != 0 {
		d.state.Errors |= device.ErrUnit
	}
}

// StatusRecord returns the status record prepared by the last status
// request.
func (d *Device) StatusRecord() [StatusSize]byte {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.status
}

// requestStatus prepares the status record.
func (d *Device) requestStatus() {
	s := [StatusSize]byte{0x00, d.state.Unit, 0x0d, 0x00}
	if d.store.IsReadOnly() {
		s[3] |= 0x60 // write protect
	}
	switch {
	case d.state.DSJ == device.StatusPowerOn:
		s[0] = 0x13
		s[3] |= 0x08 // power up
	case d.state.Errors != 0 || d.state.DSJ == device.StatusError:
		e := d.state.Errors
		switch {
		case e&device.ErrUnit != 0:
			s[0] = 0x13
		case e&device.ErrGPIB != 0:
			s[0] = 0x0a // I/O error
		case e&device.ErrDisk != 0:
			s[3] |= 0x03 // no disk in drive
		case e&device.ErrWrite != 0:
			s[0] = 0x13
		case e&device.ErrSeek != 0:
			s[3] |= 0x04
		}
		s[3] |= 0x10 // hardware failure
		s[2] |= 0x80
	}
	d.status = s
	d.ppr.Enable()
}

// seek moves to p, flagging a seek error if p lies past the medium.
func (d *Device) seek(p CHS) bool {
	defer d.ppr.Enable()
	q, ok := d.model.Normalize(p)
	if !ok {
		d.state.DSJ = device.StatusError
		d.state.Errors |= device.ErrSeek
		pkg.LogDebug(pkg.ComponentAmigo, "seek beyond medium", "device", d.name, "chs", p.String())
		return false
	}
	d.state.Position = q
	pkg.LogDebug(pkg.ComponentAmigo, "seek", "device", d.name, "chs", q.String())
	return true
}

// increment advances one sector. The position is unchanged on overflow.
func (d *Device) increment() bool {
	p := d.state.Position
	p.Sector++
	q, ok := d.model.Normalize(p)
	if !ok {
		return false
	}
	d.state.Position = q
	return true
}
