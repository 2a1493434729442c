package ss80

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

// ExecState is the action scheduled for the next execution message.
type ExecState uint8

// Execution states.
const (
	ExecIdle ExecState = iota
	ExecLocateAndRead
	ExecLocateAndWrite
	ExecSendStatus
	ExecDescribe
)

// String returns the state name.
func (s ExecState) String() string {
	switch s {
	case ExecIdle:
		return "idle"
	case ExecLocateAndRead:
		return "locate-and-read"
	case ExecLocateAndWrite:
		return "locate-and-write"
	case ExecSendStatus:
		return "send-status"
	case ExecDescribe:
		return "describe"
	default:
		return fmt.Sprintf("exec(%d)", uint8(s))
	}
}

// State is the mutable protocol state of an SS80 drive.
type State struct {
	Unit    uint8
	Volume  uint8
	Address uint64 // block number
	Length  uint32 // bytes
	Exec    ExecState
	QStat   device.QuickStatus
	Errors  device.ErrorBits
}

// UniversalUnit is the unit number that addresses every unit of a drive.
const UniversalUnit = 15

// Device emulates one SS80 drive with a single unit and volume.
type Device struct {
	name    string
	address uint8
	model   Model
	store   storage.Storage
	port    device.Port
	ppr     bus.PollBit

	mutex    sync.Mutex
	state    State
	rawAddr  [6]byte
	preserve func(State) bool
	buf      [device.BufferSize]byte
}

var (
	_ dispatch.Device     = (*Device)(nil)
	_ dispatch.Identifier = (*Device)(nil)
	_ dispatch.Reporter   = (*Device)(nil)
)

// New creates an SS80 drive named name at primary address addr. The drive
// moves data over port, stores blocks in store and answers parallel polls
// on ppr. Call Init before use.
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

// SetPreserveOnClear installs a hook consulted by every clear and by the
// report that hands QSTAT to the controller. When it returns true for the
// current state, the error bits and QSTAT survive. Power-on ignores the
// hook. Pass nil to always clear them.
func (d *Device) SetPreserveOnClear(fn func(State) bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.preserve = fn
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

// Init restores power-on state. QSTAT reports power-on until the first
// report.
func (d *Device) Init() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.clearCommon(UniversalUnit)
	d.state.Exec = ExecIdle
	d.state.Errors = 0
	d.state.QStat = device.StatusPowerOn
	d.ppr.Disable()
	pkg.LogInfo(pkg.ComponentSS80, "init", "device", d.name,
		"model", d.model.Name, "address", d.address)
}

// Clear performs a universal device clear.
func (d *Device) Clear() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	pkg.LogDebug(pkg.ComponentSS80, "universal device clear", "device", d.name)
	d.clearCommon(UniversalUnit)
	d.ppr.Enable()
}

// SelectedClear performs a selected device clear of the current unit.
func (d *Device) SelectedClear() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	pkg.LogDebug(pkg.ComponentSS80, "selected device clear", "device", d.name)
	d.clearCommon(d.state.Unit)
	d.ppr.Enable()
}

// clearCommon resets the complementary parameters to power-on values. A
// clear addressed to a unit other than the selected one, or the universal
// unit, has no effect.
func (d *Device) clearCommon(unit uint8) {
	if unit != d.state.Unit && unit != UniversalUnit {
		return
	}
	if unit == UniversalUnit {
		d.state.Unit = 0
	}
	d.state.Volume = 0
	d.state.Address = 0
	d.rawAddr = [6]byte{}
	d.state.Length = 0
	d.state.Exec = ExecIdle
	if d.preserved() {
		return
	}
	d.state.Errors = 0
	d.state.QStat = device.StatusOK
}

// preserved reports whether the preserve hook keeps the error state
// through a clear.
func (d *Device) preserved() bool {
	return d.preserve != nil && d.preserve(d.state)
}

// Identify sends the two identify bytes.
func (d *Device) Identify(ctx context.Context) bus.Status {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.ppr.Disable()
	id := d.model.ID
	_, st := d.port.WriteString(ctx, id[:], bus.EOI)
	pkg.LogDebug(pkg.ComponentSS80, "identify", "device", d.name,
		"id", fmt.Sprintf("%02X%02X", id[0], id[1]), "status", st.String())
	return st & bus.ErrorMask
}

// Report sends QSTAT and clears it.
func (d *Device) Report(ctx context.Context) bus.Status {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.report(ctx)
}

// Commands handles the secondary addresses of an SS80 drive.
func (d *Device) Commands(ctx context.Context, v dispatch.View, secondary uint8) bus.Status {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	listener := dispatch.Listener(v, d.address)
	talker := dispatch.Talker(v, d.address)
	if listener || talker {
		switch secondary {
		case SecondaryCommand:
			if listener {
				return d.commandState(ctx)
			}
			return 0
		case SecondaryExecute:
			return d.executeState(ctx)
		case SecondaryReport:
			if talker {
				return d.report(ctx)
			}
			d.ppr.Disable()
			return d.amigoClear(ctx)
		case SecondaryTransparent:
			if listener {
				return d.transparentState(ctx)
			}
		}
	}
	pkg.LogDebug(pkg.ComponentSS80, "secondary ignored", "device", d.name,
		"secondary", secondary, "listen", v.Listening(), "talk", v.Talking())
	return 0
}

// commandState receives a command message and decodes it.
func (d *Device) commandState(ctx context.Context) bus.Status {
	d.ppr.Disable()
	n, st := d.port.ReadString(ctx, d.buf[:], bus.EOI)
	if st.IsError() {
		pkg.LogDebug(pkg.ComponentSS80, "command read failed", "device", d.name, "status", st.String())
		return st & bus.ErrorMask
	}
	if n == 0 {
		return 0
	}
	if !st.Has(bus.EOI) {
		pkg.LogWarn(pkg.ComponentSS80, "command message overflow", "device", d.name, "length", n)
	}
	d.apply(d.buf[:n])
	d.ppr.Enable()
	return 0
}

// Decode applies a command message as if received in Command State. It
// returns the decoded commands.
func (d *Device) Decode(rec []byte) []Command {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.apply(rec)
}

func (d *Device) apply(rec []byte) []Command {
	cmds, used := Decode(rec)
	for _, c := range cmds {
		op := c.Op
		switch {
		case op == OpLocateAndRead:
			d.state.Exec = ExecLocateAndRead
		case op == OpLocateAndWrite:
			d.state.Exec = ExecLocateAndWrite
		case op == OpRequestStatus:
			d.state.Exec = ExecSendStatus
		case op == OpDescribe:
			d.state.Exec = ExecDescribe
		case op == OpSetAddress:
			copy(d.rawAddr[:], c.Params)
			var blk uint64
			for _, b := range c.Params {
				blk = blk<<8 | uint64(b)
			}
			d.state.Address = blk
		case op == OpSetLength:
			d.state.Length = uint32(c.Params[0])<<24 | uint32(c.Params[1])<<16 |
				uint32(c.Params[2])<<8 | uint32(c.Params[3])
		default:
			if u, ok := op.unit(); ok {
				d.state.Unit = u
			} else if v, ok := op.volume(); ok {
				d.state.Volume = v
			}
		}
		pkg.LogDebug(pkg.ComponentSS80, "opcode", "device", d.name,
			"opcode", op.String(), "params", fmt.Sprintf("% X", c.Params))
	}
	if used != len(rec) {
		pkg.LogDebug(pkg.ComponentSS80, "command message remainder skipped",
			"device", d.name, "skipped", len(rec)-used)
	}
	return cmds
}

// transparentState receives a transparent message. Parallel poll stays
// disabled unless an opcode enables it.
func (d *Device) transparentState(ctx context.Context) bus.Status {
	d.ppr.Disable()
	n, st := d.port.ReadString(ctx, d.buf[:], bus.EOI)
	if st.IsError() {
		return st & bus.ErrorMask
	}
	rec := d.buf[:n]

	unit := d.state.Unit
	for i := 0; i < len(rec); {
		op := Opcode(rec[i])
		i++
		switch {
		case op == TpParityChecking:
			pkg.LogDebug(pkg.ComponentSS80, "set parity checking", "device", d.name)
			d.ppr.Enable()
		case op == TpReadLoopback || op == TpWriteLoopback:
			pkg.LogDebug(pkg.ComponentSS80, "loopback ignored", "device", d.name, "opcode", uint8(op))
		case op >= OpSetUnit && op <= OpSetUnit+0x0f:
			unit = uint8(op - OpSetUnit)
			continue
		case op == TpChannelClear:
			pkg.LogDebug(pkg.ComponentSS80, "channel independent clear", "device", d.name, "unit", unit)
			d.clearCommon(d.state.Unit)
			d.ppr.Enable()
		case op == TpCancel:
			pkg.LogDebug(pkg.ComponentSS80, "cancel", "device", d.name, "unit", unit)
			d.state.Exec = ExecIdle
			d.ppr.Enable()
		default:
			pkg.LogDebug(pkg.ComponentSS80, "transparent opcode ignored", "device", d.name, "opcode", uint8(op))
		}
		break
	}
	return 0
}

// amigoClear consumes the parity byte of an Amigo clear and clears every
// unit.
func (d *Device) amigoClear(ctx context.Context) bus.Status {
	var parity [1]byte
	n, st := d.port.ReadString(ctx, parity[:], 0)
	if n != len(parity) {
		return st & bus.ErrorMask
	}
	pkg.LogDebug(pkg.ComponentSS80, "amigo clear", "device", d.name)
	d.clearCommon(UniversalUnit)
	d.ppr.Enable()
	return 0
}

// report sends QSTAT with END and clears it unless the preserve hook
// keeps it.
func (d *Device) report(ctx context.Context) bus.Status {
	q := [1]byte{byte(d.state.QStat)}
	n, st := d.port.WriteString(ctx, q[:], bus.EOI)
	if n != len(q) {
		pkg.LogDebug(pkg.ComponentSS80, "report failed", "device", d.name, "status", st.String())
		return st & bus.ErrorMask
	}
	pkg.LogDebug(pkg.ComponentSS80, "report", "device", d.name, "qstat", d.state.QStat.String())
	if d.preserved() {
		pkg.LogDebug(pkg.ComponentSS80, "report keeps qstat", "device", d.name)
		return 0
	}
	d.state.QStat = device.StatusOK
	return 0
}
