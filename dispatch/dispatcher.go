package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/ardnew/softgpib/bus"
	"github.com/ardnew/softgpib/pkg"
)

// Dispatcher reads bytes from a Transport, decodes addressing commands into
// its Session and routes secondary addresses and data to devices.
type Dispatcher struct {
	transport *bus.Transport
	devices   []Device

	// mutex guards session against concurrent Snapshot calls; the
	// dispatch goroutine is the only writer.
	mutex   sync.Mutex
	session Session

	observer Observer
}

// New creates a dispatcher over t. Devices are consulted in the order
// given when more than one could match.
func New(t *bus.Transport, devices ...Device) *Dispatcher {
	return &Dispatcher{transport: t, devices: devices}
}

// SetObserver registers o for dispatch events. Pass nil to remove it.
func (d *Dispatcher) SetObserver(o Observer) {
	d.observer = o
}

// Transport returns the underlying transport.
func (d *Dispatcher) Transport() *bus.Transport {
	return d.transport
}

// Devices returns the attached devices.
func (d *Dispatcher) Devices() []Device {
	return d.devices
}

// Device returns the device named name.
func (d *Dispatcher) Device(name string) (Device, error) {
	for _, dev := range d.devices {
		if dev.Name() == name {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", name, pkg.ErrUnknownDevice)
}

// Snapshot returns a copy of the session.
func (d *Dispatcher) Snapshot() Session {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.session
}

// View returns a view of a copy of the session, safe to read from any
// goroutine. Devices called from the dispatch loop get the live session.
func (d *Dispatcher) View() View {
	s := d.Snapshot()
	return &s
}

// Reset parks the bus port, clears the session and the parallel poll
// register, closes any sink and returns every device to power-on state.
func (d *Dispatcher) Reset() {
	d.transport.Reset()
	d.transport.PollRegister().Reset()
	d.mutex.Lock()
	d.session.reset()
	d.mutex.Unlock()
	d.initDevices()
}

// Run dispatches bytes until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.Reset()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := d.Step(ctx); err != nil {
			return err
		}
	}
}

// Step receives and handles one byte. It returns an error only when ctx is
// cancelled; bus and device errors are recovered locally.
func (d *Dispatcher) Step(ctx context.Context) error {
	b := d.transport.ReadByte(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.check(ctx, b.Status) {
		return nil
	}

	if b.IsCommand() {
		d.command(ctx, b)
	} else {
		d.data(ctx, b)
	}
	return nil
}

// check handles transport errors in st and reports whether there were any.
func (d *Dispatcher) check(ctx context.Context, st bus.Status) bool {
	if !st.IsError() {
		return false
	}
	pkg.LogDebug(pkg.ComponentDispatch, "transfer aborted",
		"status", st.String(), "error", st.Err())
	if st&bus.IFC != 0 {
		if d.observer != nil {
			d.observer.InterfaceClear()
		}
		pkg.LogInfo(pkg.ComponentDispatch, "interface clear")
		d.transport.AwaitIFCRelease(ctx)
		d.Reset()
	}
	return true
}

func (d *Dispatcher) command(ctx context.Context, b bus.Byte) {
	ch := b.Command()
	switch bus.Group(ch) {
	case bus.GroupUniversal:
		d.universal(ctx, ch)
	case bus.GroupListen:
		d.listen(ch)
	case bus.GroupTalk:
		d.talk(ctx, ch)
	default:
		if d.session.listening != 0 && d.transport.LastCommand() == bus.UNT {
			d.setSecondary(0)
			d.check(ctx, d.secondaryAddress(ctx, ch))
			return
		}
		d.setSecondary(ch)
		d.check(ctx, d.route(ctx, b, false))
	}
}

func (d *Dispatcher) data(ctx context.Context, b bus.Byte) {
	if dev := d.listener(); dev != nil {
		if sink, ok := dev.(Sink); ok {
			sink.Buffer(b.Value)
			return
		}
	}
	if d.session.secondary == 0 {
		return
	}
	d.check(ctx, d.route(ctx, b, true))
}

// route hands the pending secondary to the addressed device. The listener
// takes precedence while a talker is addressed; otherwise the talker is
// chosen while any listener is addressed.
func (d *Dispatcher) route(ctx context.Context, b bus.Byte, unread bool) bus.Status {
	var dev Device
	if d.session.talking != bus.UNT {
		dev = d.listener()
	}
	if dev == nil && d.session.listening != bus.UNL {
		dev = d.talker()
	}
	if dev == nil {
		return 0
	}

	if unread {
		if err := d.transport.Unread(b); err != nil {
			pkg.LogWarn(pkg.ComponentDispatch, "dropped byte", "device", dev.Name(), "error", err)
		}
	}
	secondary := d.session.secondary
	pkg.LogDebug(pkg.ComponentDispatch, "route", "device", dev.Name(), "secondary", secondary)
	if d.observer != nil {
		d.observer.Routed(dev.Name(), secondary)
	}
	st := dev.Commands(ctx, &d.session, secondary)
	d.setSecondary(0)
	return st
}

func (d *Dispatcher) universal(ctx context.Context, ch uint8) {
	switch ch {
	case bus.PPU:
		d.setSerialPoll(false)
	case bus.SPE:
		d.setSerialPoll(true)
		if r, ok := d.talker().(Reporter); ok {
			d.check(ctx, r.Report(ctx))
		}
	case bus.SPD:
		d.setSerialPoll(false)
	case bus.SDC:
		if dev := d.listener(); dev != nil {
			pkg.LogDebug(pkg.ComponentDispatch, "selected device clear", "device", dev.Name())
			dev.SelectedClear()
		}
	case bus.DCL:
		pkg.LogDebug(pkg.ComponentDispatch, "device clear")
		for _, dev := range d.devices {
			dev.Clear()
		}
	default:
		pkg.LogDebug(pkg.ComponentDispatch, "universal command ignored",
			"command", ch, "name", bus.CommandName(ch))
	}
}

func (d *Dispatcher) listen(ch uint8) {
	d.mutex.Lock()
	d.session.listeningLast = d.session.listening
	d.session.listening = ch
	if ch == bus.UNL {
		d.session.listening = 0
	}
	d.mutex.Unlock()

	// A sink stops capturing as soon as the listen address changes.
	if last := d.byListen(d.session.listeningLast); last != nil {
		if sink, ok := last.(Sink); ok {
			sink.Close()
		}
	}
	if ch == bus.UNL {
		return
	}
	if dev := d.byListen(ch); dev != nil {
		pkg.LogDebug(pkg.ComponentDispatch, "listen", "device", dev.Name())
		if sink, ok := dev.(Sink); ok && d.session.talking != bus.UNT {
			sink.Open()
		}
	}
}

func (d *Dispatcher) talk(ctx context.Context, ch uint8) {
	d.mutex.Lock()
	d.session.talkingLast = d.session.talking
	d.session.talking = ch
	d.mutex.Unlock()
	if ch == bus.UNT {
		return
	}

	if dev := d.byTalk(ch); dev != nil {
		pkg.LogDebug(pkg.ComponentDispatch, "talk", "device", dev.Name())
		if r, ok := dev.(Reporter); ok && d.session.spoll {
			d.check(ctx, r.Report(ctx))
		}
		return
	}
	// Another instrument talks to the sink.
	if sink, ok := d.listener().(Sink); ok {
		sink.Open()
	}
}

func (d *Dispatcher) secondaryAddress(ctx context.Context, ch uint8) bus.Status {
	for _, dev := range d.devices {
		if bus.MSA(dev.Address()) != ch {
			continue
		}
		if id, ok := dev.(Identifier); ok {
			pkg.LogDebug(pkg.ComponentDispatch, "identify", "device", dev.Name())
			return id.Identify(ctx)
		}
	}
	pkg.LogDebug(pkg.ComponentDispatch, "secondary address ignored",
		"secondary", ch, "listen", d.session.listening, "talk", d.session.talking)
	return 0
}

func (d *Dispatcher) initDevices() {
	for _, dev := range d.devices {
		dev.Init()
	}
}

func (d *Dispatcher) listener() Device { return d.byListen(d.session.listening) }

func (d *Dispatcher) talker() Device { return d.byTalk(d.session.talking) }

func (d *Dispatcher) byListen(cmd uint8) Device {
	if cmd == 0 {
		return nil
	}
	for _, dev := range d.devices {
		if bus.MLA(dev.Address()) == cmd {
			return dev
		}
	}
	return nil
}

func (d *Dispatcher) byTalk(cmd uint8) Device {
	if cmd == 0 {
		return nil
	}
	for _, dev := range d.devices {
		if bus.MTA(dev.Address()) == cmd {
			return dev
		}
	}
	return nil
}

func (d *Dispatcher) setSecondary(v uint8) {
	d.mutex.Lock()
	d.session.secondary = v
	d.mutex.Unlock()
}

func (d *Dispatcher) setSerialPoll(on bool) {
	d.mutex.Lock()
	d.session.spoll = on
	d.mutex.Unlock()
}
