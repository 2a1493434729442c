// Package sim provides a simulated wired-OR bus for testing and examples.
//
// Every [Port] attached to a [Bus] implements [hal.BusHAL]. A line reads
// low when any port pulls it low, exactly like the open-collector drivers
// of a real cable, so a device transport and a scripted [Controller] can
// run a full handshake against each other in separate goroutines.
package sim

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ardnew/softgpib/bus/hal"
	"github.com/ardnew/softgpib/pkg"
)

// Port state layout: one bit per control line in the low byte, and the set
// of data lines held low in the second byte.
const (
	dataShift = 8
	lineMask  = 1<<hal.NumLines - 1
)

// Bus is a simulated cable connecting any number of ports.
type Bus struct {
	mutex sync.RWMutex
	ports []*Port
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// NewPort attaches a new port named name. All of its lines start floating.
func (b *Bus) NewPort(name string) *Port {
	p := &Port{bus: b, name: name}
	b.mutex.Lock()
	b.ports = append(b.ports, p)
	b.mutex.Unlock()
	return p
}

// Ports returns the attached ports.
func (b *Bus) Ports() []*Port {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	out := make([]*Port, len(b.ports))
	copy(out, b.ports)
	return out
}

// pulled returns the OR of every port's pulled-low state.
func (b *Bus) pulled() uint32 {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	var s uint32
	for _, p := range b.ports {
		s |= p.state.Load()
	}
	return s
}

// Lines returns the set of asserted control lines.
func (b *Bus) Lines() []hal.Line {
	s := b.pulled()
	var out []hal.Line
	for l := hal.Line(0); int(l) < hal.NumLines; l++ {
		if s&(1<<l) != 0 {
			out = append(out, l)
		}
	}
	return out
}

// String renders the asserted lines and the logical data byte.
func (b *Bus) String() string {
	var names []string
	for _, l := range b.Lines() {
		names = append(names, l.String())
	}
	return fmt.Sprintf("[%s] data=%02X", strings.Join(names, " "), uint8(b.pulled()>>dataShift))
}

// Port is one participant on a simulated bus.
type Port struct {
	bus   *Bus
	name  string
	state atomic.Uint32
}

var _ hal.BusHAL = (*Port)(nil)

// Name returns the port name.
func (p *Port) Name() string {
	return p.name
}

// Init releases every line.
func (p *Port) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.state.Store(0)
	pkg.LogDebug(pkg.ComponentHAL, "port initialized", "port", p.name)
	return nil
}

// Close releases every line.
func (p *Port) Close() error {
	p.state.Store(0)
	return nil
}

// Assert pulls line low.
func (p *Port) Assert(line hal.Line) {
	p.update(func(s uint32) uint32 { return s | 1<<line })
}

// Float releases line.
func (p *Port) Float(line hal.Line) {
	p.update(func(s uint32) uint32 { return s &^ (1 << line) })
}

// IsAsserted reports whether any port pulls line low. It yields the
// processor so handshake loops on a shared CPU make progress.
func (p *Port) IsAsserted(line hal.Line) bool {
	runtime.Gosched()
	return p.bus.pulled()&(1<<line) != 0
}

// WriteData drives the data lines; zero bits are pulled low.
func (p *Port) WriteData(levels byte) {
	low := uint32(^levels) << dataShift
	p.update(func(s uint32) uint32 { return s&lineMask | low })
}

// FloatData releases all data lines.
func (p *Port) FloatData() {
	p.update(func(s uint32) uint32 { return s & lineMask })
}

// ReadData returns the level of every data line; a zero bit is held low.
func (p *Port) ReadData() byte {
	return ^uint8(p.bus.pulled() >> dataShift)
}

func (p *Port) update(fn func(uint32) uint32) {
	for {
		old := p.state.Load()
		if p.state.CompareAndSwap(old, fn(old)) {
			return
		}
	}
}
