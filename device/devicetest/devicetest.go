// Package devicetest provides scripted collaborators for drive emulator
// tests: a bus port fed from canned messages and a storage that fails on
// demand.
package devicetest

import (
	"context"
	"sync"

	"github.com/ardnew/softgpib/bus"
	"github.com/ardnew/softgpib/device"
	"github.com/ardnew/softgpib/dispatch"
	"github.com/ardnew/softgpib/pkg"
	"github.com/ardnew/softgpib/storage"
)

// Write is one string sent by the device.
type Write struct {
	Data  []byte
	Flags bus.Status
}

// Port is a device.Port that plays the controller. Each queued message is
// delivered with EOI on its last byte. Reads with nothing queued time out.
type Port struct {
	mutex  sync.Mutex
	input  [][]byte
	writes []Write
	sent   int

	// FailAfter, when positive, makes writes time out once that many
	// bytes have been sent.
	FailAfter int
}

var _ device.Port = (*Port)(nil)

// NewPort creates a port with messages queued for the device to read.
func NewPort(messages ...[]byte) *Port {
	p := &Port{}
	p.Queue(messages...)
	return p
}

// Queue appends messages for the device to read.
func (p *Port) Queue(messages ...[]byte) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, m := range messages {
		p.input = append(p.input, append([]byte(nil), m...))
	}
}

// ReadString delivers bytes from the head message.
func (p *Port) ReadString(ctx context.Context, buf []byte, flags bus.Status) (int, bus.Status) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	st := flags &^ bus.DataMask &^ bus.EOI
	if len(p.input) == 0 {
		return 0, st | bus.Timeout
	}
	msg := p.input[0]
	n := copy(buf, msg)
	if n == len(msg) {
		p.input = p.input[1:]
		st |= bus.EOI
	} else {
		p.input[0] = msg[n:]
	}
	return n, st
}

// WriteString records buf.
func (p *Port) WriteString(ctx context.Context, buf []byte, flags bus.Status) (int, bus.Status) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	st := flags &^ bus.DataMask
	n := len(buf)
	if p.FailAfter > 0 && p.sent+n > p.FailAfter {
		n = max(p.FailAfter-p.sent, 0)
		st |= bus.Timeout
	}
	p.writes = append(p.writes, Write{Data: append([]byte(nil), buf[:n]...), Flags: flags})
	p.sent += n
	return n, st
}

// Writes returns every string sent so far.
func (p *Port) Writes() []Write {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]Write(nil), p.writes...)
}

// Sent returns every byte sent so far, concatenated.
func (p *Port) Sent() []byte {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	var out []byte
	for _, w := range p.writes {
		out = append(out, w.Data...)
	}
	return out
}

// Pending returns the number of queued messages not yet fully read.
func (p *Port) Pending() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.input)
}

// Reset drops recorded writes.
func (p *Port) Reset() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.writes = nil
	p.sent = 0
}

// Storage wraps a MemoryStorage and fails reads or writes past a byte
// budget. It counts the calls it sees.
type Storage struct {
	*storage.MemoryStorage

	// ReadBudget and WriteBudget, when positive, are the bytes that may be
	// transferred before every further call fails.
	ReadBudget  int
	WriteBudget int

	Reads  int
	Writes int
	read   int
	wrote  int
}

var _ storage.Storage = (*Storage)(nil)

// NewStorage creates a failing storage of size bytes.
func NewStorage(size int64) *Storage {
	return &Storage{MemoryStorage: storage.NewMemoryStorage(size)}
}

// ReadAt reads from the memory image unless the budget is spent.
func (s *Storage) ReadAt(p []byte, off int64) (int, error) {
	s.Reads++
	if s.ReadBudget > 0 && s.read+len(p) > s.ReadBudget {
		return 0, pkg.ErrOutOfRange
	}
	n, err := s.MemoryStorage.ReadAt(p, off)
	s.read += n
	return n, err
}

// WriteAt writes to the memory image unless the budget is spent.
func (s *Storage) WriteAt(p []byte, off int64) (int, error) {
	s.Writes++
	if s.WriteBudget > 0 && s.wrote+len(p) > s.WriteBudget {
		return 0, pkg.ErrOutOfRange
	}
	n, err := s.MemoryStorage.WriteAt(p, off)
	s.wrote += n
	return n, err
}

// View is a fixed dispatch.View.
type View struct {
	Listen uint8
	Talk   uint8
	Sec    uint8
	Poll   bool
}

var _ dispatch.View = View{}

// Listening returns the listen address command.
func (v View) Listening() uint8 { return v.Listen }

// Talking returns the talk address command.
func (v View) Talking() uint8 { return v.Talk }

// Secondary returns the secondary address.
func (v View) Secondary() uint8 { return v.Sec }

// SerialPoll reports the serial poll flag.
func (v View) SerialPoll() bool { return v.Poll }

// ListenTo returns a view with addr listening and the controller talking.
func ListenTo(addr uint8) View {
	return View{Listen: bus.MLA(addr), Talk: bus.MTA(30)}
}

// TalkFrom returns a view with addr talking and the controller listening.
func TalkFrom(addr uint8) View {
	return View{Listen: bus.MLA(30), Talk: bus.MTA(addr)}
}
