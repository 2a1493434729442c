package bus

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ardnew/softgpib/bus/hal"
	"github.com/ardnew/softgpib/pkg"
)

// Observer receives a callback for every byte moved by a Transport.
// Callbacks run on the foreground goroutine and must not block.
type Observer interface {
	ByteReceived(b Byte)
	ByteSent(b Byte)
	ParallelPoll(response uint8)
}

// Transport implements the device side of the three-wire handshake on a
// single bus port, one byte at a time, plus string transfers built on it.
//
// A Transport is owned by one foreground goroutine. Only the trace writer
// and observer may be replaced concurrently.
type Transport struct {
	hal     hal.BusHAL
	clock   *Clock
	ppr     *PollRegister
	timeout time.Duration

	// Single-byte pushback slot.
	pending    Byte
	hasPending bool

	// Command bytes of the previous and current transfer, zero when the
	// transfer was data or failed.
	lastCmd uint8
	current uint8

	mutex    sync.RWMutex
	trace    io.Writer
	observer Observer
}

// NewTransport creates a transport on port h. Wait states expire against
// clock, and ppr is driven onto the data lines when a parallel poll is
// detected.
func NewTransport(h hal.BusHAL, clock *Clock, ppr *PollRegister) *Transport {
	return &Transport{
		hal:     h,
		clock:   clock,
		ppr:     ppr,
		timeout: DefaultTimeout,
	}
}

// SetTimeout sets the bound on every handshake wait state.
func (t *Transport) SetTimeout(d time.Duration) {
	t.timeout = d
}

// SetTrace mirrors every transferred byte, decoded, to w. Pass nil to
// disable tracing.
func (t *Transport) SetTrace(w io.Writer) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.trace = w
	if w != nil {
		WriteTraceHeader(w)
	}
}

// SetObserver registers o for byte callbacks. Pass nil to remove it.
func (t *Transport) SetObserver(o Observer) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.observer = o
}

// PollRegister returns the parallel poll register driven by the transport.
func (t *Transport) PollRegister() *PollRegister {
	return t.ppr
}

// Reset drops any pushed-back byte, forgets command history and parks the
// port in the busy resting state.
func (t *Transport) Reset() {
	t.hasPending = false
	t.lastCmd = 0
	t.current = 0
	t.release(true)
}

// LastCommand returns the command byte received before the most recent
// one, or zero if that transfer was a data byte or failed.
func (t *Transport) LastCommand() uint8 {
	return t.lastCmd
}

// CurrentCommand returns the most recently received command byte, or zero
// if the last transfer was a data byte or failed.
func (t *Transport) CurrentCommand() uint8 {
	return t.current
}

// Unread pushes b back so the next ReadByte returns it without touching the
// bus. Only one byte may be pending.
func (t *Transport) Unread(b Byte) error {
	if t.hasPending {
		pkg.LogWarn(pkg.ComponentBus, "unread with occupied pushback slot",
			"pending", t.pending.Packed(), "byte", b.Packed())
		return pkg.ErrPushbackFull
	}
	t.pending = b
	t.hasPending = true
	return nil
}

// Pending returns the pushed-back byte, if any, without consuming it.
func (t *Transport) Pending() (Byte, bool) {
	return t.pending, t.hasPending
}

// Peek reads the next byte and pushes it back.
func (t *Transport) Peek(ctx context.Context) Byte {
	b := t.ReadByte(ctx)
	t.pending = b
	t.hasPending = true
	return b
}

// ReadByte receives one byte as an acceptor. A pushed-back byte is
// returned first. The wait for the talker to assert DAV is unbounded;
// every later wait expires after the transport timeout. Cancelling ctx
// aborts the transfer with the Timeout flag set.
func (t *Transport) ReadByte(ctx context.Context) Byte {
	if t.hasPending {
		t.hasPending = false
		return t.pending
	}

	t.release(true)

	rx := receiver{t: t, state: rxStart}
	for {
		if t.detectPoll(ctx) {
			rx.b.Status |= PP
		}
		if t.hal.IsAsserted(hal.IFC) {
			rx.b.Status |= IFC
			t.release(true)
			break
		}
		if rx.state == rxWaitDAVLow && done(ctx) {
			rx.b.Status |= Timeout
			rx.state = rxError
		}
		if rx.step() != stepContinue {
			break
		}
	}

	t.lastCmd = t.current
	if rx.b.Status&ErrorMask != 0 || rx.b.Status&ATN == 0 {
		t.current = 0
	} else {
		t.current = rx.b.Value & CommandMask
	}

	t.emit(rx.b, false)
	return rx.b
}

// WriteByte sends value as a talker. Only the ATN and EOI bits of flags are
// driven. The returned status carries those bits plus any error flags.
func (t *Transport) WriteByte(ctx context.Context, value uint8, flags Status) Status {
	t.release(false)

	tx := sender{t: t, state: txStart, value: value, status: flags & (ATN | EOI)}
	tx.deadline = t.clock.Deadline(t.timeout)
	for {
		if tx.state <= txWaitReady && t.detectPoll(ctx) {
			tx.status |= PP
		}
		if t.hal.IsAsserted(hal.IFC) {
			tx.status |= IFC
			t.release(true)
			break
		}
		if done(ctx) && tx.state < txError {
			tx.status |= Timeout
			tx.state = txError
		}
		if tx.step() != stepContinue {
			break
		}
	}

	t.emit(Byte{Value: value, Status: tx.status}, true)
	return tx.status
}

// release parks the port. Every line and the data bus float; when busy is
// set, NRFD and NDAC are held low so no talker can start a transfer.
func (t *Transport) release(busy bool) {
	t.hal.FloatData()
	t.hal.Float(hal.IFC)
	t.hal.Float(hal.REN)
	t.hal.Float(hal.SRQ)
	t.hal.Float(hal.EOI)
	t.hal.Float(hal.DAV)
	t.hal.Float(hal.ATN)
	if busy {
		t.hal.Assert(hal.NDAC)
		t.hal.Assert(hal.NRFD)
	} else {
		t.hal.Float(hal.NRFD)
		t.hal.Float(hal.NDAC)
	}
}

// detectPoll answers a parallel poll if the controller holds ATN and EOI
// together. The response register stays on the data lines until the
// controller releases either line or pulses IFC.
func (t *Transport) detectPoll(ctx context.Context) bool {
	if !t.pollAsserted() {
		return false
	}
	response := t.ppr.Value()
	t.hal.WriteData(^response)
	for t.pollAsserted() {
		if t.hal.IsAsserted(hal.IFC) || done(ctx) {
			break
		}
	}
	t.hal.FloatData()

	t.mutex.RLock()
	o := t.observer
	t.mutex.RUnlock()
	if o != nil {
		o.ParallelPoll(response)
	}
	pkg.LogDebug(pkg.ComponentBus, "parallel poll", "response", response)
	return true
}

func (t *Transport) pollAsserted() bool {
	return t.hal.IsAsserted(hal.ATN) && t.hal.IsAsserted(hal.EOI)
}

// latch samples the data and control lines into a Byte.
func (t *Transport) latch() Byte {
	var b Byte
	b.Value = ^t.hal.ReadData()
	if t.hal.IsAsserted(hal.ATN) {
		b.Status |= ATN
		b.Value &= CommandMask
	}
	if t.hal.IsAsserted(hal.EOI) {
		b.Status |= EOI
	}
	if t.hal.IsAsserted(hal.SRQ) {
		b.Status |= SRQ
	}
	if t.hal.IsAsserted(hal.REN) {
		b.Status |= REN
	}
	return b
}

func (t *Transport) emit(b Byte, sent bool) {
	t.mutex.RLock()
	w, o := t.trace, t.observer
	t.mutex.RUnlock()
	if w != nil {
		io.WriteString(w, DecodeByte(b)+"\n")
	}
	if o == nil {
		return
	}
	if sent {
		o.ByteSent(b)
	} else {
		o.ByteReceived(b)
	}
}

func done(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// AwaitIFCRelease blocks until no port holds IFC or ctx is cancelled.
func (t *Transport) AwaitIFCRelease(ctx context.Context) {
	for t.hal.IsAsserted(hal.IFC) && !done(ctx) {
	}
}
