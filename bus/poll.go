package bus

import "sync/atomic"

// PollRegister holds the parallel poll response: one data line per device
// slot. Devices set and clear their own bit; the transport drives the whole
// register onto the data lines when it detects a parallel poll.
type PollRegister struct {
	mask atomic.Uint32
}

// Value returns the current response byte.
func (r *PollRegister) Value() uint8 {
	return uint8(r.mask.Load())
}

// Reset disables every response bit.
func (r *PollRegister) Reset() {
	r.mask.Store(0)
}

// Bit returns the capability to drive response bit n (0-7).
func (r *PollRegister) Bit(n uint8) PollBit {
	return PollBit{reg: r, mask: 1 << (n & 7)}
}

func (r *PollRegister) set(mask uint32) {
	for {
		old := r.mask.Load()
		if r.mask.CompareAndSwap(old, old|mask) {
			return
		}
	}
}

func (r *PollRegister) clear(mask uint32) {
	for {
		old := r.mask.Load()
		if r.mask.CompareAndSwap(old, old&^mask) {
			return
		}
	}
}

// PollBit is a device's handle on its own parallel poll response bit. The
// zero value is a device with no response bit, and its methods do nothing.
type PollBit struct {
	reg  *PollRegister
	mask uint32
}

// Enable asserts the response bit.
func (b PollBit) Enable() {
	if b.reg != nil {
		b.reg.set(b.mask)
	}
}

// Disable clears the response bit.
func (b PollBit) Disable() {
	if b.reg != nil {
		b.reg.clear(b.mask)
	}
}

// Enabled reports whether the response bit is asserted.
func (b PollBit) Enabled() bool {
	return b.reg != nil && b.reg.mask.Load()&b.mask != 0
}
