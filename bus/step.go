package bus

import (
	"github.com/ardnew/softgpib/bus/hal"
)

// stepResult is the outcome of advancing a handshake machine one state.
type stepResult uint8

const (
	stepContinue stepResult = iota // more states to run
	stepDone                       // byte transferred
	stepError                      // aborted; error flags set
)

// rxState enumerates the acceptor handshake.
type rxState uint8

const (
	rxStart rxState = iota
	rxWaitDAVLow
	rxDAVIsLow
	rxWaitDAVHigh
	rxDAVIsHigh
	rxFinish
	rxError
)

// receiver runs the acceptor side of one byte transfer.
type receiver struct {
	t        *Transport
	state    rxState
	b        Byte
	deadline Deadline
}

func (r *receiver) step() stepResult {
	h := r.t.hal
	switch r.state {
	case rxStart:
		// Ready for data.
		h.Float(hal.NRFD)
		r.state = rxWaitDAVLow

	case rxWaitDAVLow:
		if h.IsAsserted(hal.DAV) {
			r.state = rxDAVIsLow
		}

	case rxDAVIsLow:
		h.Assert(hal.NRFD)
		l := r.t.latch()
		r.b.Value = l.Value
		r.b.Status |= l.Status
		h.Float(hal.NDAC)
		r.deadline = r.t.clock.Deadline(r.t.timeout)
		r.state = rxWaitDAVHigh

	case rxWaitDAVHigh:
		if !h.IsAsserted(hal.DAV) {
			r.state = rxDAVIsHigh
		} else if r.deadline.Expired() {
			r.b.Status |= Timeout
			r.state = rxError
		}

	case rxDAVIsHigh:
		h.Assert(hal.NDAC)
		h.Assert(hal.NRFD)
		r.state = rxFinish

	case rxFinish:
		return stepDone

	case rxError:
		h.Assert(hal.NDAC)
		h.Assert(hal.NRFD)
		return stepError
	}
	return stepContinue
}

// txState enumerates the source handshake.
type txState uint8

const (
	txStart txState = iota
	txWaitReady
	txPutData
	txSetDAVLow
	txWaitNRFDLow
	txWaitNDACHigh
	txSetDAVHigh
	txWaitNDACLow
	txFinish
	txError
)

// sender runs the source side of one byte transfer.
type sender struct {
	t        *Transport
	state    txState
	value    uint8
	status   Status
	deadline Deadline
}

func (s *sender) step() stepResult {
	h := s.t.hal
	switch s.state {
	case txStart:
		// The previous talker must have released DAV. ATN is set up
		// before the listeners are polled for readiness.
		if !h.IsAsserted(hal.DAV) {
			if s.status&ATN != 0 {
				h.Assert(hal.ATN)
			} else {
				h.Float(hal.ATN)
			}
			s.rearm(txWaitReady)
		} else {
			s.expire()
		}

	case txWaitReady:
		if !h.IsAsserted(hal.NRFD) && h.IsAsserted(hal.NDAC) {
			s.rearm(txPutData)
		} else {
			s.expire()
		}

	case txPutData:
		if s.status&EOI != 0 {
			h.Assert(hal.EOI)
		} else {
			h.Float(hal.EOI)
		}
		h.WriteData(^s.value)
		s.rearm(txSetDAVLow)

	case txSetDAVLow:
		h.Assert(hal.DAV)
		s.rearm(txWaitNRFDLow)

	case txWaitNRFDLow:
		if h.IsAsserted(hal.NRFD) {
			s.rearm(txWaitNDACHigh)
		} else {
			s.expire()
		}

	case txWaitNDACHigh:
		// Accepted by every listener.
		if !h.IsAsserted(hal.NDAC) {
			s.state = txSetDAVHigh
		} else {
			s.expire()
		}

	case txSetDAVHigh:
		h.Float(hal.DAV)
		s.t.release(false)
		s.rearm(txWaitNDACLow)

	case txWaitNDACLow:
		// Listeners return to the resting state the next transfer expects.
		if h.IsAsserted(hal.NDAC) {
			s.state = txFinish
		} else {
			s.expire()
		}

	case txFinish:
		return stepDone

	case txError:
		s.t.release(true)
		return stepError
	}
	return stepContinue
}

func (s *sender) rearm(next txState) {
	s.deadline = s.t.clock.Deadline(s.t.timeout)
	s.state = next
}

func (s *sender) expire() {
	if s.deadline.Expired() {
		s.status |= Timeout
		s.state = txError
	}
}
