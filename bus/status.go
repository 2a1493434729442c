package bus

import (
	"github.com/ardnew/softgpib/pkg"
)

// Status is the control and error bitset carried alongside every bus byte.
// The low byte is reserved for data so a Byte can be packed into 16 bits.
type Status uint16

// Status flags.
const (
	EOI      Status = 0x0100 // End or Identify seen (or to send)
	SRQ      Status = 0x0200 // Service Request asserted
	ATN      Status = 0x0400 // Attention: byte is a command
	REN      Status = 0x0800 // Remote Enable asserted
	IFC      Status = 0x1000 // Interface Clear seen
	PP       Status = 0x2000 // Parallel poll seen during the transfer
	Timeout  Status = 0x4000 // Handshake wait expired
	BusError Status = 0x8000 // Unexpected line state

	// ErrorMask selects the flags that abort a transfer.
	ErrorMask = IFC | Timeout | BusError

	// ControlMask selects the line flags latched from the bus.
	ControlMask = EOI | SRQ | ATN | REN
)

// Payload masks.
const (
	DataMask    = 0xff
	CommandMask = 0x7f
)

// Has reports whether every flag in f is set.
func (s Status) Has(f Status) bool {
	return s&f == f
}

// IsError reports whether any transport error flag is set.
func (s Status) IsError() bool {
	return s&ErrorMask != 0
}

// String renders the flags as the eight-column AESRIPTB trace field, with
// '-' in the column of each clear flag.
func (s Status) String() string {
	const letters = "AESRIPTB"
	flags := [8]Status{ATN, EOI, SRQ, REN, IFC, PP, Timeout, BusError}
	var b [8]byte
	for i, f := range flags {
		if s&f != 0 {
			b[i] = letters[i]
		} else {
			b[i] = '-'
		}
	}
	return string(b[:])
}

// Err returns the sentinel error for the highest-priority transport error
// flag, or nil if none is set. Interface clear outranks timeout, which
// outranks bus error.
func (s Status) Err() error {
	switch {
	case s&IFC != 0:
		return pkg.ErrInterfaceClear
	case s&Timeout != 0:
		return pkg.ErrTimeout
	case s&BusError != 0:
		return pkg.ErrBusError
	default:
		return nil
	}
}

// Byte is one transfer unit: an 8-bit payload plus the line state latched
// with it. When ATN is set the payload is a 7-bit command.
type Byte struct {
	Value  uint8
	Status Status
}

// Command returns the payload stripped to seven bits.
func (b Byte) Command() uint8 {
	return b.Value & CommandMask
}

// IsCommand reports whether the byte was received with ATN asserted.
func (b Byte) IsCommand() bool {
	return b.Status&ATN != 0
}

// IsEnd reports whether the byte is a data byte tagged with EOI.
func (b Byte) IsEnd() bool {
	return b.Status&(ATN|EOI) == EOI
}

// Packed returns the byte in the 16-bit form used by the trace format:
// payload in the low byte and flags in the high byte.
func (b Byte) Packed() uint16 {
	return uint16(b.Value) | uint16(b.Status)
}
