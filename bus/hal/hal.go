package hal

import (
	"context"
)

// Line identifies one of the eight bus management and handshake lines.
type Line uint8

// Bus lines (IEEE-488.1).
const (
	ATN  Line = iota // Attention
	EOI              // End or Identify
	DAV              // Data Valid
	NRFD             // Not Ready For Data
	NDAC             // Not Data Accepted
	SRQ              // Service Request
	REN              // Remote Enable
	IFC              // Interface Clear

	NumLines = int(IFC) + 1
)

// String returns the conventional line mnemonic.
func (l Line) String() string {
	switch l {
	case ATN:
		return "ATN"
	case EOI:
		return "EOI"
	case DAV:
		return "DAV"
	case NRFD:
		return "NRFD"
	case NDAC:
		return "NDAC"
	case SRQ:
		return "SRQ"
	case REN:
		return "REN"
	case IFC:
		return "IFC"
	default:
		return "Unknown"
	}
}

// BusHAL defines the Hardware Abstraction Layer interface for a bus port.
//
// Every line is open-collector: a port either pulls a line low (asserted,
// logically true) or lets it float high. A line reads low when any port on
// the bus pulls it low. The eight data lines follow the same rule, so the
// data methods deal in electrical levels: a zero bit is a line held low.
//
// Implementations must be safe to call from one foreground goroutine while
// other ports on the same bus are driven concurrently.
type BusHAL interface {
	// Init prepares the port hardware and leaves every line floating.
	// The context can be used to cancel initialization.
	Init(ctx context.Context) error

	// Close releases every line and the underlying hardware.
	Close() error

	// Assert pulls the line low.
	Assert(line Line)

	// Float releases the line so it can be pulled high.
	Float(line Line)

	// IsAsserted returns true if the line currently reads low.
	IsAsserted(line Line) bool

	// WriteData drives the data lines. A zero bit pulls the line low and a
	// one bit releases it.
	WriteData(levels byte)

	// FloatData releases all eight data lines.
	FloatData()

	// ReadData samples the electrical level of the data lines. A zero bit
	// is a line held low by some port.
	ReadData() byte
}
