package amigo

import "fmt"

// Secondary addresses understood by an AMIGO drive.
const (
	SecondaryExecute       = 0x60 // execute the pending transfer
	SecondaryCommand       = 0x68 // command (listen), send status (talk)
	SecondaryWriteBuffered = 0x69
	SecondaryBuffered      = 0x6A
	SecondaryFormat        = 0x6C
	SecondaryDSJ           = 0x70 // DSJ (talk), HP-300 clear (listen)
	SecondaryReadLoopback  = 0x7E
	SecondaryWriteLoopback = 0x7F
)

// CHS is a cylinder, head and sector position.
type CHS struct {
	Cylinder uint16
	Head     uint8
	Sector   uint8
}

// String renders the position as c/h/s.
func (p CHS) String() string {
	return fmt.Sprintf("%d/%d/%d", p.Cylinder, p.Head, p.Sector)
}

// Op identifies a decoded AMIGO command.
type Op uint8

// Commands.
const (
	OpUnknown Op = iota
	OpColdLoadRead
	OpSeek
	OpRequestStatus
	OpReadUnbuffered
	OpVerify
	OpWriteUnbuffered
	OpInitialize
	OpRequestLogicalAddress
	OpWriteBuffered
	OpRequestStatusUnbuffered
	OpReadBuffered
	OpFormat
	OpClear
)

var opNames = [...]string{
	OpUnknown:                 "unknown",
	OpColdLoadRead:            "cold load read",
	OpSeek:                    "seek",
	OpRequestStatus:           "request status",
	OpReadUnbuffered:          "read",
	OpVerify:                  "verify",
	OpWriteUnbuffered:         "write",
	OpInitialize:              "initialize",
	OpRequestLogicalAddress:   "request logical address",
	OpWriteBuffered:           "buffered write",
	OpRequestStatusUnbuffered: "unbuffered request status",
	OpReadBuffered:            "buffered read",
	OpFormat:                  "format",
	OpClear:                   "hp-300 clear",
}

// String returns the command name.
func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// HasUnit reports whether the command carries a unit byte.
func (op Op) HasUnit() bool {
	switch op {
	case OpUnknown, OpColdLoadRead, OpRequestLogicalAddress, OpClear:
		return false
	}
	return true
}

// Command is a decoded command record.
type Command struct {
	Op       Op
	Opcode   uint8 // first record byte
	Unit     uint8
	Position CHS    // OpColdLoadRead, OpSeek
	Sectors  uint16 // OpVerify
	Fill     byte   // OpFormat
}

// Decode matches a command record received under secondary against the
// opcode table. Records of the wrong length decode as OpUnknown.
func Decode(secondary uint8, rec []byte) Command {
	if len(rec) == 0 {
		return Command{}
	}
	c := Command{Opcode: rec[0]}
	if len(rec) > 1 {
		c.Unit = rec[1]
	}
	n := len(rec)

	switch secondary {
	case SecondaryCommand:
		switch {
		case c.Opcode == 0x00 && n == 2:
			c.Op, c.Unit = OpColdLoadRead, 0
			c.Position = CHS{Head: rec[1] >> 6 & 0x03, Sector: rec[1] & 0x3f}
		case c.Opcode == 0x02 && n == 5:
			c.Op = OpSeek
			c.Position = CHS{Cylinder: uint16(rec[2]), Head: rec[3], Sector: rec[4]}
		case c.Opcode == 0x02 && n == 6:
			c.Op = OpSeek
			c.Position = CHS{Cylinder: uint16(rec[2])<<8 | uint16(rec[3]), Head: rec[4], Sector: rec[5]}
		case c.Opcode == 0x03 && n == 2:
			c.Op = OpRequestStatus
		case c.Opcode == 0x05 && n == 2:
			c.Op = OpReadUnbuffered
		case c.Opcode == 0x07 && n == 4:
			c.Op = OpVerify
			c.Sectors = uint16(rec[2])<<8 | uint16(rec[3])
		case c.Opcode == 0x08 && n == 2:
			c.Op = OpWriteUnbuffered
		case (c.Opcode == 0x0B || c.Opcode == 0x2B) && n == 2:
			c.Op = OpInitialize
		case c.Opcode == 0x14 && n == 2:
			c.Op, c.Unit = OpRequestLogicalAddress, 0
		}
	case SecondaryWriteBuffered:
		if c.Opcode == 0x08 && n == 2 {
			c.Op = OpWriteBuffered
		}
	case SecondaryBuffered:
		switch {
		case c.Opcode == 0x08 && n == 2:
			c.Op = OpRequestStatusUnbuffered
		case c.Opcode == 0x05 && n == 2:
			c.Op = OpReadBuffered
		}
	case SecondaryFormat:
		if c.Opcode == 0x18 && n == 5 {
			c.Op = OpFormat
			c.Fill = rec[4]
		}
	case SecondaryDSJ:
		c.Op, c.Unit = OpClear, 0
	}
	return c
}
