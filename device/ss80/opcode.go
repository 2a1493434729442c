package ss80

import "fmt"

// Secondary addresses understood by an SS80 drive.
const (
	SecondaryCommand     = 0x65 // command message (listen)
	SecondaryExecute     = 0x6E // execution message (talk or listen)
	SecondaryReport      = 0x70 // QSTAT report (talk), Amigo clear (listen)
	SecondaryTransparent = 0x72 // transparent message (listen)
)

// Opcode is a Command State opcode.
type Opcode uint8

// Command State opcodes. Set Unit and Set Volume occupy the ranges
// OpSetUnit..OpSetUnit+15 and OpSetVolume..OpSetVolume+15.
const (
	OpLocateAndRead    Opcode = 0x00
	OpLocateAndWrite   Opcode = 0x02
	OpLocateAndVerify  Opcode = 0x04
	OpRequestStatus    Opcode = 0x0D
	OpReleaseDenied    Opcode = 0x0E
	OpRelease          Opcode = 0x0F
	OpSetAddress       Opcode = 0x10
	OpSetLength        Opcode = 0x18
	OpSetUnit          Opcode = 0x20
	OpValidateKey      Opcode = 0x31
	OpInitiateDiag     Opcode = 0x33
	OpNoOp             Opcode = 0x34
	OpDescribe         Opcode = 0x35
	OpInitializeMedia  Opcode = 0x37
	OpSetRPS           Opcode = 0x39
	OpSetRetryTime     Opcode = 0x3B
	OpSetStatusMask    Opcode = 0x3E
	OpSetVolume        Opcode = 0x40
	OpSetReturnAddress Opcode = 0x48
	OpWriteFileMark    Opcode = 0x4C
	OpUnload           Opcode = 0x4D
)

// Class tells what decoding an opcode does to the rest of the record.
type Class uint8

// Opcode classes.
const (
	// Complementary opcodes set a session parameter; scanning continues.
	Complementary Class = iota
	// Terminal opcodes schedule an Execute action and end the scan.
	Terminal
	// Final opcodes are accepted without effect and end the scan.
	Final
	// Unknown opcodes end the scan.
	Unknown
)

type opcodeInfo struct {
	name   string
	params int
	class  Class
}

var opcodes = map[Opcode]opcodeInfo{
	OpLocateAndRead:    {"locate and read", 0, Terminal},
	OpLocateAndWrite:   {"locate and write", 0, Terminal},
	OpLocateAndVerify:  {"locate and verify", 0, Final},
	OpRequestStatus:    {"request status", 0, Terminal},
	OpReleaseDenied:    {"release denied", 0, Final},
	OpRelease:          {"release", 0, Final},
	OpSetAddress:       {"set address", 6, Complementary},
	OpSetLength:        {"set length", 4, Complementary},
	OpValidateKey:      {"validate key", 2, Final},
	OpInitiateDiag:     {"initiate diagnostic", 3, Final},
	OpNoOp:             {"no op", 0, Complementary},
	OpDescribe:         {"describe", 0, Terminal},
	OpInitializeMedia:  {"initialize media", 2, Final},
	OpSetRPS:           {"set rps", 2, Complementary},
	OpSetRetryTime:     {"set retry time", 1, Complementary},
	OpSetStatusMask:    {"set status mask", 8, Final},
	OpSetReturnAddress: {"set return addressing", 1, Complementary},
	OpWriteFileMark:    {"write file mark", 0, Final},
	OpUnload:           {"unload", 0, Final},
}

func (op Opcode) info() opcodeInfo {
	if i, ok := opcodes[op]; ok {
		return i
	}
	if _, ok := op.unit(); ok {
		return opcodeInfo{"set unit", 0, Complementary}
	}
	if _, ok := op.volume(); ok {
		return opcodeInfo{"set volume", 0, Complementary}
	}
	return opcodeInfo{"unknown", 0, Unknown}
}

// unit returns the unit a set unit opcode selects. Opcodes with their own
// meaning inside the range are not set unit opcodes.
func (op Opcode) unit() (uint8, bool) {
	return op.inRange(OpSetUnit)
}

// volume returns the volume a set volume opcode selects. 48h, 4Ch and 4Dh
// fall inside the range but are not set volume opcodes.
func (op Opcode) volume() (uint8, bool) {
	return op.inRange(OpSetVolume)
}

func (op Opcode) inRange(base Opcode) (uint8, bool) {
	if _, ok := opcodes[op]; ok || op < base || op > base+0x0f {
		return 0, false
	}
	return uint8(op - base), true
}

// Class returns the opcode class.
func (op Opcode) Class() Class { return op.info().class }

// Params returns the number of parameter bytes following the opcode.
func (op Opcode) Params() int { return op.info().params }

// String returns the opcode name and value.
func (op Opcode) String() string {
	return fmt.Sprintf("%s (%02Xh)", op.info().name, uint8(op))
}

// Command is one decoded opcode with its parameter bytes.
type Command struct {
	Op     Opcode
	Params []byte
}

// String returns the opcode followed by its parameter bytes.
func (c Command) String() string {
	if len(c.Params) == 0 {
		return c.Op.String()
	}
	return fmt.Sprintf("%s [% X]", c.Op, c.Params)
}

// Decode splits a Command State record into commands. It stops after the
// first opcode that is not Complementary, and at a truncated parameter
// list. The second result is the number of record bytes consumed.
func Decode(rec []byte) ([]Command, int) {
	var cmds []Command
	i := 0
	for i < len(rec) {
		op := Opcode(rec[i])
		n := op.Params()
		if i+1+n > len(rec) {
			break
		}
		cmds = append(cmds, Command{Op: op, Params: rec[i+1 : i+1+n]})
		i += 1 + n
		if op.Class() != Complementary {
			break
		}
	}
	return cmds, i
}

// Transparent State opcodes. Unit complementary opcodes may precede them.
const (
	TpParityChecking Opcode = 0x01
	TpReadLoopback   Opcode = 0x02
	TpWriteLoopback  Opcode = 0x03
	TpChannelClear   Opcode = 0x08
	TpCancel         Opcode = 0x09
)
