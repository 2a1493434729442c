package bus

import "fmt"

// Universal and addressed commands.
const (
	GTL = 0x01 // Go To Local
	SDC = 0x04 // Selected Device Clear
	PPC = 0x05 // Parallel Poll Configure
	GET = 0x08 // Group Execute Trigger
	TCT = 0x09 // Take Control
	LLO = 0x11 // Local Lockout
	DCL = 0x14 // Device Clear
	PPU = 0x15 // Parallel Poll Unconfigure
	SPE = 0x18 // Serial Poll Enable
	SPD = 0x19 // Serial Poll Disable
	UNL = 0x3F // Unlisten
	UNT = 0x5F // Untalk
)

// Address group bases.
const (
	ListenBase    = 0x20
	TalkBase      = 0x40
	SecondaryBase = 0x60
)

// CommandGroup classifies a 7-bit command byte.
type CommandGroup uint8

// Command groups.
const (
	GroupUniversal CommandGroup = iota // 0x00-0x1F
	GroupListen                        // 0x20-0x3F
	GroupTalk                          // 0x40-0x5F
	GroupSecondary                     // 0x60-0x7F
)

// String returns the group name.
func (g CommandGroup) String() string {
	switch g {
	case GroupUniversal:
		return "universal"
	case GroupListen:
		return "listen"
	case GroupTalk:
		return "talk"
	case GroupSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Group returns the command group of cmd.
func Group(cmd uint8) CommandGroup {
	return CommandGroup((cmd & CommandMask) >> 5)
}

// MLA returns the listen address command for primary address addr.
func MLA(addr uint8) uint8 { return ListenBase | addr&0x1f }

// MTA returns the talk address command for primary address addr.
func MTA(addr uint8) uint8 { return TalkBase | addr&0x1f }

// MSA returns the secondary address command for addr.
func MSA(addr uint8) uint8 { return SecondaryBase | addr&0x1f }

var commandNames = map[uint8]string{
	GTL: "GTL",
	SDC: "SDC",
	PPC: "PPC",
	GET: "GET",
	TCT: "TCT",
	LLO: "LLO",
	DCL: "DCL",
	PPU: "PPU",
	SPE: "SPE",
	SPD: "SPD",
	UNL: "UNL",
	UNT: "UNT",
}

// CommandName decodes a command byte into its mnemonic: a token such as
// "DCL", or "MLA 01h" style text for address groups. Unknown universal
// commands return an empty string.
func CommandName(cmd uint8) string {
	cmd &= CommandMask
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	switch {
	case cmd >= 0x20 && cmd <= 0x3e:
		return fmt.Sprintf("MLA %02Xh", cmd&0x1f)
	case cmd >= 0x40 && cmd <= 0x5e:
		return fmt.Sprintf("MTA %02Xh", cmd&0x1f)
	case cmd >= 0x60 && cmd <= 0x7f:
		return fmt.Sprintf("MSA %02Xh", cmd&0x1f)
	}
	return ""
}
