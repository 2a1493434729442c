package bus

import "testing"

func TestGroup(t *testing.T) {
	tests := []struct {
		cmd  uint8
		want CommandGroup
	}{
		{DCL, GroupUniversal},
		{0x1F, GroupUniversal},
		{MLA(0), GroupListen},
		{UNL, GroupListen},
		{MTA(5), GroupTalk},
		{UNT, GroupTalk},
		{MSA(0), GroupSecondary},
		{0x7F, GroupSecondary},
		{0x80 | DCL, GroupUniversal},
	}

	for _, tt := range tests {
		if got := Group(tt.cmd); got != tt.want {
			t.Errorf("Group(%#02x) = %v, want %v", tt.cmd, got, tt.want)
		}
	}
}

func TestAddresses(t *testing.T) {
	tests := []struct {
		addr          uint8
		mla, mta, msa uint8
	}{
		{0, 0x20, 0x40, 0x60},
		{1, 0x21, 0x41, 0x61},
		{30, 0x3E, 0x5E, 0x7E},
	}

	for _, tt := range tests {
		if got := MLA(tt.addr); got != tt.mla {
			t.Errorf("MLA(%d) = %#02x, want %#02x", tt.addr, got, tt.mla)
		}
		if got := MTA(tt.addr); got != tt.mta {
			t.Errorf("MTA(%d) = %#02x, want %#02x", tt.addr, got, tt.mta)
		}
		if got := MSA(tt.addr); got != tt.msa {
			t.Errorf("MSA(%d) = %#02x, want %#02x", tt.addr, got, tt.msa)
		}
	}
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		cmd  uint8
		want string
	}{
		{GTL, "GTL"},
		{SDC, "SDC"},
		{DCL, "DCL"},
		{SPE, "SPE"},
		{UNL, "UNL"},
		{UNT, "UNT"},
		{0x21, "MLA 01h"},
		{0x5E, "MTA 1Eh"},
		{0x65, "MSA 05h"},
		{0x80 | UNL, "UNL"},
		{0x02, ""},
	}

	for _, tt := range tests {
		if got := CommandName(tt.cmd); got != tt.want {
			t.Errorf("CommandName(%#02x) = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}
