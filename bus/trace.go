package bus

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ardnew/softgpib/pkg"
)

// DecodeByte renders b as one trace line: hex payload, printable character
// for data bytes, the AESRIPTB flag columns and, for commands, the decoded
// mnemonic.
func DecodeByte(b Byte) string {
	printable := byte(' ')
	if b.Status&ATN == 0 && b.Value >= 0x20 && b.Value <= 0x7e {
		printable = b.Value
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%02X %c %s", b.Value, printable, b.Status)
	if b.Status&ATN != 0 {
		if name := CommandName(b.Value); name != "" {
			sb.WriteByte(' ')
			sb.WriteString(name)
		}
	}
	return sb.String()
}

// WriteTraceHeader writes the legend for DecodeByte lines to w.
func WriteTraceHeader(w io.Writer) {
	io.WriteString(w, `===========================================
GPIB bus state
HH . AESRIPTB gpib
HH = Hex value of Command or Data
   . = ASCII of HH only for 0x20 .. 0x7e
     A = ATN
      E = EOI
       S = SRQ
        R = REN
         I = IFC
          P = Parallel Poll seen
           T = TIMEOUT
            B = BUS_ERROR
              GPIB commands
`)
}

// Monitor acts as a passive listener: it accepts every byte on the bus and
// writes its decoded form to w until ctx is cancelled. Devices are not
// consulted, and the parallel poll register is still driven.
func (t *Transport) Monitor(ctx context.Context, w io.Writer) error {
	WriteTraceHeader(w)
	for {
		b := t.ReadByte(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.WriteString(w, DecodeByte(b)+"\n"); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
		if b.Status&IFC != 0 {
			pkg.LogInfo(pkg.ComponentBus, "interface clear while monitoring")
			t.Reset()
		}
	}
}
