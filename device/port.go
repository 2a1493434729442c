package device

import (
	"context"

	"github.com/ardnew/softgpib/bus"
)

// BufferSize is the largest parameter record or data chunk a drive moves
// in one string transfer.
const BufferSize = 512

// Port is the string transfer surface a drive emulator talks through.
// *bus.Transport implements it.
type Port interface {
	// ReadString receives up to len(buf) bytes. See bus.Transport.ReadString.
	ReadString(ctx context.Context, buf []byte, flags bus.Status) (int, bus.Status)

	// WriteString sends buf. See bus.Transport.WriteString.
	WriteString(ctx context.Context, buf []byte, flags bus.Status) (int, bus.Status)
}

var _ Port = (*bus.Transport)(nil)

// Identity is the two-byte reply a drive sends to an Identify sequence.
type Identity [2]byte
