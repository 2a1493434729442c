package bus

import (
	"context"

	"github.com/ardnew/softgpib/pkg"
)

// ReadString receives up to len(buf) bytes.
//
// The ATN bit of flags selects which kind of byte the caller expects;
// a byte of the other kind is pushed back and ends the read. A data byte
// tagged with EOI ends the read and sets EOI in the returned status. Any
// transport error ends the read with its flag set.
//
// The returned count may be less than len(buf). A short count without an
// error flag is a normal end of message.
func (t *Transport) ReadString(ctx context.Context, buf []byte, flags Status) (int, Status) {
	status := flags &^ DataMask
	if len(buf) == 0 {
		pkg.LogDebug(pkg.ComponentBus, "read string with empty buffer")
	}

	n := 0
	for n < len(buf) {
		b := t.ReadByte(ctx)
		if b.Status&ErrorMask != 0 {
			status |= b.Status & ErrorMask
			break
		}
		if status&ATN != b.Status&ATN {
			pkg.LogDebug(pkg.ComponentBus, "unexpected ATN state",
				"index", n, "byte", b.Value)
			t.Unread(b)
			break
		}

		if b.Status&ATN != 0 {
			buf[n] = b.Value & CommandMask
		} else {
			buf[n] = b.Value
		}
		n++

		if b.IsEnd() {
			status |= EOI
			return n, status
		}
	}
	// EOI in the result only ever reports an end indicator actually seen.
	return n, status &^ EOI
}

// WriteString sends buf. The ATN bit of flags is driven on every byte and
// the EOI bit only on the last. Sending stops at the first error flag.
func (t *Transport) WriteString(ctx context.Context, buf []byte, flags Status) (int, Status) {
	status := flags &^ DataMask
	n := 0
	for i, v := range buf {
		f := status & ATN
		if i == len(buf)-1 && status&EOI != 0 {
			f |= EOI
		}
		st := t.WriteByte(ctx, v, f)
		if st&ErrorMask != 0 {
			status |= st & ErrorMask
			break
		}
		n++
	}
	return n, status
}
