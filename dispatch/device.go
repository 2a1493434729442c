package dispatch

import (
	"context"

	"github.com/ardnew/softgpib/bus"
)

// Device is a peripheral emulator attached to the dispatcher.
type Device interface {
	// Name returns a short unique name for logs and the admin console.
	Name() string

	// Address returns the primary bus address (0-30).
	Address() uint8

	// Init returns the device to its power-on state. Called at startup
	// and on interface clear.
	Init()

	// Clear performs a universal device clear (DCL).
	Clear()

	// SelectedClear performs a selected device clear (SDC) while the
	// device is the addressed listener.
	SelectedClear()

	// Commands handles a secondary address routed to the device because it
	// is the addressed listener or talker. When the secondary arrived with
	// a data byte, that byte has been pushed back on the transport. The
	// returned status carries any transport error flags.
	Commands(ctx context.Context, v View, secondary uint8) bus.Status
}

// Identifier is a device that answers an Identify sequence: UNT followed by
// its own secondary address.
type Identifier interface {
	Identify(ctx context.Context) bus.Status
}

// Reporter is a device that answers a serial poll with a status byte.
type Reporter interface {
	Report(ctx context.Context) bus.Status
}

// Sink is a listen-only device that takes raw data bytes, such as a
// printer or plotter capture.
type Sink interface {
	Open()
	Close()
	Buffer(b byte)
}

// Observer receives dispatcher events. Callbacks run on the dispatch
// goroutine and must not block.
type Observer interface {
	Routed(device string, secondary uint8)
	InterfaceClear()
}
