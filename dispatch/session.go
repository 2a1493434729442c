package dispatch

import (
	"fmt"

	"github.com/ardnew/softgpib/bus"
)

// View is the read-only side of the bus session handed to devices. A
// device uses it to test whether it is the addressed talker or listener.
type View interface {
	Listening() uint8
	Talking() uint8
	Secondary() uint8
	SerialPoll() bool
}

// Session tracks bus addressing as decoded from command bytes. Only the
// Dispatcher mutates it.
type Session struct {
	listening     uint8
	listeningLast uint8
	talking       uint8
	talkingLast   uint8
	secondary     uint8
	spoll         bool
}

var _ View = (*Session)(nil)

// Listening returns the current listen address command, or zero.
func (s *Session) Listening() uint8 { return s.listening }

// ListeningLast returns the listen address before the current one.
func (s *Session) ListeningLast() uint8 { return s.listeningLast }

// Talking returns the current talk address command, or zero.
func (s *Session) Talking() uint8 { return s.talking }

// TalkingLast returns the talk address before the current one.
func (s *Session) TalkingLast() uint8 { return s.talkingLast }

// Secondary returns the pending secondary address, or zero.
func (s *Session) Secondary() uint8 { return s.secondary }

// SerialPoll reports whether serial poll is enabled.
func (s *Session) SerialPoll() bool { return s.spoll }

// IsListener reports whether addr is the addressed listener.
func (s *Session) IsListener(addr uint8) bool { return s.listening == bus.MLA(addr) }

// IsTalker reports whether addr is the addressed talker.
func (s *Session) IsTalker(addr uint8) bool { return s.talking == bus.MTA(addr) }

func (s *Session) reset() {
	*s = Session{}
}

// String renders the session for status displays.
func (s Session) String() string {
	return fmt.Sprintf("listen=%02X talk=%02X secondary=%02X spoll=%t",
		s.listening, s.talking, s.secondary, s.spoll)
}

// Listener reports whether the device at addr is the addressed listener
// according to v.
func Listener(v View, addr uint8) bool { return v.Listening() == bus.MLA(addr) }

// Talker reports whether the device at addr is the addressed talker
// according to v.
func Talker(v View, addr uint8) bool { return v.Talking() == bus.MTA(addr) }
