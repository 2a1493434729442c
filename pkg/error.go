package pkg

import "errors"

// Bus transport errors.
var (
	// ErrTimeout indicates a handshake wait exceeded the bus timeout.
	ErrTimeout = errors.New("bus timeout")

	// ErrBusError indicates an unexpected line state during a handshake.
	ErrBusError = errors.New("bus error")

	// ErrInterfaceClear indicates the controller pulsed IFC.
	ErrInterfaceClear = errors.New("interface clear")

	// ErrPushbackFull indicates a second byte was unread before the first
	// was consumed.
	ErrPushbackFull = errors.New("pushback slot occupied")
)

// Emulator errors.
var (
	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidState indicates an invalid device state for the operation.
	ErrInvalidState = errors.New("invalid device state")

	// ErrNotPresent indicates no medium is loaded behind a storage.
	ErrNotPresent = errors.New("medium not present")

	// ErrWriteProtected indicates a write to read-only storage.
	ErrWriteProtected = errors.New("write protected")

	// ErrOutOfRange indicates an access beyond the end of the medium.
	ErrOutOfRange = errors.New("address out of range")

	// ErrAlreadyRunning indicates the emulator is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the emulator is not running.
	ErrNotRunning = errors.New("not running")

	// ErrUnknownDevice indicates a name or address matching no device.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrConfig indicates an invalid configuration.
	ErrConfig = errors.New("invalid configuration")
)
