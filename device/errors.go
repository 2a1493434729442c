package device

import (
	"errors"
	"strings"

	"github.com/ardnew/softgpib/pkg"
)

// ErrorBits records the causes behind a pending error status. Drives
// accumulate bits until the controller collects them with a status or
// report request.
type ErrorBits uint8

// Error causes.
const (
	ErrRead  ErrorBits = 1 << iota // medium read failed
	ErrWrite                       // medium write failed
	ErrSeek                        // address beyond the medium
	ErrWP                          // medium write protected
	ErrDisk                        // no medium or medium unusable
	ErrGPIB                        // bus transfer failed
	ErrUnit                        // invalid unit selected
)

// String lists the set bits, or "none".
func (e ErrorBits) String() string {
	if e == 0 {
		return "none"
	}
	names := []string{"read", "write", "seek", "wp", "disk", "gpib", "unit"}
	var parts []string
	for i, name := range names {
		if e&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// ErrorBitsFor classifies a storage error. The base bit is ErrWrite for
// writes and ErrRead otherwise; write protection and a missing medium add
// their own bits.
func ErrorBitsFor(err error, write bool) ErrorBits {
	if err == nil {
		return 0
	}
	bits := ErrRead
	if write {
		bits = ErrWrite
	}
	switch {
	case errors.Is(err, pkg.ErrWriteProtected):
		bits |= ErrWP
	case errors.Is(err, pkg.ErrNotPresent):
		bits |= ErrDisk
	}
	return bits
}

// QuickStatus is the single-byte status a drive returns for DSJ (AMIGO) or
// a report phase (SS80).
type QuickStatus uint8

// Quick status values.
const (
	StatusOK      QuickStatus = 0 // normal completion
	StatusError   QuickStatus = 1 // error pending, request status for detail
	StatusPowerOn QuickStatus = 2 // power-on or reset since last report
)

// String returns the status name.
func (q QuickStatus) String() string {
	switch q {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusPowerOn:
		return "power-on"
	default:
		return "unknown"
	}
}
