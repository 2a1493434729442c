// Package device holds what the GPIB peripheral emulators share: the error
// cause bits and quick status byte a drive reports to the controller, the
// classification of backing store errors, and the [Port] a drive moves
// parameter records and data through.
//
// The emulators themselves live in subpackages:
//
//   - [github.com/ardnew/softgpib/device/amigo] emulates AMIGO floppy and
//     small Winchester drives addressed by cylinder, head and sector
//   - [github.com/ardnew/softgpib/device/ss80] emulates SS80 drives with
//     command, execute, report and transparent message states
//   - [github.com/ardnew/softgpib/device/printer] captures printer and
//     plotter output to files
//
// Each emulator implements [github.com/ardnew/softgpib/dispatch.Device] and
// is driven by a dispatcher. None of them touch bus lines directly; a
// [*bus.Transport] performs every handshake on their behalf.
//
// # Status
//
// Storage and transfer failures never stall the bus. They accumulate in
// [ErrorBits] and surface through the protocol's own status requests. The
// [QuickStatus] byte (DSJ for AMIGO, QSTAT for SS80) tells the controller
// whether to ask:
//
//	StatusOK       0  normal completion
//	StatusError    1  error pending
//	StatusPowerOn  2  power-on or reset since the last report
package device
