// Package pkg provides shared utilities for the softgpib peripheral
// emulator.
//
// This package contains common functionality used by the bus transport,
// the dispatcher and every device emulator, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for transport, storage and configuration failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component field:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentSS80, "locate and read", "block", 12)
//
// # Errors
//
// Transport conditions are reported as bus status flags, which map onto
// the sentinels defined here:
//
//	if errors.Is(st.Err(), pkg.ErrInterfaceClear) {
//	    // re-initialize devices
//	}
package pkg
