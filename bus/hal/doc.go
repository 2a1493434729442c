// Package hal defines the Hardware Abstraction Layer interface for bus
// ports.
//
// The HAL exposes only what the handshake engine needs: per-line assert,
// float and sample operations for ATN, EOI, DAV, NRFD, NDAC, SRQ, REN and
// IFC, and the eight open-collector data lines. All protocol logic,
// including timeouts and the three-wire handshake, lives in package bus.
//
// # Implementing a HAL
//
// To implement a HAL for a new platform:
//
//  1. Create a type that implements all [BusHAL] methods
//  2. Float every line in Init()
//  3. Map Assert/Float onto the platform's open-collector drivers
//  4. Return electrical levels from ReadData, not logical values
//
// # Example
//
//	type GPIOPort struct {
//	    // Platform-specific fields
//	}
//
//	func (p *GPIOPort) Assert(line hal.Line) {
//	    // drive the pin low
//	}
//
//	// ... implement remaining BusHAL methods
//
// A simulated wired-OR bus for testing is available in
// [github.com/ardnew/softgpib/bus/hal/sim].
package hal
