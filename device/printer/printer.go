// Package printer emulates a listen-only plotter or printer that captures
// everything sent to it into a host file.
package printer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ardnew/softgpib/bus"
	"github.com/ardnew/softgpib/dispatch"
	"github.com/ardnew/softgpib/pkg"
)

// BlockSize is the capture buffer size; captured data reaches the file in
// blocks of this many bytes.
const BlockSize = 512

// NameLayout is the time layout of capture file names.
const NameLayout = "plot-02Jan2006-150405.plt"

// Device captures data bytes addressed to it. A capture opens when the
// device is listen-addressed while some instrument talks, and closes when
// the listen address changes or the device is cleared.
type Device struct {
	name    string
	address uint8
	dir     string
	now     func() time.Time

	mutex  sync.Mutex
	file   *os.File
	w      *bufio.Writer
	path   string
	count  int64
	err    error
	closed []string
}

var (
	_ dispatch.Device = (*Device)(nil)
	_ dispatch.Sink   = (*Device)(nil)
)

// New creates a capture device at primary address addr writing files into
// dir.
func New(name string, addr uint8, dir string) *Device {
	return &Device{
		name:    name,
		address: addr,
		dir:     dir,
		now:     time.Now,
	}
}

// SetClock replaces the time source used to name capture files.
func (d *Device) SetClock(now func() time.Time) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.now = now
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Address returns the primary bus address.
func (d *Device) Address() uint8 { return d.address }

// Init closes any open capture.
func (d *Device) Init() {
	d.Close()
}

// Clear closes any open capture.
func (d *Device) Clear() {
	d.Close()
}

// SelectedClear closes any open capture.
func (d *Device) SelectedClear() {
	d.Close()
}

// Commands logs secondary addresses; the device has no use for them.
func (d *Device) Commands(ctx context.Context, v dispatch.View, secondary uint8) bus.Status {
	switch {
	case dispatch.Listener(v, d.address):
		pkg.LogDebug(pkg.ComponentPrinter, "listen secondary", "device", d.name, "secondary", secondary)
	case dispatch.Talker(v, d.address):
		pkg.LogDebug(pkg.ComponentPrinter, "talk secondary", "device", d.name, "secondary", secondary)
	}
	return 0
}

// Open starts a new capture file unless one is already open.
func (d *Device) Open() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.file != nil {
		return
	}

	path := filepath.Join(d.dir, d.now().UTC().Format(NameLayout))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		pkg.LogError(pkg.ComponentPrinter, "open capture failed", "device", d.name, "path", path, "error", err)
		return
	}
	d.file = f
	d.w = bufio.NewWriterSize(f, BlockSize)
	d.path = path
	d.count = 0
	d.err = nil
	pkg.LogInfo(pkg.ComponentPrinter, "capturing", "device", d.name, "path", path)
}

// Buffer appends b to the open capture. Bytes arriving with no capture
// open are dropped.
func (d *Device) Buffer(b byte) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.w == nil {
		return
	}
	if err := d.w.WriteByte(b); err != nil && d.err == nil {
		d.err = err
		pkg.LogError(pkg.ComponentPrinter, "capture write failed", "device", d.name, "error", err)
	}
	d.count++
}

// Close flushes and closes the open capture, if any.
func (d *Device) Close() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.file == nil {
		return
	}
	err := errors.Join(d.err, d.w.Flush(), d.file.Sync(), d.file.Close())
	if err != nil {
		pkg.LogError(pkg.ComponentPrinter, "capture incomplete", "device", d.name,
			"path", d.path, "error", err)
	}
	pkg.LogInfo(pkg.ComponentPrinter, "capture closed", "device", d.name,
		"path", d.path, "bytes", d.count)
	d.closed = append(d.closed, d.path)
	d.file, d.w = nil, nil
}

// Capturing returns the path of the open capture.
func (d *Device) Capturing() (string, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.path, d.file != nil
}

// Captures returns the paths of every closed capture.
func (d *Device) Captures() []string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]string(nil), d.closed...)
}

// String describes the capture state.
func (d *Device) String() string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.file == nil {
		return fmt.Sprintf("%s: idle, %d captures", d.name, len(d.closed))
	}
	return fmt.Sprintf("%s: capturing %s (%d bytes)", d.name, d.path, d.count)
}
