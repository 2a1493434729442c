// Package emulator assembles a complete peripheral emulator from a
// configuration: clock, transport, dispatcher, device emulators, backing
// stores and metrics.
//
// [Emulator.Run] drives the bus until its context is cancelled. While it is
// stopped the administrative operations (reset, clear, command decode,
// execute) may be used to inspect and poke the devices directly.
package emulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/softgpib/bus"
	"github.com/ardnew/softgpib/bus/hal"
	"github.com/ardnew/softgpib/config"
	"github.com/ardnew/softgpib/device/amigo"
	"github.com/ardnew/softgpib/device/printer"
	"github.com/ardnew/softgpib/device/ss80"
	"github.com/ardnew/softgpib/dispatch"
	"github.com/ardnew/softgpib/metrics"
	"github.com/ardnew/softgpib/pkg"
	"github.com/ardnew/softgpib/storage"
)

// PollInterval is how often media state is refreshed from the host.
const PollInterval = time.Second

// Emulator owns every part of one emulated bus port.
type Emulator struct {
	config     *config.Config
	hal        hal.BusHAL
	clock      *bus.Clock
	ppr        *bus.PollRegister
	transport  *bus.Transport
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Collector

	storages []storage.Storage
	printers []*printer.Device

	owner  atomic.Int32
	closed sync.Once
}

// Bus port owners. Run and the administrative transfers each take the port
// for their whole duration.
const (
	ownerNone int32 = iota
	ownerRun
	ownerAdmin
)

// acquire takes the bus port for owner, or fails if Run or another
// administrative transfer holds it.
func (e *Emulator) acquire(owner int32) error {
	if !e.owner.CompareAndSwap(ownerNone, owner) {
		return pkg.ErrAlreadyRunning
	}
	return nil
}

func (e *Emulator) release() {
	e.owner.Store(ownerNone)
}

// New builds an emulator for cfg on bus port h. Drive images are opened
// (and created when missing) here.
func New(cfg *config.Config, h hal.BusHAL) (*Emulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Emulator{
		config:  cfg,
		hal:     h,
		clock:   bus.NewClock(bus.DefaultTickPeriod),
		ppr:     &bus.PollRegister{},
		metrics: metrics.New(),
	}
	e.transport = bus.NewTransport(h, e.clock, e.ppr)
	e.transport.SetTimeout(cfg.Timeout())
	e.transport.SetObserver(e.metrics)

	devices := make([]dispatch.Device, 0, len(cfg.Devices))
	for _, dc := range cfg.Devices {
		dev, err := e.build(dc)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("device %s: %w", dc.Name, err)
		}
		devices = append(devices, dev)
	}
	e.dispatcher = dispatch.New(e.transport, devices...)
	e.dispatcher.SetObserver(e.metrics)

	every := uint64(PollInterval / e.clock.Period())
	e.clock.OnTick(func(tick uint64) {
		if tick%every == 0 {
			e.pollMedia()
		}
	})
	return e, nil
}

func (e *Emulator) build(dc config.Device) (dispatch.Device, error) {
	switch dc.Kind {
	case config.KindSS80:
		m, err := ss80.Lookup(dc.Model)
		if err != nil {
			return nil, err
		}
		store, err := e.open(dc, m.ImageSize())
		if err != nil {
			return nil, err
		}
		return ss80.New(dc.Name, dc.Address, m, store, e.transport, e.ppr.Bit(dc.PPR)), nil

	case config.KindAmigo:
		m, err := amigo.Lookup(dc.Model)
		if err != nil {
			return nil, err
		}
		store, err := e.open(dc, m.ImageSize())
		if err != nil {
			return nil, err
		}
		return amigo.New(dc.Name, dc.Address, m, store, e.transport, e.ppr.Bit(dc.PPR)), nil

	case config.KindPrinter:
		p := printer.New(dc.Name, dc.Address, dc.Dir)
		e.printers = append(e.printers, p)
		return p, nil
	}
	return nil, fmt.Errorf("kind %q: %w", dc.Kind, pkg.ErrConfig)
}

// open returns the backing store of a drive. An empty image path keeps the
// medium in memory.
func (e *Emulator) open(dc config.Device, size int64) (storage.Storage, error) {
	var store storage.Storage
	if dc.Image == "" {
		m := storage.NewMemoryStorage(size)
		m.SetReadOnly(dc.ReadOnly)
		store = m
	} else {
		f, err := storage.OpenFile(dc.Image, size, dc.ReadOnly)
		if err != nil {
			return nil, err
		}
		store = f
	}
	e.storages = append(e.storages, store)
	pkg.LogInfo(pkg.ComponentEmulator, "medium", "device", dc.Name,
		"image", dc.Image, "size", store.Size(), "read_only", store.IsReadOnly())
	return store, nil
}

func (e *Emulator) pollMedia() {
	for _, s := range e.storages {
		if p, ok := s.(storage.Poller); ok {
			p.Poll()
		}
	}
}

// Run initializes the bus port and runs the tick clock and the dispatch
// loop until ctx is cancelled or the port fails. Cancellation is not an
// error.
func (e *Emulator) Run(ctx context.Context) error {
	if err := e.acquire(ownerRun); err != nil {
		return err
	}
	defer e.release()

	if err := e.hal.Init(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("init bus port: %w", err)
	}
	pkg.LogInfo(pkg.ComponentEmulator, "running", "devices", len(e.dispatcher.Devices()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.clock.Run(gctx) })
	g.Go(func() error { return e.dispatcher.Run(gctx) })
	err := g.Wait()

	e.transport.Reset()
	for _, p := range e.printers {
		p.Close()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		pkg.LogInfo(pkg.ComponentEmulator, "stopped")
		return nil
	}
	return err
}

// Running reports whether Run is active.
func (e *Emulator) Running() bool {
	return e.owner.Load() == ownerRun
}

// Close releases every backing store, capture file and the bus port.
func (e *Emulator) Close() error {
	var errs []error
	e.closed.Do(func() {
		for _, p := range e.printers {
			p.Close()
		}
		for _, s := range e.storages {
			errs = append(errs, s.Close())
		}
		errs = append(errs, e.hal.Close())
	})
	return errors.Join(errs...)
}

// Config returns the configuration the emulator was built from.
func (e *Emulator) Config() *config.Config { return e.config }

// Clock returns the tick clock.
func (e *Emulator) Clock() *bus.Clock { return e.clock }

// Transport returns the bus transport.
func (e *Emulator) Transport() *bus.Transport { return e.transport }

// Dispatcher returns the dispatcher.
func (e *Emulator) Dispatcher() *dispatch.Dispatcher { return e.dispatcher }

// Metrics returns the metrics collector.
func (e *Emulator) Metrics() *metrics.Collector { return e.metrics }

// PollResponse returns the current parallel poll response byte.
func (e *Emulator) PollResponse() uint8 { return e.ppr.Value() }

// SetTrace mirrors every bus byte to w. Pass nil to stop tracing.
func (e *Emulator) SetTrace(w io.Writer) {
	e.transport.SetTrace(w)
}
