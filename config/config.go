// Package config describes the emulated devices and how the emulator logs.
//
// A configuration is loaded from a Lua script or a TOML file; [Load] picks
// the loader by file extension. A Lua script declares each device with a
// constructor call:
//
//	debug = 1
//	ss80 { name = "disk", address = 0, ppr = 0, model = "9134L", image = "ss80.img" }
//	amigo { name = "floppy", address = 1, ppr = 1, model = "9121D", image = "amigo.img" }
//	printer { name = "plotter", address = 2, dir = "plots" }
//
// The same configuration in TOML uses one [[device]] table per device with
// a kind key.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ardnew/softgpib/bus"
	"github.com/ardnew/softgpib/device/amigo"
	"github.com/ardnew/softgpib/device/ss80"
	"github.com/ardnew/softgpib/pkg"
)

// Kind names a device emulator.
type Kind string

// Device kinds.
const (
	KindSS80    Kind = "ss80"
	KindAmigo   Kind = "amigo"
	KindPrinter Kind = "printer"
)

// IsDrive reports whether k is a disk drive.
func (k Kind) IsDrive() bool {
	return k == KindSS80 || k == KindAmigo
}

// Limits.
const (
	MaxAddress = 30
	MaxPPR     = 7
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Device describes one emulated device.
type Device struct {
	Name    string `toml:"name"`
	Kind    Kind   `toml:"kind"`
	Address uint8  `toml:"address"`

	// PPR is the parallel poll response bit of a drive.
	PPR uint8 `toml:"ppr"`

	// Model names the emulated drive model.
	Model string `toml:"model"`

	// Image is the host path of the drive image. An empty path keeps the
	// medium in memory.
	Image    string `toml:"image"`
	ReadOnly bool   `toml:"read_only"`

	// Dir is the directory printer captures are written to.
	Dir string `toml:"dir"`
}

// Config is a complete emulator configuration.
type Config struct {
	// Debug is the log verbosity: 0 warnings, 1 info, 2 and above debug.
	Debug     int    `toml:"debug"`
	LogFormat string `toml:"log_format"`

	// TimeoutMS bounds every bus handshake wait. Zero selects the default.
	TimeoutMS int `toml:"timeout_ms"`

	Devices []Device `toml:"device"`
}

// Default returns the power-on configuration: an SS80 9134L at address 0,
// an AMIGO 9121D at address 1 and a printer at address 2. The drive media
// are kept in memory.
func Default() *Config {
	return &Config{
		LogFormat: LogFormatText,
		Devices: []Device{
			{Name: "ss80", Kind: KindSS80, Address: 0, PPR: 0, Model: ss80.HP9134L.Name},
			{Name: "amigo", Kind: KindAmigo, Address: 1, PPR: 1, Model: amigo.HP9121D.Name},
			{Name: "printer", Kind: KindPrinter, Address: 2, Dir: "."},
		},
	}
}

// Load reads the configuration at path. Files ending in .lua are run as
// Lua scripts and files ending in .toml are decoded as TOML. The result is
// validated.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c *Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".lua":
		c, err = ParseLua(path, string(src))
	case ".toml":
		c, err = ParseTOML(path, string(src))
	default:
		return nil, fmt.Errorf("%s: unknown config format %q: %w", path, ext, pkg.ErrConfig)
	}
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	pkg.LogInfo(pkg.ComponentConfig, "loaded", "path", path, "devices", len(c.Devices))
	return c, nil
}

// normalize fills in defaults the file left out.
func (c *Config) normalize() {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatText
	}
	counts := map[Kind]int{}
	for i := range c.Devices {
		d := &c.Devices[i]
		d.Kind = Kind(strings.ToLower(string(d.Kind)))
		counts[d.Kind]++
		if d.Name == "" {
			d.Name = string(d.Kind)
			if n := counts[d.Kind]; n > 1 {
				d.Name = fmt.Sprintf("%s%d", d.Kind, n)
			}
		}
		switch d.Kind {
		case KindSS80:
			if d.Model == "" {
				d.Model = ss80.HP9134L.Name
			}
		case KindAmigo:
			if d.Model == "" {
				d.Model = amigo.HP9121D.Name
			}
		case KindPrinter:
			if d.Dir == "" {
				d.Dir = "."
			}
		}
	}
}

// Validate reports every problem with c. Each error wraps pkg.ErrConfig.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format+": %w", append(args, pkg.ErrConfig)...))
	}

	if c.Debug < 0 {
		fail("debug %d is negative", c.Debug)
	}
	switch c.LogFormat {
	case "", LogFormatText, LogFormatJSON:
	default:
		fail("log format %q", c.LogFormat)
	}
	if c.TimeoutMS < 0 {
		fail("timeout %dms is negative", c.TimeoutMS)
	}
	if len(c.Devices) == 0 {
		fail("no devices")
	}

	names := map[string]bool{}
	addrs := map[uint8]string{}
	pprs := map[uint8]string{}
	for _, d := range c.Devices {
		if d.Name == "" {
			fail("%s device without a name", d.Kind)
		} else if names[d.Name] {
			fail("duplicate device name %q", d.Name)
		}
		names[d.Name] = true

		if d.Address > MaxAddress {
			fail("%s: address %d out of range 0-%d", d.Name, d.Address, MaxAddress)
		} else if other, ok := addrs[d.Address]; ok {
			fail("%s: address %d already used by %s", d.Name, d.Address, other)
		}
		addrs[d.Address] = d.Name

		switch d.Kind {
		case KindSS80:
			if _, err := ss80.Lookup(d.Model); err != nil {
				fail("%s: unknown model %q (have %s)", d.Name, d.Model, strings.Join(ss80.Models(), ", "))
			}
		case KindAmigo:
			if _, err := amigo.Lookup(d.Model); err != nil {
				fail("%s: unknown model %q (have %s)", d.Name, d.Model, strings.Join(amigo.Models(), ", "))
			}
		case KindPrinter:
			continue
		default:
			fail("%s: unknown kind %q", d.Name, d.Kind)
			continue
		}

		if d.PPR > MaxPPR {
			fail("%s: ppr bit %d out of range 0-%d", d.Name, d.PPR, MaxPPR)
		} else if other, ok := pprs[d.PPR]; ok {
			fail("%s: ppr bit %d already used by %s", d.Name, d.PPR, other)
		}
		pprs[d.PPR] = d.Name
	}
	return errors.Join(errs...)
}

// LogLevel returns the slog level selected by Debug.
func (c *Config) LogLevel() slog.Level {
	return pkg.LevelForDebug(c.Debug)
}

// ApplyLogging configures the shared logger from Debug and LogFormat.
func (c *Config) ApplyLogging() {
	format := pkg.LogFormatText
	if c.LogFormat == LogFormatJSON {
		format = pkg.LogFormatJSON
	}
	pkg.SetLogFormat(format)
	pkg.SetLogLevel(c.LogLevel())
}

// Timeout returns the bus handshake timeout.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return bus.DefaultTimeout
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Device returns the device named name.
func (c *Config) Device(name string) (Device, bool) {
	for _, d := range c.Devices {
		if d.Name == name {
			return d, true
		}
	}
	return Device{}, false
}
