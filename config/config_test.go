package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ardnew/softgpib/bus"
	"github.com/ardnew/softgpib/pkg"
)

const luaConfig = `
debug = 2
log_format = "json"
timeout_ms = 250

local images = "/var/lib/hpdisk/"
ss80 { name = "disk", address = 0, ppr = 0, model = "9122d", image = images .. "ss80.img" }
amigo { address = 1, ppr = 1, image = images .. "amigo.img", read_only = true }
printer { address = 5 }
`

const tomlConfig = `
debug = 2
log_format = "json"
timeout_ms = 250

[[device]]
name = "disk"
kind = "ss80"
address = 0
ppr = 0
model = "9122d"
image = "/var/lib/hpdisk/ss80.img"

[[device]]
kind = "amigo"
address = 1
ppr = 1
image = "/var/lib/hpdisk/amigo.img"
read_only = true

[[device]]
kind = "printer"
address = 5
`

var parsedConfig = &Config{
	Debug:     2,
	LogFormat: LogFormatJSON,
	TimeoutMS: 250,
	Devices: []Device{
		{Name: "disk", Kind: KindSS80, Address: 0, PPR: 0, Model: "9122d", Image: "/var/lib/hpdisk/ss80.img"},
		{Name: "amigo", Kind: KindAmigo, Address: 1, PPR: 1, Model: "9121D", Image: "/var/lib/hpdisk/amigo.img", ReadOnly: true},
		{Name: "printer", Kind: KindPrinter, Address: 5, Dir: "."},
	},
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		parse func(string, string) (*Config, error)
		src   string
	}{
		{"lua", ParseLua, luaConfig},
		{"toml", ParseTOML, tomlConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.parse(tt.name, tt.src)
			if err != nil {
				t.Fatalf("parse error = %v", err)
			}
			if diff := cmp.Diff(parsedConfig, got); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
			if err := got.Validate(); err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestParseLua_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", `ss80 {`, ""},
		{"unknown field", `ss80 { adress = 3 }`, "unknown field"},
		{"wrong type", `amigo { address = "one" }`, "want number"},
		{"fraction", `amigo { address = 1.5 }`, "whole number"},
		{"negative", `amigo { ppr = -1 }`, "whole number"},
		{"not a table", `printer("lp")`, ""},
		{"bad debug", `debug = "loud"`, "debug"},
		{"bad log format", `log_format = 1`, "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLua(tt.name, tt.src)
			if !errors.Is(err, pkg.ErrConfig) {
				t.Fatalf("ParseLua() error = %v, want %v", err, pkg.ErrConfig)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ParseLua() error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestParseTOML_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", "[[device]\n"},
		{"unknown key", "[[device]]\nkind = \"ss80\"\nadress = 3\n"},
		{"address overflow", "[[device]]\nkind = \"ss80\"\naddress = 300\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTOML(tt.name, tt.src); !errors.Is(err, pkg.ErrConfig) {
				t.Errorf("ParseTOML() error = %v, want %v", err, pkg.ErrConfig)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	tests := []struct {
		name    string
		kind    Kind
		address uint8
		model   string
	}{
		{"ss80", KindSS80, 0, "9134L"},
		{"amigo", KindAmigo, 1, "9121D"},
		{"printer", KindPrinter, 2, ""},
	}
	for _, tt := range tests {
		d, ok := c.Device(tt.name)
		if !ok {
			t.Errorf("Device(%q) missing", tt.name)
			continue
		}
		if d.Kind != tt.kind || d.Address != tt.address || d.Model != tt.model {
			t.Errorf("Device(%q) = %+v, want kind %s address %d model %q",
				tt.name, d, tt.kind, tt.address, tt.model)
		}
	}
	if got := c.Timeout(); got != bus.DefaultTimeout {
		t.Errorf("Timeout() = %v, want %v", got, bus.DefaultTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no devices", func(c *Config) { c.Devices = nil }, "no devices"},
		{"negative debug", func(c *Config) { c.Debug = -1 }, "debug"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log format"},
		{"address range", func(c *Config) { c.Devices[0].Address = 31 }, "out of range"},
		{"duplicate address", func(c *Config) { c.Devices[2].Address = 1 }, "already used"},
		{"duplicate name", func(c *Config) { c.Devices[1].Name = "ss80" }, "duplicate device name"},
		{"ppr range", func(c *Config) { c.Devices[1].PPR = 8 }, "ppr bit 8"},
		{"duplicate ppr", func(c *Config) { c.Devices[1].PPR = 0 }, "ppr bit 0 already used"},
		{"printer ppr ignored", func(c *Config) { c.Devices[2].PPR = 0 }, ""},
		{"unknown model", func(c *Config) { c.Devices[0].Model = "7945" }, "unknown model"},
		{"unknown kind", func(c *Config) { c.Devices[2].Kind = "tape" }, "unknown kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, pkg.ErrConfig) {
				t.Fatalf("Validate() = %v, want %v", err, pkg.ErrConfig)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestNormalizeNames(t *testing.T) {
	c, err := ParseLua("names", `amigo { address = 1, ppr = 1 } amigo { address = 2, ppr = 2 }`)
	if err != nil {
		t.Fatalf("ParseLua() error = %v", err)
	}
	var names []string
	for _, d := range c.Devices {
		names = append(names, d.Name)
	}
	if diff := cmp.Diff([]string{"amigo", "amigo2"}, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"lua", write("hpdisk.lua", luaConfig), false},
		{"toml", write("hpdisk.TOML", tomlConfig), false},
		{"unknown extension", write("hpdisk.ini", "debug=1"), true},
		{"invalid", write("bad.lua", `ss80 { address = 0 } amigo { address = 0, ppr = 1 }`), true},
		{"missing", filepath.Join(dir, "missing.lua"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && len(c.Devices) != 3 {
				t.Errorf("Load() devices = %d, want 3", len(c.Devices))
			}
		})
	}
}

func TestWriteTOML(t *testing.T) {
	var sb strings.Builder
	if err := parsedConfig.WriteTOML(&sb); err != nil {
		t.Fatalf("WriteTOML() error = %v", err)
	}
	got, err := ParseTOML("written", sb.String())
	if err != nil {
		t.Fatalf("ParseTOML() error = %v\n%s", err, sb.String())
	}
	if diff := cmp.Diff(parsedConfig, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLogging(t *testing.T) {
	original := pkg.GetLogLevel()
	defer pkg.SetLogLevel(original)
	defer pkg.SetLogFormat(pkg.LogFormatText)

	c := &Config{Debug: 1, LogFormat: LogFormatJSON}
	c.ApplyLogging()
	if got := pkg.GetLogLevel(); got != slog.LevelInfo {
		t.Errorf("GetLogLevel() = %v, want %v", got, slog.LevelInfo)
	}
	if got := (&Config{TimeoutMS: 20}).Timeout(); got != 20*time.Millisecond {
		t.Errorf("Timeout() = %v, want 20ms", got)
	}
}
