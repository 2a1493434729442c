package config

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/ardnew/softgpib/pkg"
)

// ParseLua runs src as a configuration script. name labels errors. The
// result is normalized but not validated.
func ParseLua(name, src string) (*Config, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	c := &Config{}
	for _, kind := range []Kind{KindSS80, KindAmigo, KindPrinter} {
		L.SetGlobal(string(kind), L.NewFunction(c.declare(kind)))
	}

	if err := L.DoString(src); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", name, pkg.ErrConfig, err)
	}

	var err error
	if c.Debug, err = globalInt(L, "debug"); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if c.TimeoutMS, err = globalInt(L, "timeout_ms"); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	switch v := L.GetGlobal("log_format").(type) {
	case lua.LString:
		c.LogFormat = string(v)
	case *lua.LNilType:
	default:
		return nil, fmt.Errorf("%s: log_format is a %s: %w", name, v.Type(), pkg.ErrConfig)
	}

	c.normalize()
	return c, nil
}

// declare returns the script constructor for devices of kind. It takes a
// single table argument.
func (c *Config) declare(kind Kind) lua.LGFunction {
	return func(L *lua.LState) int {
		t := L.CheckTable(1)
		d := Device{Kind: kind}
		var bad error
		t.ForEach(func(k, v lua.LValue) {
			if bad != nil {
				return
			}
			bad = d.set(k, v)
		})
		if bad != nil {
			L.ArgError(1, bad.Error())
			return 0
		}
		c.Devices = append(c.Devices, d)
		return 0
	}
}

// set assigns one table field.
func (d *Device) set(k, v lua.LValue) error {
	key, ok := k.(lua.LString)
	if !ok {
		return fmt.Errorf("%s: field key %s is not a name", d.Kind, k.String())
	}
	var err error
	switch key {
	case "name":
		d.Name, err = toString(key, v)
	case "address":
		d.Address, err = toByte(key, v)
	case "ppr":
		d.PPR, err = toByte(key, v)
	case "model":
		d.Model, err = toString(key, v)
	case "image":
		d.Image, err = toString(key, v)
	case "dir":
		d.Dir, err = toString(key, v)
	case "read_only":
		b, ok := v.(lua.LBool)
		if !ok {
			return fmt.Errorf("read_only is a %s, want boolean", v.Type())
		}
		d.ReadOnly = bool(b)
	default:
		return fmt.Errorf("%s: unknown field %q", d.Kind, string(key))
	}
	return err
}

func toString(key lua.LString, v lua.LValue) (string, error) {
	s, ok := v.(lua.LString)
	if !ok {
		return "", fmt.Errorf("%s is a %s, want string", key, v.Type())
	}
	return string(s), nil
}

func toByte(key lua.LString, v lua.LValue) (uint8, error) {
	n, ok := v.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("%s is a %s, want number", key, v.Type())
	}
	f := float64(n)
	if f != math.Trunc(f) || f < 0 || f > math.MaxUint8 {
		return 0, fmt.Errorf("%s = %v is not a small whole number", key, f)
	}
	return uint8(f), nil
}

func globalInt(L *lua.LState, name string) (int, error) {
	switch v := L.GetGlobal(name).(type) {
	case *lua.LNilType:
		return 0, nil
	case lua.LNumber:
		if float64(v) != math.Trunc(float64(v)) {
			return 0, fmt.Errorf("%s = %v is not a whole number: %w", name, float64(v), pkg.ErrConfig)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("%s is a %s: %w", name, v.Type(), pkg.ErrConfig)
	}
}
