package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ardnew/softgpib/pkg"
)

// ParseTOML decodes src as a TOML configuration. name labels errors. Keys
// the configuration does not define are rejected. The result is
// normalized but not validated.
func ParseTOML(name, src string) (*Config, error) {
	c := &Config{}
	md, err := toml.Decode(src, c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", name, pkg.ErrConfig, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys %s: %w", name, strings.Join(keys, ", "), pkg.ErrConfig)
	}
	c.normalize()
	return c, nil
}

// WriteTOML renders c as TOML.
func (c *Config) WriteTOML(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
