// SPDX-License-Identifier: Unlicense OR MIT

package loader

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"eliasnaur.com/efiboot/bootinfo"
)

// ConfigPath is the location of the optional configuration file on
// the loader's volume.
const ConfigPath = `boot\loader.toml`

// Config is the loader configuration, read from ConfigPath.
type Config struct {
	// Kernel is the path of the kernel ELF image.
	Kernel string `toml:"kernel"`
	// Initial is the path of the optional initial image.
	Initial  string         `toml:"initial"`
	Graphics GraphicsConfig `toml:"graphics"`
	Debug    DebugConfig    `toml:"debug"`
}

type GraphicsConfig struct {
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	// RequireFramebuffer makes a missing linear framebuffer fatal.
	RequireFramebuffer bool `toml:"require_framebuffer"`
}

// DebugConfig is passed to the kernel and, when enabled, mirrors the
// loader log to the serial port.
type DebugConfig struct {
	Enabled     bool   `toml:"enabled"`
	Port        uint16 `toml:"port"`
	BaudDivisor uint16 `toml:"baud_divisor"`
}

func DefaultConfig() Config {
	return Config{
		Kernel:  `boot\system\kernel`,
		Initial: `boot\initial`,
		Graphics: GraphicsConfig{
			Width:              1280,
			Height:             720,
			RequireFramebuffer: true,
		},
		Debug: DebugConfig{
			Port:        bootinfo.DefaultDebugPort,
			BaudDivisor: bootinfo.DefaultDebugBaudDivisor,
		},
	}
}

// ParseConfig decodes a configuration file. Missing keys keep their
// defaults; unknown keys are an error.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("loader: %s: %w", ConfigPath, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("loader: %s: unknown keys %s", ConfigPath, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the loader cannot use.
func (c *Config) Validate() error {
	switch {
	case c.Kernel == "":
		return fmt.Errorf("loader: %s: empty kernel path", ConfigPath)
	case c.Graphics.Width == 0 || c.Graphics.Height == 0:
		return fmt.Errorf("loader: %s: invalid resolution %dx%d", ConfigPath, c.Graphics.Width, c.Graphics.Height)
	case c.Debug.Enabled && c.Debug.BaudDivisor == 0:
		return fmt.Errorf("loader: %s: zero baud divisor", ConfigPath)
	}
	return nil
}

// Encode writes c in the configuration file format.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

func (d DebugConfig) bootinfo() bootinfo.DebugConfig {
	return bootinfo.DebugConfig{
		Enabled:     d.Enabled,
		Port:        d.Port,
		BaudDivisor: d.BaudDivisor,
	}
}
