// Package bootcfg parses the static kernel.toml bring-up manifest that
// stands in for the four boot-contract globals a real Multiboot2 loader
// would hand the kernel (framebuffer geometry, total physical memory)
// plus the disk and NIC parameters a real bootloader has no concept of
// at all. Parsed with BurntSushi/toml the way a real config-driven
// service would, rather than hand-rolling a line parser.
package bootcfg

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
)

var ErrBitsPerPixel = errors.New("bootcfg: bits_per_pixel must be 32")

// Framebuffer mirrors the boot-contract globals framebuffer_address,
// screen_width, screen_height, pitch, bits_per_pixel (§6).
type Framebuffer struct {
	Address      uint64 `toml:"framebuffer_address"`
	ScreenWidth  int    `toml:"screen_width"`
	ScreenHeight int    `toml:"screen_height"`
	Pitch        int    `toml:"pitch"`
	BitsPerPixel int    `toml:"bits_per_pixel"`
}

// Drive describes one disk image to attach as a block device.
type Drive struct {
	Image string `toml:"image"`
	ID    int    `toml:"id"`
}

// Network describes the simulated e1000's identity and routing config.
type Network struct {
	MAC     string `toml:"mac"`
	IP      string `toml:"ip"`
	Netmask string `toml:"netmask"`
	Gateway string `toml:"gateway"`
}

// Window is one entry of the default window list created at bring-up.
type Window struct {
	Title string `toml:"title"`
	X     int    `toml:"x"`
	Y     int    `toml:"y"`
	W     int    `toml:"w"`
	H     int    `toml:"h"`
}

// Config is the full bring-up manifest.
type Config struct {
	TotalPhysicalMemory uint64        `toml:"total_physical_memory"`
	Framebuffer         Framebuffer   `toml:"framebuffer"`
	Drives              []Drive       `toml:"drive"`
	Network             Network       `toml:"network"`
	Windows             []Window      `toml:"window"`
}

// Load parses path into a Config, validating the one boot-contract
// invariant that is cheap to check up front (§6: bits_per_pixel must be
// 32; everything else is validated by the stage that consumes it).
func Load(path string) (*Config, error) {
	var cfg Config

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("bootcfg: decode %s: %w", path, err)
	}

	if cfg.Framebuffer.BitsPerPixel != 0 && cfg.Framebuffer.BitsPerPixel != 32 {
		return nil, ErrBitsPerPixel
	}

	return &cfg, nil
}

// Default returns a minimal manifest sufficient to boot without a
// kernel.toml on disk, the way gokvm's flag defaults stand in for an
// absent kernel command line.
func Default() *Config {
	return &Config{
		TotalPhysicalMemory: 256 << 20,
		Framebuffer: Framebuffer{
			Address:      0,
			ScreenWidth:  1024,
			ScreenHeight: 768,
			Pitch:        1024 * 4,
			BitsPerPixel: 32,
		},
		Network: Network{
			MAC:     "52:54:00:12:34:56",
			IP:      "192.168.20.2",
			Netmask: "255.255.255.0",
			Gateway: "192.168.20.1",
		},
	}
}
