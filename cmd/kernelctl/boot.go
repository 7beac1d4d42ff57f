//go:build !test

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/hobbyos-go/kernelcore/internal/bootcfg"
	"github.com/hobbyos-go/kernelcore/internal/cliflag"
	"github.com/hobbyos-go/kernelcore/internal/hwsim"
	"github.com/hobbyos-go/kernelcore/internal/kernel"
)

func runBoot(args *cliflag.BootArgs) error {
	cfg, err := loadConfig(args.Config)
	if err != nil {
		return err
	}

	hw := kernel.Hardware{
		IRQPort:   hwsim.NewPIC(),
		PCIConfig: hwsim.NewConfigSpace(),
	}

	if args.Disk != "" {
		data, err := os.ReadFile(args.Disk)
		if err != nil {
			return fmt.Errorf("read disk image: %w", err)
		}

		hw.Primary = hwsim.NewATAController(0x1F0, hwsim.NewDiskFromBytes(data), nil)
	}

	k, err := kernel.Boot(cfg, hw)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	log.Printf("boot complete: %d PCI device(s), %d partition(s), %d window(s)",
		len(k.PCI.Devices), len(k.Partitions), len(k.WM.Windows()))

	return nil
}

// loadConfig reads path if present, else falls back to a minimal
// in-memory manifest so `kernelctl boot` works with no kernel.toml on
// disk, the way gokvm's flag defaults let it boot with no args at all.
func loadConfig(path string) (*bootcfg.Config, error) {
	if _, err := os.Stat(path); err != nil {
		return bootcfg.Default(), nil
	}

	return bootcfg.Load(path)
}
