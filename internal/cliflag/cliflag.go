// Package cliflag parses the kernelctl subcommand line the way
// flag/flag.go parses gokvm's boot/probe subcommands: one flag.FlagSet
// per subcommand, a ParseSize helper for human-readable byte sizes, and
// a top-level switch on args[1].
package cliflag

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnknownSubcommand = errors.New("cliflag: expected 'boot', 'fsck', or 'netdump' subcommand")

// BootArgs configures a simulated bring-up run.
type BootArgs struct {
	Config    string
	MemSize   int
	Disk      string
	TapIfName string
	Profile   string
}

func parseBootArgs(args []string) (*BootArgs, error) {
	bootCmd := flag.NewFlagSet("boot", flag.ExitOnError)
	c := &BootArgs{}

	bootCmd.StringVar(&c.Config, "c", "./kernel.toml", "bring-up manifest path")
	bootCmd.StringVar(&c.Disk, "d", "", "path of disk image backing /dev/sda")
	bootCmd.StringVar(&c.TapIfName, "t", "", "name of tap interface for the simulated NIC (empty disables networking)")
	bootCmd.StringVar(&c.Profile, "profile", "", "enable profiling: cpu, mem, or fgprof")

	msize := bootCmd.String("m", "128M", "heap size: as number[gGmMkK], optional unit")

	var err error

	if err = bootCmd.Parse(args); err != nil {
		return nil, err
	}

	if c.MemSize, err = ParseSize(*msize, "m"); err != nil {
		return nil, err
	}

	return c, nil
}

// FsckArgs configures an offline SimpleFS consistency check.
type FsckArgs struct {
	Disk string
}

func parseFsckArgs(args []string) (*FsckArgs, error) {
	fsckCmd := flag.NewFlagSet("fsck", flag.ExitOnError)
	c := &FsckArgs{}

	fsckCmd.StringVar(&c.Disk, "d", "", "path of disk image to check")

	if err := fsckCmd.Parse(args); err != nil {
		return nil, err
	}

	return c, nil
}

// NetdumpArgs configures a loopback packet trace run.
type NetdumpArgs struct {
	Config string
	Count  int
}

func parseNetdumpArgs(args []string) (*NetdumpArgs, error) {
	netdumpCmd := flag.NewFlagSet("netdump", flag.ExitOnError)
	c := &NetdumpArgs{}

	netdumpCmd.StringVar(&c.Config, "c", "./kernel.toml", "bring-up manifest path")
	netdumpCmd.IntVar(&c.Count, "n", 10, "number of packets to process before exiting")

	if err := netdumpCmd.Parse(args); err != nil {
		return nil, err
	}

	return c, nil
}

// Parsed holds exactly one populated subcommand args struct.
type Parsed struct {
	Boot    *BootArgs
	Fsck    *FsckArgs
	Netdump *NetdumpArgs
}

// ParseArgs dispatches os.Args-shaped input on args[1] the way
// flag.ParseArgs dispatches on "boot"/"probe".
func ParseArgs(args []string) (*Parsed, error) {
	if len(args) < 2 {
		return nil, ErrUnknownSubcommand
	}

	switch args[1] {
	case "boot":
		c, err := parseBootArgs(args[2:])
		if err != nil {
			return nil, err
		}

		return &Parsed{Boot: c}, nil

	case "fsck":
		c, err := parseFsckArgs(args[2:])
		if err != nil {
			return nil, err
		}

		return &Parsed{Fsck: c}, nil

	case "netdump":
		c, err := parseNetdumpArgs(args[2:])
		if err != nil {
			return nil, err
		}

		return &Parsed{Netdump: c}, nil
	}

	return nil, ErrUnknownSubcommand
}

// ParseSize parses a size string as number[gGmMkK]; the multiplier is
// optional and defaults to unit when no suffix is present.
func ParseSize(s, unit string) (int, error) {
	sz := strings.TrimRight(s, "gGmMkK")
	if len(sz) == 0 {
		return -1, fmt.Errorf("%q: can't parse as num[gGmMkK]: %w", s, strconv.ErrSyntax)
	}

	amt, err := strconv.ParseUint(sz, 0, 0)
	if err != nil {
		return -1, err
	}

	if len(s) > len(sz) {
		unit = s[len(sz):]
	}

	switch unit {
	case "G", "g":
		return int(amt) << 30, nil
	case "M", "m":
		return int(amt) << 20, nil
	case "K", "k":
		return int(amt) << 10, nil
	case "":
		return int(amt), nil
	}

	return -1, fmt.Errorf("can not parse %q as num[gGmMkK]: %w", s, strconv.ErrSyntax)
}
