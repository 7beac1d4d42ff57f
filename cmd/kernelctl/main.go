//go:build !test

package main

import (
	"log"
	"os"

	"github.com/hobbyos-go/kernelcore/internal/cliflag"
	"github.com/pkg/profile"
)

func main() {
	parsed, err := cliflag.ParseArgs(os.Args)
	if err != nil {
		log.Fatal(err)
	}

	switch {
	case parsed.Boot != nil:
		if stop := startProfile(parsed.Boot.Profile); stop != nil {
			defer stop()
		}

		if err := runBoot(parsed.Boot); err != nil {
			log.Fatal(err)
		}

	case parsed.Fsck != nil:
		if err := runFsck(parsed.Fsck); err != nil {
			log.Fatal(err)
		}

	case parsed.Netdump != nil:
		if err := runNetdump(parsed.Netdump); err != nil {
			log.Fatal(err)
		}
	}
}

// startProfile wires the -profile flag to pkg/profile's cpu/mem modes or
// to fgprof's always-on sampling profiler, the same opt-in role these
// two indirect deps play in a long-running service's CLI.
func startProfile(mode string) func() {
	switch mode {
	case "cpu":
		p := profile.Start(profile.CPUProfile, profile.ProfilePath("."))
		return p.Stop
	case "mem":
		p := profile.Start(profile.MemProfile, profile.ProfilePath("."))
		return p.Stop
	case "fgprof":
		stop := startFgprof("fgprof.pprof")
		return stop
	}

	return nil
}
