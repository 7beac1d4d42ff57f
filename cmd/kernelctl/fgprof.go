//go:build !test

package main

import (
	"log"
	"os"

	"github.com/felixge/fgprof"
)

// startFgprof opens path and starts fgprof's on/off-CPU sampling
// profiler against it, returning a stop func that closes the file.
func startFgprof(path string) func() {
	f, err := os.Create(path)
	if err != nil {
		log.Printf("fgprof: %v", err)
		return func() {}
	}

	stop := fgprof.Start(f, fgprof.FormatPprof)

	return func() {
		if err := stop(); err != nil {
			log.Printf("fgprof stop: %v", err)
		}

		f.Close()
	}
}
