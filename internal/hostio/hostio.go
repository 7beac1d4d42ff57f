// Package hostio provides the mmap-backed physical-memory region that
// every other package treats as "physical RAM" or "the framebuffer":
// one syscall.Mmap'd, anonymous, page-aligned []byte, with an explicit
// free step. Adapted from memory.Memory/MemorySlot (memory/memory.go),
// generalized from a table of KVM-backed guest-RAM slots down to the
// single host-backed region this module's single address space needs.
package hostio

import (
	"errors"

	"golang.org/x/sys/unix"
)

var ErrAlreadyFreed = errors.New("hostio: region already freed")

// Region is one anonymous mmap'd span of host memory.
type Region struct {
	Buf  []byte
	freed bool
}

// NewRegion mmaps size bytes of anonymous, read/write memory (standing
// in for the physical RAM or framebuffer the bootloader would otherwise
// hand the kernel).
func NewRegion(size int) (*Region, error) {
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}

	return &Region{Buf: buf}, nil
}

// Free unmaps the region; subsequent use of Buf is invalid.
func (r *Region) Free() error {
	if r.freed {
		return ErrAlreadyFreed
	}

	if err := unix.Munmap(r.Buf); err != nil {
		return err
	}

	r.freed = true
	r.Buf = nil

	return nil
}
