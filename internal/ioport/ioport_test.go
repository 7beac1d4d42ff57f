package ioport_test

import (
	"testing"

	"github.com/hobbyos-go/kernelcore/internal/ioport"
)

type regDevice struct {
	start, end uint16
	val        byte
}

func (r *regDevice) In(port uint16) byte   { return r.val }
func (r *regDevice) Out(port uint16, v byte) { r.val = v }
func (r *regDevice) Ports() (uint16, uint16) { return r.start, r.end }

func TestRegisterAndRouteByteAccess(t *testing.T) {
	t.Parallel()

	var bus ioport.Bus
	pic := &regDevice{start: 0x20, end: 0x21}

	if err := bus.Register(pic); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := bus.Out(0x20, 0x42); err != nil {
		t.Fatalf("Out: %v", err)
	}

	got, err := bus.In(0x20)
	if err != nil || got != 0x42 {
		t.Fatalf("In = %#x,%v want 0x42,nil", got, err)
	}
}

func TestOverlappingRegistrationRejected(t *testing.T) {
	t.Parallel()

	var bus ioport.Bus

	if err := bus.Register(&regDevice{start: 0x1F0, end: 0x1F7}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := bus.Register(&regDevice{start: 0x1F5, end: 0x1FF}); err != ioport.ErrPortConflict {
		t.Fatalf("overlapping Register = %v, want ErrPortConflict", err)
	}
}

func TestUnregisteredPortFails(t *testing.T) {
	t.Parallel()

	var bus ioport.Bus

	if _, err := bus.In(0x9999); err != ioport.ErrNoDevice {
		t.Fatalf("In unregistered port = %v, want ErrNoDevice", err)
	}
}
