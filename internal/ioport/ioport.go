// Package ioport adapts the teacher's generic port-IO device contract
// (device.IODevice in device/device.go) to this module's fixed port
// map (§6: 0x1F0/0x3F6 ATA primary, 0x170/0x376 ATA secondary, 0x20/0x21
// PIC master, 0xA0/0xA1 PIC follower, 0x60/0x64 PS/2, 0xCF8/0xCFC PCI
// config): a Bus dispatches single-byte in/out calls to whichever
// registered Device claims that port.
package ioport

import "errors"

var (
	ErrNoDevice     = errors.New("ioport: no device registered at that port")
	ErrPortConflict = errors.New("ioport: port already claimed")
)

// Device is a single port-mapped peripheral; unlike the teacher's
// byte-slice Read/Write, register access here is single-byte since
// every consumer in this module (PIC, ATA task-file, PCI config
// address/data, PS/2) is a byte-wide port interface.
type Device interface {
	In(port uint16) byte
	Out(port uint16, v byte)
	Ports() (start, end uint16)
}

// Bus routes byte-wide port accesses to the device claiming that
// address, the way a real chipset's address decoder would.
type Bus struct {
	devices []Device
}

// Register claims [start,end] for d, rejecting overlap with an already
// registered device.
func (b *Bus) Register(d Device) error {
	start, end := d.Ports()

	for _, existing := range b.devices {
		es, ee := existing.Ports()
		if start <= ee && es <= end {
			return ErrPortConflict
		}
	}

	b.devices = append(b.devices, d)

	return nil
}

func (b *Bus) find(port uint16) (Device, bool) {
	for _, d := range b.devices {
		start, end := d.Ports()
		if port >= start && port <= end {
			return d, true
		}
	}

	return nil, false
}

func (b *Bus) In(port uint16) (byte, error) {
	d, ok := b.find(port)
	if !ok {
		return 0, ErrNoDevice
	}

	return d.In(port), nil
}

func (b *Bus) Out(port uint16, v byte) error {
	d, ok := b.find(port)
	if !ok {
		return ErrNoDevice
	}

	d.Out(port, v)

	return nil
}
