// Package pci enumerates the PCI bus over the legacy configuration
// mechanism #1 ports (0xCF8/0xCFC), mirroring the config-address bit
// layout the teacher's guest-side pci.PCI answers (pci.address's
// getRegisterOffset/getFunctionNumber/getDeviceNumber/getBusNumber), but
// from the host side: we walk a ConfigSpace and build the flat device
// table the component design calls for.
package pci

import "errors"

const (
	ConfigAddressPort = 0xCF8
	ConfigDataPort    = 0xCFC

	MaxDevices = 64

	headerTypeMultiFunction = 0x80
	classBridge             = 0x06
	subclassPCIToPCI        = 0x04
)

var ErrTableFull = errors.New("pci: device table full")

// Device is one enumerated bus/device/function record (§3).
type Device struct {
	Bus, Dev, Func             uint8
	VendorID, DeviceID         uint16
	Class, Subclass, ProgIF    uint8
	Revision, HeaderType       uint8
	InterruptLine, InterruptPin uint8
	BAR                        [6]uint32
}

// ConfigSpace is the (bus, device, function, offset) -> uint32 register
// read interface that a real kernel backs with outl(0xCF8)/inl(0xCFC);
// config writes go through the separate Writer interface.
type ConfigSpace interface {
	Read32(bus, dev, fn uint8, offset uint8) uint32
}

// Table is the flat array of discovered devices (§3: "a flat array of
// ≤ 64 such records").
type Table struct {
	Devices []Device
}

// Enumerate performs the depth-first bus/device/function walk described
// in §4.4: probe function 0 first, skip vendor 0xFFFF, probe functions
// 1-7 when the multi-function bit is set, and recurse into PCI-to-PCI
// bridges via their secondary bus number.
func Enumerate(cs ConfigSpace) (*Table, error) {
	t := &Table{}
	if err := walkBus(cs, 0, t); err != nil {
		return nil, err
	}

	return t, nil
}

func walkBus(cs ConfigSpace, bus uint8, t *Table) error {
	for dev := uint8(0); dev < 32; dev++ {
		reg0 := cs.Read32(bus, dev, 0, 0x00)
		vendor := uint16(reg0 & 0xFFFF)
		if vendor == 0xFFFF {
			continue
		}

		if err := probeFunction(cs, bus, dev, 0, t); err != nil {
			return err
		}

		headerType := uint8((cs.Read32(bus, dev, 0, 0x0C) >> 16) & 0xFF)
		if headerType&headerTypeMultiFunction != 0 {
			for fn := uint8(1); fn < 8; fn++ {
				freg0 := cs.Read32(bus, dev, fn, 0x00)
				if uint16(freg0&0xFFFF) == 0xFFFF {
					continue
				}

				if err := probeFunction(cs, bus, dev, fn, t); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func probeFunction(cs ConfigSpace, bus, dev, fn uint8, t *Table) error {
	if len(t.Devices) >= MaxDevices {
		return ErrTableFull
	}

	d := readDevice(cs, bus, dev, fn)
	t.Devices = append(t.Devices, d)

	if d.Class == classBridge && d.Subclass == subclassPCIToPCI {
		secondaryBus := uint8((cs.Read32(bus, dev, fn, 0x18) >> 8) & 0xFF)
		return walkBus(cs, secondaryBus, t)
	}

	return nil
}

func readDevice(cs ConfigSpace, bus, dev, fn uint8) Device {
	reg0 := cs.Read32(bus, dev, fn, 0x00)
	reg2 := cs.Read32(bus, dev, fn, 0x08)
	reg3 := cs.Read32(bus, dev, fn, 0x0C)
	regF := cs.Read32(bus, dev, fn, 0x3C)

	d := Device{
		Bus: bus, Dev: dev, Func: fn,
		VendorID:   uint16(reg0 & 0xFFFF),
		DeviceID:   uint16(reg0 >> 16),
		Revision:   uint8(reg2 & 0xFF),
		ProgIF:     uint8((reg2 >> 8) & 0xFF),
		Subclass:   uint8((reg2 >> 16) & 0xFF),
		Class:      uint8((reg2 >> 24) & 0xFF),
		HeaderType: uint8((reg3 >> 16) & 0xFF),

		InterruptLine: uint8(regF & 0xFF),
		InterruptPin:  uint8((regF >> 8) & 0xFF),
	}

	for i := 0; i < 6; i++ {
		d.BAR[i] = cs.Read32(bus, dev, fn, uint8(0x10+i*4))
	}

	return d
}

// ByVendorDevice looks up the first record with matching vendor/device.
func (t *Table) ByVendorDevice(vendor, device uint16) (Device, bool) {
	for _, d := range t.Devices {
		if d.VendorID == vendor && d.DeviceID == device {
			return d, true
		}
	}

	return Device{}, false
}

// ByClass looks up the first record with matching class/subclass.
func (t *Table) ByClass(class, subclass uint8) (Device, bool) {
	for _, d := range t.Devices {
		if d.Class == class && d.Subclass == subclass {
			return d, true
		}
	}

	return Device{}, false
}

// BusMastering, memory-space, and I/O-space bits live in the command
// register (offset 0x04).
const (
	cmdIOSpace     = 1 << 0
	cmdMemorySpace = 1 << 1
	cmdBusMaster   = 1 << 2
)

// Writer lets the enable-bit helpers below mutate config space; split
// from ConfigSpace's read-only interface because enumeration never
// writes but the bring-up helpers always do.
type Writer interface {
	Write32(bus, dev, fn uint8, offset uint8, v uint32)
}

func setCommandBit(cs ConfigSpace, w Writer, d Device, bit uint32) {
	cur := cs.Read32(d.Bus, d.Dev, d.Func, 0x04)
	w.Write32(d.Bus, d.Dev, d.Func, 0x04, cur|bit)
}

func EnableBusMastering(cs ConfigSpace, w Writer, d Device) {
	setCommandBit(cs, w, d, cmdBusMaster)
}

func EnableMemorySpace(cs ConfigSpace, w Writer, d Device) {
	setCommandBit(cs, w, d, cmdMemorySpace)
}

func EnableIOSpace(cs ConfigSpace, w Writer, d Device) {
	setCommandBit(cs, w, d, cmdIOSpace)
}

// BARType reports whether a BAR is I/O-space, 32-bit memory, or
// 64-bit memory (in which case the following BAR holds the high dword).
type BARType int

const (
	BARIOSpace BARType = iota
	BARMemory32
	BARMemory64
)

func DecodeBARType(bar uint32) BARType {
	if bar&0x1 != 0 {
		return BARIOSpace
	}

	if (bar>>1)&0x3 == 2 {
		return BARMemory64
	}

	return BARMemory32
}

// DecodeBARAddress returns the full address for BAR index i, reading the
// next BAR for the high 32 bits when i is a 64-bit memory BAR's low half.
func DecodeBARAddress(bars [6]uint32, i int) uint64 {
	bar := bars[i]

	switch DecodeBARType(bar) {
	case BARIOSpace:
		return uint64(bar &^ 0x3)
	case BARMemory64:
		low := uint64(bar &^ 0xF)
		high := uint64(bars[i+1])

		return (high << 32) | low
	default:
		return uint64(bar &^ 0xF)
	}
}
