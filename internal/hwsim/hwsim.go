// Package hwsim is the host-side stand-in for the hardware this module
// would otherwise run on: a software ATA controller, a no-op PIC command
// port, an in-memory PCI configuration space, and a map-backed e1000
// MMIO window. It promotes the per-package test fakes (ata_test.go's
// fakeController, pci_test.go's fakeConfigSpace, e1000_test.go's
// fakeMMIO) into a single runnable backend cmd/kernelctl can boot
// against without real hardware, the same role gokvm's kvm.Hypervisor
// plays for a real vCPU versus a unit test's in-memory registers.
package hwsim

import "github.com/hobbyos-go/kernelcore/internal/ata"

// Disk is one software drive: a flat slice of fixed-size sectors backed
// by whatever bytes the caller loaded from a disk image file.
type Disk struct {
	sectors [][ata.SectorSize]byte
}

// NewDisk allocates an all-zero disk of the given sector count.
func NewDisk(sectorCount int) *Disk {
	return &Disk{sectors: make([][ata.SectorSize]byte, sectorCount)}
}

// NewDiskFromBytes loads data into sectors, padding the final partial
// sector with zeroes.
func NewDiskFromBytes(data []byte) *Disk {
	n := (len(data) + ata.SectorSize - 1) / ata.SectorSize
	if n == 0 {
		n = 1
	}

	d := NewDisk(n)
	for i := range data {
		d.sectors[i/ata.SectorSize][i%ata.SectorSize] = data[i]
	}

	return d
}

// Bytes flattens the disk back into a single slice, for writing a
// modified image back to a file.
func (d *Disk) Bytes() []byte {
	out := make([]byte, len(d.sectors)*ata.SectorSize)
	for i, s := range d.sectors {
		copy(out[i*ata.SectorSize:], s[:])
	}

	return out
}

// ReadBlock/WriteBlock/BlockSize let a Disk stand in directly as a
// blockdev.Device, for tools (fsck) that want whole-disk access without
// going through the simulated ATA PIO protocol.
func (d *Disk) ReadBlock(blockNum uint32, buf []byte) error {
	copy(buf, d.sectors[blockNum][:])
	return nil
}

func (d *Disk) WriteBlock(blockNum uint32, buf []byte) error {
	copy(d.sectors[blockNum][:], buf)
	return nil
}

func (d *Disk) BlockSize() int { return ata.SectorSize }

// ATAController implements ata.PortIO over up to two Disks (master,
// follower), reproducing the PIO register protocol ata_test.go's
// fakeController exercises: select/LBA/count registers, the 0x20/0x30/
// 0xE7/0xEC command set, and 16-bit data-port bursts.
type ATAController struct {
	ioBase     uint16
	drives     [2]*Disk
	drive      uint8
	lba        uint32
	count      uint8
	dataCursor int
	status     byte
}

// NewATAController wires master and follower disks (either may be nil
// for an absent drive) onto the given IOBase window.
func NewATAController(ioBase uint16, master, follower *Disk) *ATAController {
	return &ATAController{ioBase: ioBase, drives: [2]*Disk{master, follower}, status: 0x50}
}

func (c *ATAController) Out8(port uint16, v uint8) {
	switch port - c.ioBase {
	case 6:
		c.drive = (v >> 4) & 1
		c.lba = (c.lba &^ 0x0F000000) | uint32(v&0x0F)<<24
	case 2:
		c.count = v
	case 3:
		c.lba = (c.lba &^ 0xFF) | uint32(v)
	case 4:
		c.lba = (c.lba &^ 0xFF00) | uint32(v)<<8
	case 5:
		c.lba = (c.lba &^ 0xFF0000) | uint32(v)<<16
	case 7:
		c.handleCommand(v)
	}
}

func (c *ATAController) handleCommand(cmd uint8) {
	switch cmd {
	case 0x20, 0x30, 0xEC:
		c.dataCursor = 0
		c.status = 0x08 // DRQ
	case 0xE7:
		c.status = 0x50
	}
}

func (c *ATAController) disk() *Disk { return c.drives[c.drive] }

func (c *ATAController) In8(port uint16) uint8 {
	if port-c.ioBase != 7 {
		return 0
	}

	if c.disk() == nil {
		return 0xFF
	}

	return c.status
}

func (c *ATAController) In16(port uint16) uint16 {
	if port != c.ioBase || c.disk() == nil {
		return 0
	}

	d := c.disk()
	sec := int(c.lba) + c.dataCursor/ata.SectorSize
	off := c.dataCursor % ata.SectorSize
	v := uint16(d.sectors[sec][off]) | uint16(d.sectors[sec][off+1])<<8
	c.dataCursor += 2

	if c.dataCursor >= int(c.count)*ata.SectorSize {
		c.status = 0x50
	}

	return v
}

func (c *ATAController) Out16(port uint16, v uint16) {
	if port != c.ioBase || c.disk() == nil {
		return
	}

	d := c.disk()
	sec := int(c.lba) + c.dataCursor/ata.SectorSize
	off := c.dataCursor % ata.SectorSize
	d.sectors[sec][off] = byte(v)
	d.sectors[sec][off+1] = byte(v >> 8)
	c.dataCursor += 2

	if c.dataCursor >= int(c.count)*ata.SectorSize {
		c.status = 0x50
	}
}

// PIC is a no-op legacy 8259 pair: it accepts RemapPIC's ICW sequence
// and EOI writes without modeling real IRQ latching, enough to let
// interrupts.Table.Install/RemapPIC run during simulated bring-up.
type PIC struct {
	regs map[uint16]uint8
}

func NewPIC() *PIC { return &PIC{regs: map[uint16]uint8{}} }

func (p *PIC) Out8(port uint16, v uint8) { p.regs[port] = v }
func (p *PIC) In8(port uint16) uint8     { return p.regs[port] }

// ConfigSpace is an in-memory (bus, dev, fn, offset) -> uint32 table
// implementing pci.ConfigSpace, promoted from pci_test.go's
// fakeConfigSpace so cmd/kernelctl can enumerate a simulated bus rather
// than only a unit test doing so.
type ConfigSpace struct {
	regs map[[4]uint8]uint32
}

func NewConfigSpace() *ConfigSpace { return &ConfigSpace{regs: map[[4]uint8]uint32{}} }

func key(bus, dev, fn, offset uint8) [4]uint8 { return [4]uint8{bus, dev, fn, offset} }

func (c *ConfigSpace) Read32(bus, dev, fn, offset uint8) uint32 {
	if v, ok := c.regs[key(bus, dev, fn, offset)]; ok {
		return v
	}

	if offset == 0x00 {
		return 0xFFFFFFFF
	}

	return 0
}

func (c *ConfigSpace) Write32(bus, dev, fn, offset uint8, v uint32) {
	c.regs[key(bus, dev, fn, offset)] = v
}

// AddDevice seeds vendor/device/class/subclass at (bus,dev,fn), the same
// minimal device record pci_test.go's putDevice writes.
func (c *ConfigSpace) AddDevice(bus, dev, fn uint8, vendor, device uint16, class, subclass uint8) {
	c.regs[key(bus, dev, fn, 0x00)] = uint32(vendor) | uint32(device)<<16
	c.regs[key(bus, dev, fn, 0x08)] = uint32(class)<<24 | uint32(subclass)<<16
}

// MMIO is a map-backed e1000 register file implementing e1000.MMIO,
// promoted from e1000_test.go's fakeMMIO: CTRL.RST self-clears on write
// and STATUS starts link-up, simulating instant hardware reset
// completion and a connected cable.
type MMIO struct {
	regs map[uint32]uint32
}

// NewMMIO returns a register file with the link-up bit preset in STATUS
// (offset 0x0008, bit 1).
func NewMMIO() *MMIO {
	return &MMIO{regs: map[uint32]uint32{0x0008: 1 << 1}}
}

func (m *MMIO) Read32(offset uint32) uint32 { return m.regs[offset] }

func (m *MMIO) Write32(offset uint32, v uint32) {
	if offset == 0x0000 { // CTRL
		v &^= 1 << 26 // RST self-clears
	}

	m.regs[offset] = v
}
