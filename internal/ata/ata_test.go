package ata_test

import (
	"testing"

	"github.com/hobbyos-go/kernelcore/internal/ata"
)

// fakeController is a minimal software ATA device sitting behind the
// Ports.IOBase window, enough to exercise the PIO protocol's read/write
// and floating-bus ("no drive") semantics.
type fakeController struct {
	noDrive    bool
	disk       [][ata.SectorSize]byte // one drive's sectors
	drive      uint8
	lba        uint32
	count      uint8
	dataCursor int
	pending    []byte // bytes staged for the next In16/Out16 burst
	status     byte
}

func newFakeController(sectors int) *fakeController {
	return &fakeController{disk: make([][ata.SectorSize]byte, sectors), status: 0x50}
}

const (
	ioBase = 0x1F0
)

func (f *fakeController) Out8(port uint16, v uint8) {
	switch port - ioBase {
	case 6:
		f.drive = (v >> 4) & 1
		f.lba = (f.lba &^ 0x0F000000) | uint32(v&0x0F)<<24
	case 2:
		f.count = v
	case 3:
		f.lba = (f.lba &^ 0xFF) | uint32(v)
	case 4:
		f.lba = (f.lba &^ 0xFF00) | uint32(v)<<8
	case 5:
		f.lba = (f.lba &^ 0xFF0000) | uint32(v)<<16
	case 7:
		f.handleCommand(v)
	}
}

func (f *fakeController) handleCommand(cmd uint8) {
	switch cmd {
	case 0x20: // read
		f.dataCursor = 0
		f.status = 0x08 // DRQ
	case 0x30: // write
		f.dataCursor = 0
		f.status = 0x08
	case 0xE7: // cache flush
		f.status = 0x50
	case 0xEC: // identify
		f.dataCursor = 0
		f.status = 0x08
	}
}

func (f *fakeController) In8(port uint16) uint8 {
	switch port - ioBase {
	case 7:
		if f.noDrive {
			return 0xFF
		}

		return f.status
	}

	return 0
}

func (f *fakeController) In16(port uint16) uint16 {
	if port-ioBase != 0 {
		return 0
	}

	sec := int(f.lba) + f.dataCursor/ata.SectorSize
	off := f.dataCursor % ata.SectorSize
	v := uint16(f.disk[sec][off]) | uint16(f.disk[sec][off+1])<<8
	f.dataCursor += 2

	if f.dataCursor >= int(f.count)*ata.SectorSize {
		f.status = 0x50
	}

	return v
}

func (f *fakeController) Out16(port uint16, v uint16) {
	if port-ioBase != 0 {
		return
	}

	sec := int(f.lba) + f.dataCursor/ata.SectorSize
	off := f.dataCursor % ata.SectorSize
	f.disk[sec][off] = byte(v)
	f.disk[sec][off+1] = byte(v >> 8)
	f.dataCursor += 2

	if f.dataCursor >= int(f.count)*ata.SectorSize {
		f.status = 0x50
	}
}

func TestWriteThenReadSectorsRoundTrip(t *testing.T) {
	t.Parallel()

	fc := newFakeController(8)
	ch := ata.NewChannel(ata.Ports{IOBase: ioBase, ControlBase: 0x3F6, IRQ: 14}, fc)

	want := make([]byte, ata.SectorSize*2)
	copy(want, []byte("hello sector data"))
	copy(want[ata.SectorSize:], []byte("second sector"))

	if err := ch.WriteSectors(0, 3, 2, want); err != nil {
		t.Fatalf("WriteSectors: %v", err)
	}

	got := make([]byte, ata.SectorSize*2)
	if err := ch.ReadSectors(0, 3, 2, got); err != nil {
		t.Fatalf("ReadSectors: %v", err)
	}

	if string(got) != string(want) {
		t.Fatalf("round trip mismatch")
	}
}

func TestNoDriveFailsWithoutSideEffects(t *testing.T) {
	t.Parallel()

	fc := newFakeController(8)
	fc.noDrive = true
	ch := ata.NewChannel(ata.Ports{IOBase: ioBase, ControlBase: 0x3F6, IRQ: 14}, fc)

	buf := make([]byte, ata.SectorSize)
	if err := ch.ReadSectors(0, 0, 1, buf); err != ata.ErrNoDrive {
		t.Fatalf("ReadSectors on absent drive = %v, want ErrNoDrive", err)
	}
}

func TestIdentifyReportsLBA48AndSectorCounts(t *testing.T) {
	t.Parallel()

	fc := newFakeController(1)
	// Pre-seed what IDENTIFY would return: word 83 bit 10 set, words
	// 100-103 carrying a total sector count.
	buf := fc.disk[0][:]
	buf[83*2] = 0x00
	buf[83*2+1] = 0x04 // bit 10 of word83 set (0x0400)
	buf[100*2] = 0xE8
	buf[100*2+1] = 0x03 // 1000 as a little-endian u64, low bytes only

	ch := ata.NewChannel(ata.Ports{IOBase: ioBase, ControlBase: 0x3F6, IRQ: 14}, fc)

	out := make([]byte, ata.SectorSize)
	if err := ch.Identify(0, out); err != nil {
		t.Fatalf("Identify: %v", err)
	}

	if !ata.SupportsLBA48(out) {
		t.Fatalf("expected LBA48 support bit set")
	}

	if got := ata.TotalSectorsLBA48(out); got != 1000 {
		t.Fatalf("TotalSectorsLBA48 = %d, want 1000", got)
	}
}
