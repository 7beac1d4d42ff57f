package pci_test

import (
	"testing"

	"github.com/hobbyos-go/kernelcore/internal/pci"
)

// fakeConfigSpace is an in-memory (bus,dev,fn,offset) -> uint32 table,
// exactly enough to exercise Enumerate without real I/O ports.
type fakeConfigSpace struct {
	regs map[[4]uint8]uint32
}

func newFakeConfigSpace() *fakeConfigSpace {
	return &fakeConfigSpace{regs: map[[4]uint8]uint32{}}
}

func (f *fakeConfigSpace) key(bus, dev, fn, offset uint8) [4]uint8 {
	return [4]uint8{bus, dev, fn, offset}
}

func (f *fakeConfigSpace) Read32(bus, dev, fn, offset uint8) uint32 {
	if v, ok := f.regs[f.key(bus, dev, fn, offset)]; ok {
		return v
	}

	if offset == 0x00 {
		return 0xFFFFFFFF // no device: vendor 0xFFFF
	}

	return 0
}

func (f *fakeConfigSpace) Write32(bus, dev, fn, offset uint8, v uint32) {
	f.regs[f.key(bus, dev, fn, offset)] = v
}

func (f *fakeConfigSpace) putDevice(bus, dev, fn uint8, vendor, device uint16, class, subclass uint8) {
	f.regs[f.key(bus, dev, fn, 0x00)] = uint32(vendor) | uint32(device)<<16
	f.regs[f.key(bus, dev, fn, 0x08)] = uint32(class)<<24 | uint32(subclass)<<16
}

func TestEnumerateFindsSingleFunctionDevice(t *testing.T) {
	t.Parallel()

	cs := newFakeConfigSpace()
	cs.putDevice(0, 3, 0, 0x8086, 0x100E, 0x02, 0x00) // e1000-ish NIC

	tbl, err := pci.Enumerate(cs)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}

	d, ok := tbl.ByVendorDevice(0x8086, 0x100E)
	if !ok {
		t.Fatalf("expected to find vendor/device 8086:100E")
	}
	if d.Bus != 0 || d.Dev != 3 || d.Func != 0 {
		t.Fatalf("unexpected location: %+v", d)
	}
}

func TestEnumerateRecursesThroughBridge(t *testing.T) {
	t.Parallel()

	cs := newFakeConfigSpace()
	cs.putDevice(0, 1, 0, 0x8086, 0x2, classBridgeConst, subclassPCIToPCIConst)
	cs.Write32(0, 1, 0, 0x18, uint32(5)<<8) // secondary bus = 5
	cs.putDevice(5, 2, 0, 0x1AF4, 0x1000, 0x02, 0x00)

	tbl, err := pci.Enumerate(cs)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}

	d, ok := tbl.ByVendorDevice(0x1AF4, 0x1000)
	if !ok {
		t.Fatalf("expected to find the device behind the bridge")
	}
	if d.Bus != 5 {
		t.Fatalf("device bus = %d, want 5", d.Bus)
	}
}

const (
	classBridgeConst       = 0x06
	subclassPCIToPCIConst  = 0x04
)

func TestDecodeBARAddress64Bit(t *testing.T) {
	t.Parallel()

	bars := [6]uint32{0x1000_0004, 0x0000_0001, 0, 0, 0, 0}
	addr := pci.DecodeBARAddress(bars, 0)

	if pci.DecodeBARType(bars[0]) != pci.BARMemory64 {
		t.Fatalf("expected BARMemory64")
	}

	if addr>>32 != 1 {
		t.Fatalf("addr high dword = %#x, want 1", addr>>32)
	}
}

func TestDecodeBARAddressIOSpace(t *testing.T) {
	t.Parallel()

	bars := [6]uint32{0x0000_C001, 0, 0, 0, 0, 0}
	if pci.DecodeBARType(bars[0]) != pci.BARIOSpace {
		t.Fatalf("expected BARIOSpace")
	}

	if got := pci.DecodeBARAddress(bars, 0); got != 0xC000 {
		t.Fatalf("DecodeBARAddress = %#x, want 0xC000", got)
	}
}
