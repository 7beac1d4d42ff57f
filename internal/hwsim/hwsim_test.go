package hwsim_test

import (
	"testing"

	"github.com/hobbyos-go/kernelcore/internal/ata"
	"github.com/hobbyos-go/kernelcore/internal/e1000"
	"github.com/hobbyos-go/kernelcore/internal/hwsim"
	"github.com/hobbyos-go/kernelcore/internal/pci"
)

func TestATAControllerWriteThenReadRoundTrip(t *testing.T) {
	t.Parallel()

	disk := hwsim.NewDisk(8)
	ctrl := hwsim.NewATAController(0x1F0, disk, nil)
	ch := ata.NewChannel(ata.Ports{IOBase: 0x1F0, ControlBase: 0x3F6, IRQ: 14}, ctrl)

	want := make([]byte, ata.SectorSize)
	copy(want, []byte("hwsim round trip"))

	if err := ch.WriteSectors(0, 1, 1, want); err != nil {
		t.Fatalf("WriteSectors: %v", err)
	}

	got := make([]byte, ata.SectorSize)
	if err := ch.ReadSectors(0, 1, 1, got); err != nil {
		t.Fatalf("ReadSectors: %v", err)
	}

	if string(got) != string(want) {
		t.Fatalf("round trip mismatch")
	}
}

func TestConfigSpaceEnumeratesSeededDevice(t *testing.T) {
	t.Parallel()

	cs := hwsim.NewConfigSpace()
	cs.AddDevice(0, 3, 0, 0x8086, 0x100E, 0x02, 0x00)

	tbl, err := pci.Enumerate(cs)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}

	if _, ok := tbl.ByVendorDevice(0x8086, 0x100E); !ok {
		t.Fatalf("expected seeded device to be found")
	}
}

func TestMMIOSupportsE1000Init(t *testing.T) {
	t.Parallel()

	mmio := hwsim.NewMMIO()

	dev, err := e1000.Init(mmio, [3]uint16{1, 2, 3})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if !dev.LinkUp() {
		t.Fatalf("expected link up")
	}
}
