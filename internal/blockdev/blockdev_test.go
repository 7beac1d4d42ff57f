package blockdev_test

import (
	"testing"

	"github.com/hobbyos-go/kernelcore/internal/blockdev"
	"github.com/hobbyos-go/kernelcore/internal/partition"
)

type memDevice struct {
	blocks [][blockdev.BlockSize]byte
}

func newMemDevice(n int) *memDevice {
	return &memDevice{blocks: make([][blockdev.BlockSize]byte, n)}
}

func (m *memDevice) ReadBlock(n uint32, buf []byte) error {
	copy(buf, m.blocks[n][:])
	return nil
}

func (m *memDevice) WriteBlock(n uint32, buf []byte) error {
	copy(m.blocks[n][:], buf)
	return nil
}

func (m *memDevice) BlockSize() int { return blockdev.BlockSize }

func TestPartitionBlockDeviceTranslatesOffset(t *testing.T) {
	t.Parallel()

	inner := newMemDevice(100)
	pbd := &blockdev.PartitionBlockDevice{
		Inner:     inner,
		Partition: partition.Descriptor{LBAStart: 20, SectorCount: 10},
	}

	data := make([]byte, blockdev.BlockSize)
	data[0] = 0x42

	if err := pbd.WriteBlock(3, data); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	if inner.blocks[23][0] != 0x42 {
		t.Fatalf("expected write to land at absolute LBA 23, inner.blocks[23][0] = %#x", inner.blocks[23][0])
	}
}

func TestPartitionBlockDeviceRejectsOutOfBounds(t *testing.T) {
	t.Parallel()

	inner := newMemDevice(100)
	pbd := &blockdev.PartitionBlockDevice{
		Inner:     inner,
		Partition: partition.Descriptor{LBAStart: 20, SectorCount: 10},
	}

	buf := make([]byte, blockdev.BlockSize)
	for _, n := range []uint32{10, 11, 1000} {
		if err := pbd.ReadBlock(n, buf); err != blockdev.ErrOutOfBounds {
			t.Fatalf("ReadBlock(%d) = %v, want ErrOutOfBounds", n, err)
		}
	}
}
