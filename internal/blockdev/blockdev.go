// Package blockdev provides the uniform block-device abstraction (§3,
// §4.5): an explicit two-operation capability, ReadBlock/WriteBlock, over
// a fixed 512-byte block size, with two concrete variants — a raw ATA
// drive and a partition-offset adapter. Grounded on virtio.Blk
// (virtio/blk.go), whose device-header + offset-forwarding shape is the
// template for PartitionBlockDevice's LBA-offset translation.
package blockdev

import (
	"errors"

	"github.com/hobbyos-go/kernelcore/internal/ata"
	"github.com/hobbyos-go/kernelcore/internal/partition"
)

const BlockSize = ata.SectorSize

var ErrOutOfBounds = errors.New("blockdev: block number out of range")

// Device is the two-operation capability every block device exposes.
type Device interface {
	ReadBlock(blockNum uint32, buf []byte) error
	WriteBlock(blockNum uint32, buf []byte) error
	BlockSize() int
}

// ATABlockDevice forwards directly to an ATA channel/drive pair.
type ATABlockDevice struct {
	Channel *ata.Channel
	Drive   uint8
}

func (a *ATABlockDevice) ReadBlock(blockNum uint32, buf []byte) error {
	return a.Channel.ReadSectors(a.Drive, blockNum, 1, buf)
}

func (a *ATABlockDevice) WriteBlock(blockNum uint32, buf []byte) error {
	return a.Channel.WriteSectors(a.Drive, blockNum, 1, buf)
}

func (a *ATABlockDevice) BlockSize() int { return BlockSize }

// PartitionBlockDevice wraps an inner Device and a partition descriptor,
// rejecting any access at or beyond the partition's sector count and
// translating block numbers to absolute LBA (I-B1).
type PartitionBlockDevice struct {
	Inner     Device
	Partition partition.Descriptor
}

func (p *PartitionBlockDevice) ReadBlock(blockNum uint32, buf []byte) error {
	if blockNum >= p.Partition.SectorCount {
		return ErrOutOfBounds
	}

	return p.Inner.ReadBlock(p.Partition.LBAStart+blockNum, buf)
}

func (p *PartitionBlockDevice) WriteBlock(blockNum uint32, buf []byte) error {
	if blockNum >= p.Partition.SectorCount {
		return ErrOutOfBounds
	}

	return p.Inner.WriteBlock(p.Partition.LBAStart+blockNum, buf)
}

func (p *PartitionBlockDevice) BlockSize() int { return BlockSize }
