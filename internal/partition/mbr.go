// Package partition parses and writes the classic PC/IBM MBR: 446 bytes
// boot code, four 16-byte partition records, and the 0xAA55 signature
// (§4.5, §6).
package partition

import (
	"encoding/binary"
	"errors"
)

const (
	SignatureOffset = 510
	Signature       = 0xAA55
	TableOffset     = 446
	RecordSize      = 16
	MaxPartitions   = 16

	bootableByte = 0x80
)

var (
	ErrBadSignature = errors.New("partition: MBR signature missing")
	ErrTableFull    = errors.New("partition: descriptor table full")
)

// Descriptor is one partition record as carried in the flat table (§3).
type Descriptor struct {
	DriveID    int
	Index      int // 0..3, position within the MBR
	LBAStart   uint32
	SectorCount uint32
	Type       uint8
	Bootable   bool
}

// Parse reads sector 0 of a drive (512 bytes) and returns its partition
// descriptors, skipping empty (type == 0) records.
func Parse(driveID int, sector []byte) ([]Descriptor, error) {
	if len(sector) < 512 {
		return nil, errors.New("partition: sector too short")
	}

	sig := binary.LittleEndian.Uint16(sector[SignatureOffset:])
	if sig != Signature {
		return nil, ErrBadSignature
	}

	var out []Descriptor

	for i := 0; i < 4; i++ {
		rec := sector[TableOffset+i*RecordSize:]
		typ := rec[4]
		if typ == 0 {
			continue
		}

		out = append(out, Descriptor{
			DriveID:     driveID,
			Index:       i,
			Bootable:    rec[0] == bootableByte,
			Type:        typ,
			LBAStart:    binary.LittleEndian.Uint32(rec[8:12]),
			SectorCount: binary.LittleEndian.Uint32(rec[12:16]),
		})
	}

	return out, nil
}

// Table is the flat, ≤16-entry table of partitions across all drives (§3).
type Table struct {
	Descriptors []Descriptor
}

// AddAll appends d's descriptors, bounded by MaxPartitions.
func (t *Table) AddAll(ds []Descriptor) error {
	for _, d := range ds {
		if len(t.Descriptors) >= MaxPartitions {
			return ErrTableFull
		}
		t.Descriptors = append(t.Descriptors, d)
	}

	return nil
}

// CreateMBR writes a single-partition MBR using conventional defaults
// (the symmetric writer spec.md §4.5 calls "create_mbr").
func CreateMBR(sector []byte, lbaStart, sectorCount uint32, partType uint8, bootable bool) {
	CreateMBRCustom(sector, []Descriptor{{LBAStart: lbaStart, SectorCount: sectorCount, Type: partType, Bootable: bootable}})
}

// CreateMBRCustom writes up to four partition records.
func CreateMBRCustom(sector []byte, descs []Descriptor) {
	for i := range sector[:SignatureOffset+2] {
		sector[i] = 0
	}

	for i, d := range descs {
		if i >= 4 {
			break
		}

		rec := sector[TableOffset+i*RecordSize:]
		if d.Bootable {
			rec[0] = bootableByte
		}
		rec[4] = d.Type
		binary.LittleEndian.PutUint32(rec[8:12], d.LBAStart)
		binary.LittleEndian.PutUint32(rec[12:16], d.SectorCount)
	}

	binary.LittleEndian.PutUint16(sector[SignatureOffset:], Signature)
}

// AutoCreate lays out a single partition occupying the whole drive after
// reservedSectors (a convenience wrapper used by bring-up tooling).
func AutoCreate(sector []byte, totalSectors, reservedSectors uint32, partType uint8) {
	CreateMBR(sector, reservedSectors, totalSectors-reservedSectors, partType, true)
}
