package partition_test

import (
	"testing"

	"github.com/hobbyos-go/kernelcore/internal/partition"
)

func TestParseSinglePartition(t *testing.T) {
	t.Parallel()

	sector := make([]byte, 512)
	partition.CreateMBR(sector, 2048, 1000, 0x83, true)

	descs, err := partition.Parse(0, sector)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(descs) != 1 {
		t.Fatalf("expected exactly one partition, got %d", len(descs))
	}

	d := descs[0]
	if d.Type != 0x83 || d.LBAStart != 2048 || d.SectorCount != 1000 || !d.Bootable {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
}

func TestParseRejectsBadSignature(t *testing.T) {
	t.Parallel()

	sector := make([]byte, 512)
	if _, err := partition.Parse(0, sector); err != partition.ErrBadSignature {
		t.Fatalf("Parse with zeroed sector = %v, want ErrBadSignature", err)
	}
}

func TestParseSkipsEmptyRecords(t *testing.T) {
	t.Parallel()

	sector := make([]byte, 512)
	partition.CreateMBRCustom(sector, []partition.Descriptor{
		{LBAStart: 100, SectorCount: 50, Type: 0x83},
		{Type: 0}, // empty
	})

	descs, err := partition.Parse(0, sector)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(descs) != 1 {
		t.Fatalf("expected empty records to be skipped, got %d entries", len(descs))
	}
}

func TestTableBoundsAtSixteen(t *testing.T) {
	t.Parallel()

	tbl := &partition.Table{}
	one := []partition.Descriptor{{Type: 0x83}}

	for i := 0; i < partition.MaxPartitions; i++ {
		if err := tbl.AddAll(one); err != nil {
			t.Fatalf("AddAll %d: %v", i, err)
		}
	}

	if err := tbl.AddAll(one); err != partition.ErrTableFull {
		t.Fatalf("expected ErrTableFull at capacity, got %v", err)
	}
}
