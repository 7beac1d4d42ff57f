package paging_test

import (
	"testing"

	"github.com/hobbyos-go/kernelcore/internal/heap"
	"github.com/hobbyos-go/kernelcore/internal/paging"
)

func TestIdentityMapCoversMinimumFourGiB(t *testing.T) {
	t.Parallel()

	// A heap big enough to host the handful of 4 KiB table pages a 4 GiB
	// map needs: 1 PML4 + 1 PDPT + 4 PDs, each rounded up with alignment
	// slack by AllocAligned.
	h := heap.New(make([]byte, 64*paging.PageSize+paging.PageSize*8))

	tbl := paging.BuildIdentityMap(h, 1<<20) // well under 4 GiB

	if tbl.MapEnd != paging.MinMapGB*paging.GB {
		t.Fatalf("MapEnd = %#x, want at least 4 GiB", tbl.MapEnd)
	}

	for _, a := range []uint64{
		0,
		1 << 20,
		paging.HugePage - 1,
		paging.HugePage,
		paging.GB,
		3*paging.GB + 2*paging.HugePage,
	} {
		phys, ok := tbl.Translate(a)
		if !ok {
			t.Fatalf("Translate(%#x): no mapping", a)
		}

		want := a &^ (paging.HugePage - 1)
		if phys != want {
			t.Fatalf("Translate(%#x) = %#x, want huge-page base %#x", a, phys, want)
		}
	}
}

func TestIdentityMapScalesWithLargerRAM(t *testing.T) {
	t.Parallel()

	h := heap.New(make([]byte, 256*paging.PageSize))

	tbl := paging.BuildIdentityMap(h, 6*paging.GB)

	if tbl.MapEnd != 6*paging.GB {
		t.Fatalf("MapEnd = %#x, want 6 GiB", tbl.MapEnd)
	}

	if _, ok := tbl.Translate(5*paging.GB + 500*paging.HugePage); !ok {
		t.Fatalf("expected a mapping inside the 6 GiB map")
	}

	if _, ok := tbl.Translate(tbl.MapEnd); ok {
		t.Fatalf("expected no mapping at or beyond MapEnd")
	}
}
