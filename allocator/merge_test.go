package allocator

import "testing"

// TestFullRegionCoalesceToUnmap mirrors spec scenario 4: three
// allocations exactly fill one page-sized region; freeing them out of
// address order (A, then C, then B) must coalesce all three back into
// a single free block spanning the whole region and unmap it.
func TestFullRegionCoalesceToUnmap(t *testing.T) {
	a := freshAllocator()

	// Aligned block sizes 2048 + 1024 + 1024 sum to exactly one page,
	// so the region is carved with no trailing free block left over.
	pA := a.Allocate(1948) // alignedBlockSize == 2048
	pB := a.Allocate(924)  // alignedBlockSize == 1024
	pC := a.Allocate(924)  // alignedBlockSize == 1024
	if pA == nil || pB == nil || pC == nil {
		t.Fatal("expected all three allocations to succeed")
	}
	if mapped := a.MappedBytes(); mapped != pageSize {
		t.Fatalf("expected the three allocations to exactly fill one page, mapped %d bytes", mapped)
	}
	bC := blockFromPayload(pC)
	if bC.next().valid() {
		t.Fatal("expected C to be the tail with no trailing free remainder")
	}
	checkInvariants(t, a)

	a.Free(pA)
	a.Free(pC)
	a.Free(pB)

	if a.head.valid() || a.tail.valid() {
		t.Fatalf("expected an empty list after the full region coalesced, head=%v tail=%v", a.head, a.tail)
	}
	if got := a.MappedBytes(); got != 0 {
		t.Fatalf("expected the region to be unmapped, still have %d bytes mapped", got)
	}
	if a.regionsUnmapped != 1 {
		t.Fatalf("regionsUnmapped = %d, want 1", a.regionsUnmapped)
	}
}

// TestCrossRegionMergeForbidden mirrors spec scenario 5: a block whose
// list-predecessor is a free block from a different region must not be
// coalesced into it, even though the two are adjacent in the global
// list. The block's own region, once fully free, still gets unmapped.
func TestCrossRegionMergeForbidden(t *testing.T) {
	a := freshAllocator()

	p1 := a.Allocate(16) // maps region 1, leaves a large trailing free block
	if p1 == nil {
		t.Fatal("Allocate(16) failed")
	}
	b1 := blockFromPayload(p1)
	trailing := b1.next()
	if !trailing.valid() || !trailing.isFree() {
		t.Fatal("expected a trailing free block after the first allocation")
	}
	region1 := trailing.regionID()

	// Too large to fit in region 1's trailing free block: forces a
	// second, independent region.
	p2 := a.Allocate(5000)
	if p2 == nil {
		t.Fatal("Allocate(5000) failed")
	}
	b2 := blockFromPayload(p2)
	if b2.regionID() == region1 {
		t.Fatal("expected the second allocation to land in a new region")
	}
	if b2.prev() != trailing {
		t.Fatal("expected the second allocation's block to directly follow region 1's trailing free block in the list")
	}
	checkInvariants(t, a)

	regionsBefore := len(a.regions)
	trailingSize := trailing.size()

	a.Free(p2)

	// region 1's trailing free block must be untouched: still present,
	// still free, still sized the same, still region 1.
	if !trailing.valid() || !trailing.isFree() || trailing.size() != trailingSize || trailing.regionID() != region1 {
		t.Fatal("cross-region merge touched region 1's free block")
	}
	if a.tail != trailing {
		t.Fatalf("expected region 1's free block to be the tail after region 2 was released, got %s", a.tail.name())
	}
	if len(a.regions) != regionsBefore-1 {
		t.Fatalf("expected exactly one region to be released, regions before=%d after=%d", regionsBefore, len(a.regions))
	}
	checkInvariants(t, a)
}
