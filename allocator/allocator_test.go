package allocator

import (
	"bytes"
	"testing"
	"unsafe"
)

// checkInvariants walks a's global list and asserts P1-P4 hold. It is
// shared by the tests in this package the way the teacher repo leaned on ad hoc
// assertions against buddy.regions[0] from within the same package.
func checkInvariants(t *testing.T, a *Allocator) {
	t.Helper()

	seenFreeRun := false
	var prevRegion uint64
	haveSeen := false

	for b := a.head; b.valid(); b = b.next() {
		if b.size() < minSplitSuffix {
			t.Errorf("block %s has size %d, want >= %d", b.name(), b.size(), minSplitSuffix)
		}
		if b.size()%alignUnit != 0 {
			t.Errorf("block %s has size %d, not a multiple of %d", b.name(), b.size(), alignUnit)
		}

		if n := b.next(); n.valid() {
			if n.regionID() == b.regionID() && b.end() != n.addr() {
				t.Errorf("block %s (end 0x%x) is not address-adjacent to %s (start 0x%x)", b.name(), b.end(), n.name(), n.addr())
			}
			if n.prev() != b {
				t.Errorf("block %s.next.prev != %s", b.name(), b.name())
			}
		} else if a.tail != b {
			t.Errorf("block %s has no next but is not tail", b.name())
		}

		if p := b.prev(); p.valid() {
			if p.next() != b {
				t.Errorf("block %s.prev.next != %s", b.name(), b.name())
			}
		} else if a.head != b {
			t.Errorf("block %s has no prev but is not head", b.name())
		}

		if haveSeen && b.regionID() == prevRegion {
			if b.isFree() && seenFreeRun {
				t.Errorf("two consecutive free blocks in region %d", b.regionID())
			}
		}
		seenFreeRun = b.isFree()
		prevRegion = b.regionID()
		haveSeen = true
	}

	if a.head.valid() && a.head.prev().valid() {
		t.Errorf("head has a non-null prev")
	}
	if a.tail.valid() && a.tail.next().valid() {
		t.Errorf("tail has a non-null next")
	}
}

func freshAllocator() *Allocator {
	return New()
}

func TestBasicAllocateFree(t *testing.T) {
	a := freshAllocator()

	p := a.Allocate(4 * 1024)
	if p == nil {
		t.Fatal("Allocate(4096) returned nil")
	}
	checkInvariants(t, a)

	a.Free(p)
	checkInvariants(t, a)

	if a.head.valid() {
		t.Fatalf("expected empty list after freeing the only allocation, got head=%v", a.head)
	}
}

func TestFreeNilIsNoop(t *testing.T) {
	a := freshAllocator()
	a.Free(nil) // must not panic
	if a.head.valid() {
		t.Fatal("Free(nil) mutated the list")
	}
}

func TestMultipleAllocations(t *testing.T) {
	a := freshAllocator()

	const n = 10
	ptrs := make([]unsafe.Pointer, n)
	for i := 0; i < n; i++ {
		ptrs[i] = a.Allocate(4 * 1024)
		if ptrs[i] == nil {
			t.Fatalf("Allocate #%d returned nil", i)
		}
	}
	checkInvariants(t, a)

	for _, p := range ptrs {
		a.Free(p)
	}
	checkInvariants(t, a)

	if a.head.valid() {
		t.Fatal("expected empty list after freeing every allocation")
	}
}

// TestScenarioThreeAllocationsOneRegion mirrors spec scenario 1: three
// 16-byte allocations under first-fit should land in a single page-sized
// region at the expected aligned offsets.
func TestScenarioThreeAllocationsOneRegion(t *testing.T) {
	t.Setenv("ALLOCATOR_ALGORITHM", "first_fit")
	a := freshAllocator()

	p1 := a.Allocate(16)
	p2 := a.Allocate(16)
	p3 := a.Allocate(16)
	if p1 == nil || p2 == nil || p3 == nil {
		t.Fatal("expected all three allocations to succeed")
	}

	b1 := blockFromPayload(p1)
	if got := regionSizeFor(alignedBlockSize(16)); got != pageSize {
		t.Fatalf("expected a single page-sized region, got %d", got)
	}
	if b1.addr()+headerSize != uintptr(p1) {
		t.Fatalf("p1 is not 100 bytes past its header")
	}
	if uintptr(p2) != uintptr(p1)+120 {
		t.Fatalf("expected p2 at p1+120, got offset %d", uintptr(p2)-uintptr(p1))
	}
	if uintptr(p3) != uintptr(p2)+120 {
		t.Fatalf("expected p3 at p2+120, got offset %d", uintptr(p3)-uintptr(p2))
	}

	// A trailing free block should cover the unused remainder of the page.
	if !a.tail.isFree() {
		t.Fatal("expected a trailing free block covering the unused region tail")
	}

	checkInvariants(t, a)
}

func TestZeroedAllocateIsZeroed(t *testing.T) {
	t.Setenv("ALLOCATOR_ALGORITHM", "first_fit")
	a := freshAllocator()

	// p0 keeps the region alive once p1 is freed, so p1's dirty block
	// survives as a reusable free block instead of being unmapped.
	p0 := a.Allocate(64)
	p1 := a.Allocate(64)
	buf := blockFromPayload(p1).payloadBytes()
	for i := range buf {
		buf[i] = 0xFF
	}
	a.Free(p1)

	zp := a.ZeroedAllocate(8, 8) // same aligned size as p1: first-fit must reuse its block
	if zp == nil {
		t.Fatal("ZeroedAllocate returned nil")
	}
	if zp != p1 {
		t.Fatalf("expected ZeroedAllocate to reuse p1's freed block at %v, got %v", p1, zp)
	}
	zb := blockFromPayload(zp).payloadBytes()
	for i, v := range zb {
		if v != 0 {
			t.Fatalf("byte %d is %x, want 0", i, v)
		}
	}
	_ = p0
}

func TestZeroedAllocateOverflow(t *testing.T) {
	a := freshAllocator()
	p := a.ZeroedAllocate(1<<63, 1<<63)
	if p != nil {
		t.Fatal("expected nil on count*elemSize overflow")
	}
}

func TestNamedAllocate(t *testing.T) {
	a := freshAllocator()
	p := a.NamedAllocate(32, "my-label")
	if p == nil {
		t.Fatal("NamedAllocate returned nil")
	}
	if got := blockFromPayload(p).name(); got != "my-label" {
		t.Fatalf("name = %q, want %q", got, "my-label")
	}

	longName := "this-name-is-definitely-longer-than-31-chars"
	p2 := a.NamedAllocate(32, longName)
	got := blockFromPayload(p2).name()
	if len(got) > 31 {
		t.Fatalf("name %q exceeds 31 usable chars", got)
	}
	if got != longName[:len(got)] {
		t.Fatalf("truncated name %q is not a prefix of %q", got, longName)
	}
}

// TestResizeIdentity is spec law L3: Resize(Allocate(s), s) must return a
// valid pointer whose first s bytes equal those already written.
func TestResizeIdentity(t *testing.T) {
	a := freshAllocator()

	p := a.Allocate(100)
	buf := blockFromPayload(p).payloadBytes()
	for i := range buf {
		buf[i] = byte(i)
	}

	rp := a.Resize(p, 100)
	if rp == nil {
		t.Fatal("Resize returned nil")
	}
	rbuf := blockFromPayload(rp).payloadBytes()
	for i := 0; i < 100; i++ {
		if rbuf[i] != byte(i) {
			t.Fatalf("byte %d = %d, want %d", i, rbuf[i], byte(i))
		}
	}
	checkInvariants(t, a)
}

func TestResizeNilIsAllocate(t *testing.T) {
	a := freshAllocator()
	p := a.Resize(nil, 64)
	if p == nil {
		t.Fatal("Resize(nil, 64) returned nil")
	}
	checkInvariants(t, a)
}

func TestResizeZeroFrees(t *testing.T) {
	a := freshAllocator()
	p := a.Allocate(64)
	if got := a.Resize(p, 0); got != nil {
		t.Fatalf("Resize(p, 0) = %v, want nil", got)
	}
	if a.head.valid() {
		t.Fatal("expected empty list after Resize(p, 0)")
	}
}

func TestResizeGrowPreservesPrefix(t *testing.T) {
	a := freshAllocator()
	p := a.Allocate(16)
	buf := blockFromPayload(p).payloadBytes()
	copy(buf, []byte("hello, world!!!!"))

	rp := a.Resize(p, 4096)
	if rp == nil {
		t.Fatal("grow Resize returned nil")
	}
	rbuf := blockFromPayload(rp).payloadBytes()
	if !bytes.Equal(rbuf[:16], []byte("hello, world!!!!")) {
		t.Fatalf("grown payload prefix = %q, want %q", rbuf[:16], "hello, world!!!!")
	}
	checkInvariants(t, a)
}

func TestDumpStateWritesSomething(t *testing.T) {
	a := freshAllocator()
	a.Allocate(64)
	a.NamedAllocate(64, "tagged")

	var buf bytes.Buffer
	a.DumpState(&buf)
	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("tagged")) {
		t.Fatalf("DumpState output missing named block: %s", out)
	}
	if !bytes.Contains([]byte(out), []byte("allocations=2")) {
		t.Fatalf("DumpState output missing counters: %s", out)
	}
}
