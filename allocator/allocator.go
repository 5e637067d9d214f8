package allocator

import (
	"fmt"
	"io"
	"math"
	"sync"
	"unsafe"
)

// Allocator is the hybrid of everything in this package: the global
// block list, the region side-table needed to unmap pages later, and
// the monotonic counters used for naming and introspection. All of its
// state is guarded by mu; every public method acquires it exactly
// once for the duration of the call.
type Allocator struct {
	mu sync.Mutex

	head, tail block
	regions    map[uint64][]byte

	nextRegionID uint64
	nextAllocID  uint64
	nextSplitID  uint64

	allocCount      uint64
	freeCount       uint64
	regionsMapped   uint64
	regionsUnmapped uint64
	splitsPerformed uint64
	splitsRefused   uint64
	mergesPerformed uint64
}

// New creates an empty hybrid with no regions mapped yet.
func New() *Allocator {
	return &Allocator{regions: make(map[uint64][]byte)}
}

var (
	singletonOnce sync.Once
	singleton     *Allocator
)

// defaultAllocator lazily creates the process-wide hybrid on first use.
// A cgo export shim, or any caller that does not want to manage its own
// *Allocator, routes through this singleton.
func defaultAllocator() *Allocator {
	singletonOnce.Do(func() {
		singleton = New()
	})
	return singleton
}

// Allocate satisfies a request for size bytes of payload, reusing a
// free block if the configured placement policy finds one large
// enough, otherwise mapping a fresh region. It returns nil only when
// the OS mapping call fails.
func (a *Allocator) Allocate(size uint64) unsafe.Pointer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocateLocked(size)
}

func (a *Allocator) allocateLocked(size uint64) unsafe.Pointer {
	t := alignedBlockSize(size)

	if b := a.reuseLocked(t); b.valid() {
		b.setFree(false)
		a.scribble(b)
		a.allocCount++
		Debug("allocate: reused %s (%d bytes) for request of %d", b.name(), b.size(), size)
		return b.payload()
	}

	regionSize := regionSizeFor(t)
	data, err := mapRegion(regionSize)
	if err != nil {
		Error("allocate: failed to map region of %d bytes: %v", regionSize, err)
		return nil
	}

	a.nextRegionID++
	regionID := a.nextRegionID
	a.regions[regionID] = data
	a.regionsMapped++

	whole := block(uintptr(unsafe.Pointer(&data[0])))
	whole.setFree(true)
	whole.setSize(regionSize)
	whole.setRegionID(regionID)
	a.nextAllocID++
	whole.setName(fmt.Sprintf("Allocation %d", a.nextAllocID))
	a.appendBlock(whole)

	a.split(whole, t)
	whole.setFree(false)
	a.scribble(whole)
	a.allocCount++
	Debug("allocate: mapped region %d (%d bytes), carved %s", regionID, regionSize, whole.name())
	return whole.payload()
}

// reuseLocked tries to satisfy an aligned request from an existing
// free block via the configured placement policy, splitting off the
// unused tail when there's enough of it to be worth keeping.
func (a *Allocator) reuseLocked(t uint64) block {
	candidate := findFree(a.head, t, currentPolicy())
	if !candidate.valid() {
		return nullBlock
	}
	a.split(candidate, t)
	return candidate
}

// scribble overwrites a freshly claimed payload with 0xAA when
// ALLOCATOR_SCRIBBLE=1, to surface reads of uninitialized memory.
func (a *Allocator) scribble(b block) {
	if !scribbleEnabled() {
		return
	}
	buf := b.payloadBytes()
	for i := range buf {
		buf[i] = scribbleByte
	}
}

// Free releases the block backing payload pointer p. A nil pointer is
// a defined no-op.
func (a *Allocator) Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freeLocked(blockFromPayload(p))
}

func (a *Allocator) freeLocked(b block) {
	b.setFree(true)
	a.freeCount++
	Debug("free: releasing %s (%d bytes)", b.name(), b.size())
	a.merge(b)
}

// ZeroedAllocate allocates room for count elements of elemSize bytes
// each and zeroes the payload, mirroring calloc. A count*elemSize
// product that would overflow uint64 returns nil rather than silently
// wrapping into an undersized allocation.
func (a *Allocator) ZeroedAllocate(count, elemSize uint64) unsafe.Pointer {
	if elemSize != 0 && count > math.MaxUint64/elemSize {
		Error("zeroed_allocate: count %d * elemSize %d overflows uint64", count, elemSize)
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.allocateLocked(count * elemSize)
	if p == nil {
		return nil
	}
	buf := blockFromPayload(p).payloadBytes()
	for i := range buf {
		buf[i] = 0
	}
	return p
}

// NamedAllocate allocates size bytes and overwrites the block's debug
// label with name, truncated to fit.
func (a *Allocator) NamedAllocate(size uint64, name string) unsafe.Pointer {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.allocateLocked(size)
	if p == nil {
		return nil
	}
	blockFromPayload(p).setName(name)
	return p
}

// Resize changes the size of the allocation backing p. A nil p behaves
// like Allocate(newSize); a newSize of zero behaves like Free(p) and
// returns nil. Otherwise a new block is carved, the lesser of the old
// and new payload sizes is copied across, and the old block is freed.
func (a *Allocator) Resize(p unsafe.Pointer, newSize uint64) unsafe.Pointer {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p == nil {
		return a.allocateLocked(newSize)
	}
	old := blockFromPayload(p)
	if newSize == 0 {
		a.freeLocked(old)
		return nil
	}

	oldPayload := old.payloadBytes()

	newP := a.allocateLocked(newSize)
	if newP == nil {
		return nil
	}
	newPayload := blockFromPayload(newP).payloadBytes()

	n := len(oldPayload)
	if len(newPayload) < n {
		n = len(newPayload)
	}
	copy(newPayload[:n], oldPayload[:n])

	a.freeLocked(old)
	return newP
}

// DumpState writes region headers (on region-id transitions) and one
// line per block to w, preceded by a summary of the running counters.
func (a *Allocator) DumpState(w io.Writer) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fmt.Fprintf(w, "allocations=%d frees=%d regions_mapped=%d regions_unmapped=%d splits=%d splits_refused=%d merges=%d\n",
		a.allocCount, a.freeCount, a.regionsMapped, a.regionsUnmapped, a.splitsPerformed, a.splitsRefused, a.mergesPerformed)

	var lastRegion uint64
	haveLast := false
	for b := a.head; b.valid(); b = b.next() {
		if !haveLast || b.regionID() != lastRegion {
			fmt.Fprintf(w, "-- region %d --\n", b.regionID())
			lastRegion = b.regionID()
			haveLast = true
		}
		status := "USED"
		if b.isFree() {
			status = "FREE"
		}
		fmt.Fprintf(w, "  0x%x-0x%x %q %d %s\n", b.addr(), b.end(), b.name(), b.size(), status)
	}
}

// Stats is a snapshot of the allocator's running counters.
type Stats struct {
	Allocations     uint64
	Frees           uint64
	RegionsMapped   uint64
	RegionsUnmapped uint64
	SplitsPerformed uint64
	SplitsRefused   uint64
	MergesPerformed uint64
}

// Stats returns a snapshot of the allocator's counters.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Allocations:     a.allocCount,
		Frees:           a.freeCount,
		RegionsMapped:   a.regionsMapped,
		RegionsUnmapped: a.regionsUnmapped,
		SplitsPerformed: a.splitsPerformed,
		SplitsRefused:   a.splitsRefused,
		MergesPerformed: a.mergesPerformed,
	}
}

// MappedBytes returns the total size of all currently mapped regions.
func (a *Allocator) MappedBytes() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total uint64
	for _, data := range a.regions {
		total += uint64(len(data))
	}
	return total
}

// UsedBytes returns the total size (header included) of every
// currently allocated, i.e. non-free, block.
func (a *Allocator) UsedBytes() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var used uint64
	for b := a.head; b.valid(); b = b.next() {
		if !b.isFree() {
			used += b.size()
		}
	}
	return used
}

// Package-level entry points route to the process-wide singleton, for
// callers (such as the cgo export shim) that have no reason to manage
// their own *Allocator.

// Allocate is the package-level equivalent of (*Allocator).Allocate.
func Allocate(size uint64) unsafe.Pointer { return defaultAllocator().Allocate(size) }

// Free is the package-level equivalent of (*Allocator).Free.
func Free(p unsafe.Pointer) { defaultAllocator().Free(p) }

// ZeroedAllocate is the package-level equivalent of
// (*Allocator).ZeroedAllocate.
func ZeroedAllocate(count, elemSize uint64) unsafe.Pointer {
	return defaultAllocator().ZeroedAllocate(count, elemSize)
}

// Resize is the package-level equivalent of (*Allocator).Resize.
func Resize(p unsafe.Pointer, newSize uint64) unsafe.Pointer {
	return defaultAllocator().Resize(p, newSize)
}

// NamedAllocate is the package-level equivalent of
// (*Allocator).NamedAllocate.
func NamedAllocate(size uint64, name string) unsafe.Pointer {
	return defaultAllocator().NamedAllocate(size, name)
}

// DumpState is the package-level equivalent of (*Allocator).DumpState.
func DumpState(w io.Writer) { defaultAllocator().DumpState(w) }
