package allocator

// merge coalesces a just-freed block with immediately adjacent free
// neighbors that share its region_id, then, if the surviving block now
// spans its entire region, unmaps that region. The steps run in a fixed
// order: absorb a free next neighbor first, then fold into a free
// previous neighbor, so a block with both free neighbors ends up fully
// merged in one pass.
func (a *Allocator) merge(b block) {
	if next := b.next(); next.valid() && next.isFree() && next.regionID() == b.regionID() {
		a.absorbNext(b, next)
	}

	m := b
	if prev := b.prev(); prev.valid() && prev.isFree() && prev.regionID() == b.regionID() {
		a.absorbNext(prev, b)
		m = prev
	}

	if a.occupiesWholeRegion(m) {
		a.releaseRegion(m)
	}
}

// absorbNext folds next into b: b grows by next's size and next is
// unlinked. Both must already be known free and region-matched by the
// caller.
func (a *Allocator) absorbNext(b, next block) {
	b.setSize(b.size() + next.size())
	a.unlink(next)
	a.mergesPerformed++
	Debug("merge: absorbed %s into %s, new size %d", next.name(), b.name(), b.size())
}

// occupiesWholeRegion reports whether m is the only block left from
// its region, i.e. both its list neighbors (if any) belong to a
// different region, or the list is now empty.
func (a *Allocator) occupiesWholeRegion(m block) bool {
	prev, next := m.prev(), m.next()
	if !prev.valid() && !next.valid() {
		return true
	}
	if prev.valid() && next.valid() {
		return prev.regionID() != m.regionID() && next.regionID() != m.regionID()
	}
	if !prev.valid() {
		return next.regionID() != m.regionID()
	}
	return prev.regionID() != m.regionID()
}

// releaseRegion unlinks m and returns its backing pages to the OS. An
// unmap failure is logged and otherwise ignored: the list is already
// consistent without m, so the allocator keeps functioning, just with
// that address range leaked outside Go's view of the process.
func (a *Allocator) releaseRegion(m block) {
	regionID := m.regionID()
	a.unlink(m)

	data, ok := a.regions[regionID]
	if !ok {
		Error("region %d has no tracked mapping to unmap", regionID)
		return
	}
	delete(a.regions, regionID)

	if err := unmapRegion(data); err != nil {
		Error("failed to unmap region %d: %v", regionID, err)
		return
	}
	a.regionsUnmapped++
	Debug("unmapped region %d (%d bytes)", regionID, len(data))
}
