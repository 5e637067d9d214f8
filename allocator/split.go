package allocator

import "fmt"

// split divides a free block so that the prefix occupies exactly t
// bytes (header + payload) and the suffix, if large enough to be
// worth keeping, carries the remainder as a new free block.
//
// The suffix is only carved out when it would be at least
// minSplitSuffix bytes (a header plus one aligned word of usable
// payload); otherwise the split is refused and the whole block is left
// for the caller to use as-is, retaining up to headerSize+3 bytes of
// slack. split never touches b's free flag — the caller sets that.
func (a *Allocator) split(b block, t uint64) block {
	if !b.isFree() {
		panic("split: block is not free")
	}

	remainder := b.size() - t
	if remainder < minSplitSuffix {
		a.splitsRefused++
		Debug("split refused: block %s size %d target %d leaves only %d bytes", b.name(), b.size(), t, remainder)
		return nullBlock
	}

	suffix := block(b.addr() + uintptr(t))
	suffix.setSize(remainder)
	suffix.setFree(true)
	suffix.setRegionID(b.regionID())
	a.nextSplitID++
	suffix.setName(fmt.Sprintf("Split block %d", a.nextSplitID))

	a.insertAfter(b, suffix)
	b.setSize(t)

	a.splitsPerformed++
	Debug("split: block %s into %d + %d bytes (suffix %s)", b.name(), t, remainder, suffix.name())
	return suffix
}
