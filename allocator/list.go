package allocator

// list.go holds the global doubly linked block list mutations shared by
// split, merge, and region creation. The list threads every block ever
// carved out, across every region, in address order within a region and
// region-creation order across regions.

// appendBlock makes b the new tail of the global list.
func (a *Allocator) appendBlock(b block) {
	b.setNext(nullBlock)
	b.setPrev(a.tail)
	if a.tail.valid() {
		a.tail.setNext(b)
	} else {
		a.head = b
	}
	a.tail = b
}

// insertAfter splices b into the list immediately after prev, updating
// tail if prev was the last block.
func (a *Allocator) insertAfter(prev, b block) {
	next := prev.next()
	b.setPrev(prev)
	b.setNext(next)
	prev.setNext(b)
	if next.valid() {
		next.setPrev(b)
	} else {
		a.tail = b
	}
}

// unlink removes b from the list, patching head/tail as needed. It does
// not touch b's own next/prev fields; the caller is about to discard or
// unmap b's storage.
func (a *Allocator) unlink(b block) {
	prev, next := b.prev(), b.next()
	if prev.valid() {
		prev.setNext(next)
	} else {
		a.head = next
	}
	if next.valid() {
		next.setPrev(prev)
	} else {
		a.tail = prev
	}
}
