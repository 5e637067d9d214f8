package allocator

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// pageSize is queried once: the OS page size cannot change under a
// running process.
var pageSize = uint64(os.Getpagesize())

// regionSizeFor rounds an aligned block size up to a whole number of
// pages, the unit regions are mapped and unmapped in.
func regionSizeFor(aligned uint64) uint64 {
	return ((aligned + pageSize - 1) / pageSize) * pageSize
}

// mapRegion requests a new anonymous, private, read-write mapping from
// the OS. The returned slice is the only handle capable of unmapping
// the range later, so the caller must retain it.
func mapRegion(size uint64) ([]byte, error) {
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	return data, nil
}

// unmapRegion releases a previously mapped range back to the OS.
func unmapRegion(data []byte) error {
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap %d bytes: %w", len(data), err)
	}
	return nil
}
