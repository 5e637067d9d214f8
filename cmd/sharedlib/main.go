// Command sharedlib exposes the allocator package's public API as a
// set of C-callable entry points under alloc_* names, for a non-Go
// process that links against it directly. It does not export malloc,
// free, calloc or realloc, so preloading the library on its own does
// not redirect a process's standard allocation calls.
// Build with `go build -buildmode=c-shared` to produce a .so exporting
// the symbols below.
package main

import (
	"bytes"
	"os"
	"unsafe"

	"github.com/shenjiangwei/uallocator/allocator"
)

import "C"

// ============================================================================
// Allocation API
// ============================================================================

//export alloc_allocate
func alloc_allocate(size uint64) uintptr {
	return uintptr(allocator.Allocate(size))
}

//export alloc_free
func alloc_free(ptr uintptr) {
	allocator.Free(unsafe.Pointer(ptr))
}

//export alloc_zeroed_allocate
func alloc_zeroed_allocate(count, elemSize uint64) uintptr {
	return uintptr(allocator.ZeroedAllocate(count, elemSize))
}

//export alloc_resize
func alloc_resize(ptr uintptr, newSize uint64) uintptr {
	return uintptr(allocator.Resize(unsafe.Pointer(ptr), newSize))
}

//export alloc_named_allocate
func alloc_named_allocate(size uint64, namePtr uintptr, nameLen uintptr) uintptr {
	name := cStringToGo(namePtr, nameLen)
	return uintptr(allocator.NamedAllocate(size, name))
}

// ============================================================================
// Introspection API
// ============================================================================

//export alloc_dump_state
func alloc_dump_state() {
	allocator.DumpState(os.Stdout)
}

// alloc_dump_state_to_buffer writes the state dump into a caller
// supplied buffer instead of stdout, returning the number of bytes
// written or the required size (negated) if the buffer was too small.
//
//export alloc_dump_state_to_buffer
func alloc_dump_state_to_buffer(bufPtr uintptr, bufLen uintptr) int64 {
	var buf bytes.Buffer
	allocator.DumpState(&buf)

	if uintptr(buf.Len()) > bufLen {
		return -int64(buf.Len())
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(bufPtr)), bufLen)
	copy(dst, buf.Bytes())
	return int64(buf.Len())
}

// cStringToGo copies a non-NUL-terminated C buffer of known length
// into a Go string, mirroring how the kernel bridge this package is
// modeled on recovers strings passed across the same boundary.
func cStringToGo(ptr uintptr, length uintptr) string {
	if ptr == 0 || length == 0 {
		return ""
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), length)
	return string(b)
}

func main() {}
