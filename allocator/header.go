// Package allocator implements a user-space general-purpose memory
// allocator: it carves caller-requested blocks out of large anonymous
// memory regions obtained from the OS, tracks them with in-band headers
// threaded into one global doubly linked list, and coalesces them back
// into whole regions when nothing is left to free.
package allocator

import (
	"unsafe"
)

// Header layout, fixed by external convention at exactly 100 bytes.
// Go has no `#pragma pack(1)` equivalent for native structs whose fields
// include 8-byte-aligned members (the compiler would round the struct's
// size up to a multiple of its own alignment, landing on 104 rather than
// 100), so the header is addressed as a raw byte range via explicit
// offsets instead of a native struct. A block is identified purely by
// the uintptr address of its header; the memory it refers to is never
// part of the Go heap, so holding it as a bare uintptr rather than a
// tracked pointer is safe indefinitely.
const (
	headerSize = 100
	nameSize   = 32

	offName     = 0
	offSize     = offName + nameSize // 32
	offFree     = offSize + 8        // 40
	offRegionID = offFree + 8        // 48 (free occupies 1 byte; the rest of
	// this 8-byte slot is padding so regionID starts aligned)
	offNext = offRegionID + 8 // 56
	offPrev = offNext + 8     // 64
	// bytes [72, 100) are trailing padding.

	alignUnit      = 8
	minSplitSuffix = headerSize + 4
)

// Pins the offsets above to the 100-byte wire format external tooling
// depends on. A miscalculated offset overflowing headerSize yields a
// negative array length, which fails the build.
var _ [headerSize - (offPrev + 8)]byte

// block identifies a header by its base address. The zero value is the
// null block, mirroring a C NULL pointer.
type block uintptr

const nullBlock block = 0

func (b block) valid() bool { return b != nullBlock }

func (b block) addr() uintptr { return uintptr(b) }

func fieldPtr[T any](b block, offset uintptr) *T {
	return (*T)(unsafe.Pointer(b.addr() + offset))
}

func (b block) namePtr() *[nameSize]byte { return fieldPtr[[nameSize]byte](b, offName) }

// name returns the block's debug label, trimmed at the first NUL.
func (b block) name() string {
	raw := b.namePtr()
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	return string(raw[:n])
}

// setName overwrites the debug label, truncating to fit and always
// leaving room for a terminating NUL.
func (b block) setName(s string) {
	raw := b.namePtr()
	for i := range raw {
		raw[i] = 0
	}
	max := len(raw) - 1
	if len(s) < max {
		max = len(s)
	}
	copy(raw[:max], s[:max])
}

func (b block) size() uint64        { return *fieldPtr[uint64](b, offSize) }
func (b block) setSize(v uint64)    { *fieldPtr[uint64](b, offSize) = v }
func (b block) end() uintptr        { return b.addr() + uintptr(b.size()) }
func (b block) isFree() bool        { return *fieldPtr[uint8](b, offFree) != 0 }
func (b block) regionID() uint64    { return *fieldPtr[uint64](b, offRegionID) }
func (b block) setRegionID(v uint64) { *fieldPtr[uint64](b, offRegionID) = v }

func (b block) setFree(v bool) {
	p := fieldPtr[uint8](b, offFree)
	if v {
		*p = 1
	} else {
		*p = 0
	}
}

func (b block) next() block { return block(*fieldPtr[uint64](b, offNext)) }
func (b block) prev() block { return block(*fieldPtr[uint64](b, offPrev)) }

func (b block) setNext(n block) { *fieldPtr[uint64](b, offNext) = uint64(n) }
func (b block) setPrev(p block) { *fieldPtr[uint64](b, offPrev) = uint64(p) }

// payload returns the caller-visible byte range start, 100 bytes past
// the header.
func (b block) payload() unsafe.Pointer { return unsafe.Pointer(b.addr() + headerSize) }

// blockFromPayload recovers a block from a payload pointer handed back
// to the caller by Allocate/Resize/... .
func blockFromPayload(p unsafe.Pointer) block {
	return block(uintptr(p) - headerSize)
}

// payloadBytes views the block's usable payload as a byte slice, for
// scribbling, zeroing, and copying during resize.
func (b block) payloadBytes() []byte {
	n := int(b.size()) - headerSize
	return unsafe.Slice((*byte)(b.payload()), n)
}

// alignUp rounds v up to the next multiple of alignUnit.
func alignUp(v uint64) uint64 {
	return (v + alignUnit - 1) &^ (alignUnit - 1)
}

// alignedBlockSize computes the aligned block size (header + payload)
// for a requested payload size.
func alignedBlockSize(payload uint64) uint64 {
	return alignUp(payload + headerSize)
}
