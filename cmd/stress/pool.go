package main

import (
	"fmt"
	"math/rand"
	"sync"
	"unsafe"

	"github.com/shenjiangwei/uallocator/allocator"
)

const (
	kb = 1024
	mb = 1024 * kb
)

// sizeClass is one of the three pre-allocated pools a memoryPool keeps
// warm, each serving one band of request sizes (up to 64 KiB, up to
// 1 MiB, and larger).
type sizeClass struct {
	ptrs  []unsafe.Pointer
	sizes []uint64
	used  []bool
}

func newSizeClass(count int, minSize, maxSize uint64) sizeClass {
	return sizeClass{
		ptrs:  make([]unsafe.Pointer, count),
		sizes: make([]uint64, count),
		used:  make([]bool, count),
	}
}

// poolStats mirrors the hit/miss counters the original memory pool
// reported, so the stress harness can show how often a request was
// served from the warm pool versus falling through to a fresh
// allocation.
type poolStats struct {
	totalAllocations uint64
	poolHits         uint64
	poolMisses       uint64
	totalFrees       uint64
	poolFreeHits     uint64
	poolFreeMisses   uint64
}

// memoryPool pre-warms three pools of small, medium, and large blocks
// against a real *allocator.Allocator and serves requests from them
// before falling back to a direct allocation. It exists to exercise
// the allocator under a access pattern closer to a long-running
// service than a pure allocate/free loop: most requests are satisfied
// by reusing a block the pool already holds.
type memoryPool struct {
	mu    sync.Mutex
	a     *allocator.Allocator
	small sizeClass
	med   sizeClass
	large sizeClass
	stats poolStats
}

func newMemoryPool(a *allocator.Allocator, smallCount, medCount, largeCount int) (*memoryPool, error) {
	p := &memoryPool{
		a:     a,
		small: newSizeClass(smallCount, 4*kb, 64*kb),
		med:   newSizeClass(medCount, 64*kb, 1*mb),
		large: newSizeClass(largeCount, 1*mb, 4*mb),
	}

	fill := func(class *sizeClass, lo, hi uint64) error {
		span := hi - lo
		for i := range class.ptrs {
			size := lo + uint64(rand.Int63n(int64(span)+1))
			ptr := a.Allocate(size)
			if ptr == nil {
				return fmt.Errorf("failed to pre-allocate a %d byte block", size)
			}
			class.ptrs[i] = ptr
			class.sizes[i] = size
		}
		return nil
	}
	if err := fill(&p.small, 4*kb, 64*kb); err != nil {
		return nil, err
	}
	if err := fill(&p.med, 64*kb, 1*mb); err != nil {
		return nil, err
	}
	if err := fill(&p.large, 1*mb, 4*mb); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *memoryPool) classFor(size uint64) *sizeClass {
	switch {
	case size <= 64*kb:
		return &p.small
	case size <= 1*mb:
		return &p.med
	default:
		return &p.large
	}
}

// Allocate serves size bytes from the matching warm pool if a free
// slot is large enough, otherwise it allocates directly.
func (p *memoryPool) Allocate(size uint64) unsafe.Pointer {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.totalAllocations++

	if size <= 4*mb {
		class := p.classFor(size)
		for i := range class.ptrs {
			if !class.used[i] && class.sizes[i] >= size {
				class.used[i] = true
				p.stats.poolHits++
				return class.ptrs[i]
			}
		}
	}

	p.stats.poolMisses++
	return p.a.Allocate(size)
}

// Free returns a pointer to its pool slot, or to the allocator
// directly if it did not come from a warm pool.
func (p *memoryPool) Free(ptr unsafe.Pointer, size uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.totalFrees++

	if size <= 4*mb {
		class := p.classFor(size)
		for i := range class.ptrs {
			if class.ptrs[i] == ptr {
				class.used[i] = false
				p.stats.poolFreeHits++
				return
			}
		}
	}

	p.stats.poolFreeMisses++
	p.a.Free(ptr)
}

// Close releases every pool slot back to the allocator and prints a
// summary of hit/miss behavior observed over the pool's lifetime.
func (p *memoryPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, class := range []*sizeClass{&p.small, &p.med, &p.large} {
		for _, ptr := range class.ptrs {
			p.a.Free(ptr)
		}
	}

	fmt.Println("\nPool statistics:")
	fmt.Printf("  total allocations: %d\n", p.stats.totalAllocations)
	if p.stats.totalAllocations > 0 {
		fmt.Printf("  pool hits: %d (%.2f%%)\n", p.stats.poolHits, pct(p.stats.poolHits, p.stats.totalAllocations))
		fmt.Printf("  pool misses: %d (%.2f%%)\n", p.stats.poolMisses, pct(p.stats.poolMisses, p.stats.totalAllocations))
	}
	fmt.Printf("  total frees: %d\n", p.stats.totalFrees)
	if p.stats.totalFrees > 0 {
		fmt.Printf("  pool free hits: %d (%.2f%%)\n", p.stats.poolFreeHits, pct(p.stats.poolFreeHits, p.stats.totalFrees))
		fmt.Printf("  pool free misses: %d (%.2f%%)\n", p.stats.poolFreeMisses, pct(p.stats.poolFreeMisses, p.stats.totalFrees))
	}
}

func pct(part, total uint64) float64 {
	return float64(part) / float64(total) * 100
}
