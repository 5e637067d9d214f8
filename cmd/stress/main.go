// Command stress drives the allocator package through randomized
// allocate/free workloads, concurrently or sequentially, and reports
// utilization and throughput the way the original hybrid allocator's
// stress harness did.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/shenjiangwei/uallocator/allocator"
)

const (
	gb = 1024 * 1024 * 1024
)

// block records a live allocation so it can be located and freed
// later by the stress harness, which knows nothing about block
// headers.
type block struct {
	ptr  unsafe.Pointer
	size uint64
}

func randomSize(maxSize uint64) uint64 {
	return uint64(rand.Int63n(int64(maxSize))) + 1
}

func runConcurrent(pool *memoryPool, goroutines, opsPerGoroutine int, maxSize uint64) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var allocations, frees uint64

	start := time.Now()
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			var live []block
			for i := 0; i < opsPerGoroutine; i++ {
				if len(live) == 0 || rng.Intn(3) != 0 {
					size := uint64(rng.Int63n(int64(maxSize))) + 1
					ptr := pool.Allocate(size)
					if ptr == nil {
						log.Printf("goroutine %d: allocate(%d) failed", seed, size)
						continue
					}
					live = append(live, block{ptr: ptr, size: size})
					mu.Lock()
					allocations++
					mu.Unlock()
				} else {
					idx := rng.Intn(len(live))
					b := live[idx]
					live[idx] = live[len(live)-1]
					live = live[:len(live)-1]
					pool.Free(b.ptr, b.size)
					mu.Lock()
					frees++
					mu.Unlock()
				}
			}
			for _, b := range live {
				pool.Free(b.ptr, b.size)
				mu.Lock()
				frees++
				mu.Unlock()
			}
		}(int64(g))
	}
	wg.Wait()
	duration := time.Since(start)

	log.Printf("concurrent run complete: %d goroutines, %d allocations, %d frees, duration %v",
		goroutines, allocations, frees, duration)
}

func runBasic(a *allocator.Allocator, iterations int, targetUsage uint64) {
	var live []block
	for i := 0; i < iterations; i++ {
		start := time.Now()
		written := uint64(0)
		for written < targetUsage {
			size := randomSize(4 * 1024 * 1024)
			ptr := a.Allocate(size)
			if ptr == nil {
				log.Printf("iteration %d: allocation failed after writing %d bytes", i, written)
				break
			}
			live = append(live, block{ptr: ptr, size: size})
			written += size
		}

		stats := a.Stats()
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		log.Printf("iteration %d: mapped=%d used=%d allocations=%d frees=%d merges=%d go_heap_alloc=%dMB duration=%v",
			i, a.MappedBytes(), a.UsedBytes(), stats.Allocations, stats.Frees, stats.MergesPerformed, m.Alloc/1024/1024, time.Since(start))

		releaseRatio := 0.3 + rand.Float64()*0.2
		releaseCount := int(float64(len(live)) * releaseRatio)
		for j := 0; j < releaseCount && len(live) > 0; j++ {
			idx := rand.Intn(len(live))
			b := live[idx]
			live[idx] = live[len(live)-1]
			live = live[:len(live)-1]
			a.Free(b.ptr)
		}
	}

	for _, b := range live {
		a.Free(b.ptr)
	}
}

func main() {
	mode := flag.String("mode", "basic", "stress mode: basic, concurrent, pool")
	goroutines := flag.Int("goroutines", 8, "goroutine count for -mode=concurrent and -mode=pool")
	ops := flag.Int("ops", 20000, "operations per goroutine for -mode=concurrent and -mode=pool")
	maxSize := flag.Uint64("maxsize", 4*1024*1024, "largest single request size, in bytes, for -mode=concurrent and -mode=pool")
	iterations := flag.Int("iterations", 3, "allocate/release cycles for -mode=basic")
	targetUsageGB := flag.Float64("target-gb", 1, "bytes (in GiB) to write per iteration for -mode=basic")
	poolSmall := flag.Int("pool-small", 500, "pre-allocated small blocks for -mode=pool")
	poolMed := flag.Int("pool-medium", 200, "pre-allocated medium blocks for -mode=pool")
	poolLarge := flag.Int("pool-large", 50, "pre-allocated large blocks for -mode=pool")
	flag.Parse()

	switch *mode {
	case "basic":
		a := allocator.New()
		runBasic(a, *iterations, uint64(*targetUsageGB*gb))
	case "concurrent":
		a := allocator.New()
		runConcurrentDirect(a, *goroutines, *ops, *maxSize)
	case "pool":
		a := allocator.New()
		pool, err := newMemoryPool(a, *poolSmall, *poolMed, *poolLarge)
		if err != nil {
			log.Fatalf("failed to warm memory pool: %v", err)
		}
		runConcurrent(pool, *goroutines, *ops, *maxSize)
		pool.Close()
	default:
		fmt.Printf("unknown mode %q (want basic, concurrent, or pool)\n", *mode)
		flag.Usage()
	}
}

// runConcurrentDirect is runConcurrent's counterpart for -mode=concurrent:
// it hits the allocator's public API directly instead of going through
// a warm pool, to measure raw contention on the shared lock.
func runConcurrentDirect(a *allocator.Allocator, goroutines, opsPerGoroutine int, maxSize uint64) {
	var wg sync.WaitGroup
	start := time.Now()
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			var live []block
			for i := 0; i < opsPerGoroutine; i++ {
				if len(live) == 0 || rng.Intn(3) != 0 {
					size := uint64(rng.Int63n(int64(maxSize))) + 1
					ptr := a.Allocate(size)
					if ptr == nil {
						continue
					}
					live = append(live, block{ptr: ptr, size: size})
				} else {
					idx := rng.Intn(len(live))
					b := live[idx]
					live[idx] = live[len(live)-1]
					live = live[:len(live)-1]
					a.Free(b.ptr)
				}
			}
			for _, b := range live {
				a.Free(b.ptr)
			}
		}(int64(g))
	}
	wg.Wait()
	log.Printf("concurrent run complete: %d goroutines, duration %v, mapped=%d used=%d",
		goroutines, time.Since(start), a.MappedBytes(), a.UsedBytes())
}
