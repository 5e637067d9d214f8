package allocator

import (
	"math/rand"
	"sync"
	"testing"
	"unsafe"
)

// TestConcurrentAllocateFree mirrors spec scenario 6: many goroutines
// hammer Allocate/Free through the shared mutex with randomly sized,
// randomly ordered requests. Once every goroutine has joined and freed
// everything it holds, the global list must still satisfy every
// invariant and end up empty.
func TestConcurrentAllocateFree(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrency stress test in -short mode")
	}

	a := freshAllocator()

	const goroutines = 8
	const opsPerGoroutine = 2000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			var live []unsafe.Pointer
			for i := 0; i < opsPerGoroutine; i++ {
				if len(live) == 0 || rng.Intn(2) == 0 {
					size := uint64(rng.Intn(4096) + 1)
					p := a.Allocate(size)
					if p == nil {
						t.Errorf("Allocate(%d) returned nil", size)
						continue
					}
					live = append(live, p)
				} else {
					idx := rng.Intn(len(live))
					a.Free(live[idx])
					live[idx] = live[len(live)-1]
					live = live[:len(live)-1]
				}
			}
			for _, p := range live {
				a.Free(p)
			}
		}(int64(g))
	}
	wg.Wait()

	checkInvariants(t, a)
	if a.head.valid() {
		t.Fatal("expected an empty list once every goroutine's allocations were all freed")
	}
}
