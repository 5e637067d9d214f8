package allocator

import (
	"os"
	"strings"
)

// Policy selects which placement strategy reuseLocked uses to pick a free
// block for a request.
type Policy string

const (
	// FirstFit returns the first free block encountered that is large
	// enough.
	FirstFit Policy = "first_fit"
	// BestFit returns the smallest free block that is still large
	// enough.
	BestFit Policy = "best_fit"
	// WorstFit returns the largest free block available.
	WorstFit Policy = "worst_fit"
)

// envAlgorithm and envScribble name the environment variables that
// steer allocation behavior without requiring a recompile.
const (
	envAlgorithm = "ALLOCATOR_ALGORITHM"
	envScribble  = "ALLOCATOR_SCRIBBLE"

	// scribbleByte fills freshly returned payloads when scribbling is
	// enabled, to surface use-of-uninitialized-memory bugs in callers.
	scribbleByte = 0xAA
)

// currentPolicy reads ALLOCATOR_ALGORITHM. It is re-read on every
// allocation rather than cached, so a caller can flip strategies
// between calls (tests rely on this).
func currentPolicy() Policy {
	p := Policy(strings.ToLower(strings.TrimSpace(os.Getenv(envAlgorithm))))
	if _, ok := placements[p]; ok {
		return p
	}
	return FirstFit
}

// scribbleEnabled reads ALLOCATOR_SCRIBBLE; only the exact value "1"
// turns scribbling on.
func scribbleEnabled() bool {
	return os.Getenv(envScribble) == "1"
}
