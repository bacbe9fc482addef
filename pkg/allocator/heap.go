package allocator

import "fmt"

const defaultMaxBlockSize = 4 << 20 // 4 MiB

// Heap is an Allocator backed by ordinary Go heap memory. It is the default
// choice for single-process use and for tests: Balloc is just make([]byte,
// size), Bfree is a no-op left to the garbage collector.
type Heap struct {
	maxBlockSize int
}

// NewHeap returns a Heap allocator whose MaxBlockSize is maxBlockSize. A
// non-positive maxBlockSize selects the 4 MiB default.
func NewHeap(maxBlockSize int) *Heap {
	if maxBlockSize <= 0 {
		maxBlockSize = defaultMaxBlockSize
	}

	return &Heap{maxBlockSize: maxBlockSize}
}

func (h *Heap) Balloc(size int) ([]byte, error) {
	if size <= 0 || size > h.maxBlockSize {
		return nil, fmt.Errorf("%w: requested size %d exceeds max block size %d", ErrAllocation, size, h.maxBlockSize)
	}

	return make([]byte, size), nil
}

func (h *Heap) Bfree(block []byte) {
	// Left to the garbage collector. Present to satisfy the Allocator
	// contract and to give callers a single release point regardless of
	// which implementation they are using.
	_ = block
}

func (h *Heap) MaxBlockSize() int {
	return h.maxBlockSize
}
