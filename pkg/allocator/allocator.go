// Package allocator provides the block allocation contract consumed by
// pkg/ttlmap. The map never calls make([]byte, …) directly for its bucket
// chunks; it goes through an Allocator so that bucket storage can live in
// ordinary process heap (Heap) or in memory shared across processes
// (SharedMemory) without the map caring which.
package allocator

import "errors"

// ErrAllocation is returned when a backing allocator cannot satisfy a
// block request (out of memory, mmap failure, exhausted arena, …).
var ErrAllocation = errors.New("allocator: allocation failed")

// Allocator hands out and reclaims fixed-purpose byte blocks. A single
// Allocator instance is shared by every TTLMap chunk it backs; MaxBlockSize
// bounds how large a single chunk may be, which in turn bounds how many
// buckets a chunk can hold.
type Allocator interface {
	// Balloc returns a new zeroed block of exactly size bytes, or
	// ErrAllocation if one cannot be produced. size must never exceed
	// MaxBlockSize.
	Balloc(size int) ([]byte, error)

	// Bfree releases a block previously returned by Balloc. Passing a
	// slice not obtained from Balloc is a programmer error.
	Bfree(block []byte)

	// MaxBlockSize is the largest block Balloc will ever hand out. It is
	// fixed for the lifetime of the allocator.
	MaxBlockSize() int
}
