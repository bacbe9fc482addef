package allocator

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// SharedMemory is an Allocator backed by a single MAP_SHARED mmap region
// over a file descriptor. Two processes mapping the same file observe the
// same bucket storage, which is the scenario the TTLMap/SessionTable
// offset-pointer design exists for: chunk pointers recorded as offsets
// from a chunk table slot's own address remain valid no matter where each
// process's mapping happens to land in its own address space.
//
// Balloc carves every block as exactly MaxBlockSize bytes out of the
// region by a bump pointer with a free list for reuse, and returns it
// sliced to the requested length; the region itself is sized once at
// construction and never grows.
type SharedMemory struct {
	mu           sync.Mutex
	file         *os.File
	region       []byte
	maxBlockSize int
	offset       int
	free         [][]byte
	ownsFile     bool
}

// NewSharedMemoryFile creates the file at path if it does not exist, sets
// its size to hold capacityBlocks blocks of blockSize bytes each (keeping
// any existing contents within that size), and mmaps it
// MAP_SHARED so that any other process opening and mapping the same path
// observes the same memory.
func NewSharedMemoryFile(path string, blockSize, capacityBlocks int) (*SharedMemory, error) {
	if blockSize <= 0 || capacityBlocks <= 0 {
		panic("allocator: blockSize and capacityBlocks must be positive")
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrAllocation, path, err)
	}

	total := int64(blockSize) * int64(capacityBlocks)

	if err := f.Truncate(total); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: truncate %s: %v", ErrAllocation, path, err)
	}

	region, err := unix.Mmap(int(f.Fd()), 0, int(total), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrAllocation, path, err)
	}

	return &SharedMemory{
		file:         f,
		region:       region,
		maxBlockSize: blockSize,
		ownsFile:     true,
	}, nil
}

func (s *SharedMemory) Balloc(size int) ([]byte, error) {
	if size <= 0 || size > s.maxBlockSize {
		return nil, fmt.Errorf("%w: requested size %d exceeds max block size %d", ErrAllocation, size, s.maxBlockSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.free); n > 0 {
		block := s.free[n-1]
		s.free = s.free[:n-1]
		clear(block)

		return block[:size], nil
	}

	if s.offset+s.maxBlockSize > len(s.region) {
		return nil, fmt.Errorf("%w: shared memory region exhausted", ErrAllocation)
	}

	block := s.region[s.offset : s.offset+s.maxBlockSize : s.offset+s.maxBlockSize]
	s.offset += s.maxBlockSize

	return block[:size], nil
}

func (s *SharedMemory) Bfree(block []byte) {
	if block == nil {
		return
	}

	full := block[:cap(block)]

	s.mu.Lock()
	s.free = append(s.free, full)
	s.mu.Unlock()
}

func (s *SharedMemory) MaxBlockSize() int {
	return s.maxBlockSize
}

// Close unmaps the region and, if this SharedMemory created the backing
// file, closes it.
func (s *SharedMemory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := unix.Munmap(s.region)
	if s.ownsFile {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
	}

	return err
}
