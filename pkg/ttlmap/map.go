package ttlmap

import (
	"fmt"
	"unsafe"

	"github.com/lbflow/sessioncore/pkg/allocator"
)

// Config configures a TTLMap at construction time.
type Config struct {
	// InitialEntries is the target number of key/value entries the map
	// should hold without reclaiming live slots. It is rounded up to a
	// power of two and divided by bucketSlots, then rounded up again to
	// a power of two bucket count. Zero means "one bucket's worth".
	InitialEntries uint64
}

// TTLMap is a power-of-two array of Buckets addressed by a hash of the
// key, with bucket storage carved out of allocator-provided chunks. An
// uninitialized TTLMap (returned after a failed New) is the empty
// sentinel: Capacity reports 0 and every other operation is a no-op.
type TTLMap[K comparable, V any] struct {
	alloc allocator.Allocator

	// chunkBytes anchors the allocator-owned backing storage so the Go
	// garbage collector never reclaims memory that chunkOffsets points
	// into. chunkOffsets is the layout the component design actually
	// specifies: a signed byte offset from the pointer slot's own
	// address, reconstructed by bucketAt/chunkBase on every access, so
	// the same chunk table would remain valid if mapped into another
	// process's address space.
	chunkBytes       [chunkMax][]byte
	chunkOffsets     [chunkMax]int64
	chunkBucketCount [chunkMax]int

	bucketSize          int
	bucketsPerChunk     int
	bucketsPerChunkLog2 uint8
	bucketsLog2         uint8
	buckets             uint64
	numChunks           int
	initialized         bool
}

// New constructs a TTLMap sized for cfg.InitialEntries key/value pairs. If
// any chunk allocation fails, all previously-allocated chunks are freed
// and New returns the empty sentinel together with a wrapped
// ErrAllocation.
func New[K comparable, V any](alloc allocator.Allocator, cfg Config) (*TTLMap[K, V], error) {
	return NewWithBuckets[K, V](alloc, bucketsFor(cfg.InitialEntries))
}

// NewWithBuckets constructs a TTLMap with exactly bucketCount buckets;
// bucketCount must already be a power of two. New derives bucketCount from
// an entry count and then calls this.
func NewWithBuckets[K comparable, V any](alloc allocator.Allocator, bucketCount uint64) (*TTLMap[K, V], error) {
	if bucketCount == 0 || bucketCount&(bucketCount-1) != 0 {
		panic("ttlmap: bucketCount must be a power of two")
	}

	var zeroBucket Bucket[K, V]

	bucketSize := int(unsafe.Sizeof(zeroBucket))

	bucketsPerChunk := largestPow2LE(alloc.MaxBlockSize() / bucketSize)
	if bucketsPerChunk < 1 {
		bucketsPerChunk = 1
	}

	numChunks := ceilDiv(int(bucketCount), bucketsPerChunk)
	if numChunks > chunkMax {
		panic(errTooManyChunks)
	}

	m := &TTLMap[K, V]{
		alloc:               alloc,
		bucketSize:          bucketSize,
		bucketsPerChunk:     bucketsPerChunk,
		bucketsPerChunkLog2: log2Exact(uint64(bucketsPerChunk)),
		bucketsLog2:         log2Exact(bucketCount),
		buckets:             bucketCount,
		numChunks:           numChunks,
	}

	remaining := int(bucketCount)

	for i := range numChunks {
		thisChunkBuckets := min(bucketsPerChunk, remaining)

		block, err := alloc.Balloc(thisChunkBuckets * bucketSize)
		if err != nil {
			m.freeChunks(i)
			return &TTLMap[K, V]{}, fmt.Errorf("%w: %v", ErrAllocation, err)
		}

		m.chunkBytes[i] = block
		m.chunkBucketCount[i] = thisChunkBuckets
		m.chunkOffsets[i] = chunkOffsetOf(&m.chunkOffsets[i], block)
		remaining -= thisChunkBuckets
	}

	m.initialized = true

	return m, nil
}

func bucketsFor(initialEntries uint64) uint64 {
	if initialEntries == 0 {
		initialEntries = bucketSlots
	}

	return nextPow2(ceilDivU64(initialEntries, bucketSlots))
}

func ceilDivU64(a, b uint64) uint64 {
	return (a + b - 1) / b
}

// chunkOffsetOf computes the signed byte offset from slot's own address
// to the first byte of block.
func chunkOffsetOf(slot *int64, block []byte) int64 {
	return int64(uintptr(unsafe.Pointer(&block[0])) - uintptr(unsafe.Pointer(slot)))
}

func (m *TTLMap[K, V]) freeChunks(upTo int) {
	for i := range upTo {
		m.alloc.Bfree(m.chunkBytes[i])
		m.chunkBytes[i] = nil
	}
}

// Free releases every chunk back to the allocator. The map reverts to the
// empty sentinel; Capacity returns 0 afterward.
func (m *TTLMap[K, V]) Free() {
	if !m.initialized {
		return
	}

	m.freeChunks(m.numChunks)
	m.initialized = false
}

// Capacity returns buckets * bucketSlots, or 0 for the empty sentinel.
func (m *TTLMap[K, V]) Capacity() uint64 {
	if !m.initialized {
		return 0
	}

	return m.buckets * bucketSlots
}

func (m *TTLMap[K, V]) address(key K) (bucketID uint64, hint int) {
	h := hashOf(key)
	bucketID = uint64(h) & (m.buckets - 1)
	hint = int((h >> m.bucketsLog2) & (bucketSlots - 1))

	return bucketID, hint
}

func (m *TTLMap[K, V]) bucketAt(id uint64) *Bucket[K, V] {
	chunkIdx := int(id >> m.bucketsPerChunkLog2)
	within := id & (uint64(m.bucketsPerChunk) - 1)
	base := m.chunkBase(chunkIdx)

	return (*Bucket[K, V])(unsafe.Pointer(uintptr(base) + uintptr(within)*uintptr(m.bucketSize)))
}

// chunkBase reconstructs the absolute address of chunk i from the offset
// recorded relative to the chunk table slot's own address.
func (m *TTLMap[K, V]) chunkBase(i int) unsafe.Pointer {
	slot := unsafe.Pointer(&m.chunkOffsets[i])
	return unsafe.Pointer(uintptr(slot) + uintptr(m.chunkOffsets[i]))
}

// Lookup scans for a live entry matching key and copies its value out
// without mutating anything.
func (m *TTLMap[K, V]) Lookup(key K, now uint32) (V, Status) {
	if !m.initialized {
		var zero V
		return zero, StatusFailed
	}

	id, hint := m.address(key)

	return m.bucketAt(id).LookupCopy(key, now, hint)
}

// Handle is a live reference into a bucket slot returned by Get, with the
// bucket lock held until Release is called.
type Handle[K comparable, V any] struct {
	bucket *Bucket[K, V]
	value  *V
}

// Value returns a pointer to the slot's value, valid until Release.
func (h *Handle[K, V]) Value() *V {
	return h.value
}

// Release releases the bucket lock acquired by Get.
func (h *Handle[K, V]) Release() {
	h.bucket.Unlock()
}

// Invalidate marks the entry deleted. The caller must still call Release
// afterward.
func (h *Handle[K, V]) Invalidate() {
	h.bucket.InvalidateByValuePtr(h.value)
}

// Get finds or inserts key, storing value and setting its deadline to
// now+timeout either way. On StatusFailed the return is (nil, StatusFailed) and no lock is
// held. Otherwise the returned Handle's bucket lock is held until
// Release is called.
func (m *TTLMap[K, V]) Get(key K, value V, now, timeout uint32) (*Handle[K, V], Status) {
	if !m.initialized {
		return nil, StatusFailed
	}

	id, hint := m.address(key)
	b := m.bucketAt(id)

	valuePtr, status := b.GetOrInsert(key, value, now, timeout, hint)
	if status.Code() == StatusFailed {
		return nil, status
	}

	return &Handle[K, V]{bucket: b, value: valuePtr}, status
}

// Upsert finds or inserts key with value, refreshing its deadline, and
// releases the bucket lock before returning.
func (m *TTLMap[K, V]) Upsert(key K, value V, now, timeout uint32) Status {
	h, status := m.Get(key, value, now, timeout)
	if h != nil {
		h.Release()
	}

	return status
}

// Delete removes key if it is currently live. It is a convenience wrapper
// around Get + Invalidate + Release; it reports whether a live entry was
// found.
func (m *TTLMap[K, V]) Delete(key K, now uint32) bool {
	if !m.initialized {
		return false
	}

	id, hint := m.address(key)
	b := m.bucketAt(id)

	var zero V

	valuePtr, status := b.GetOrInsert(key, zero, now, 0, hint)

	switch status.Code() {
	case StatusFailed:
		// GetOrInsert already released the lock itself on failure;
		// nothing to undo and nothing left to unlock here.
		return false
	case StatusFound:
		b.InvalidateByValuePtr(valuePtr)
		b.Unlock()

		return true
	default: // StatusInserted, StatusReplaced
		// The key was not actually present; GetOrInsert just wrote a
		// phantom zero-TTL entry into a reclaimed slot. Undo it rather
		// than leave that behind.
		b.InvalidateByValuePtr(valuePtr)
		b.Unlock()

		return false
	}
}

// Iterate visits every bucket in ascending index order, invoking fn for
// every live entry, stopping early if fn returns false.
func (m *TTLMap[K, V]) Iterate(now uint32, fn func(key K, value V) bool) {
	m.iterateWithDeadline(now, func(key K, value V, _ uint32) bool {
		return fn(key, value)
	})
}

// iterateWithDeadline is Iterate plus the entry's raw deadline, used
// internally by SessionTable migration to carry a session's original
// expiry into the resized map instead of recomputing one from now.
func (m *TTLMap[K, V]) iterateWithDeadline(now uint32, fn func(key K, value V, deadline uint32) bool) {
	if !m.initialized {
		return
	}

	for id := range m.buckets {
		if m.bucketAt(id).Iterate(now, fn) {
			return
		}
	}
}

// upsertDeadline finds or inserts key with an explicit deadline rather
// than a relative timeout, leaving an existing live match untouched. Used
// only by SessionTable migration.
func (m *TTLMap[K, V]) upsertDeadline(key K, value V, now, deadline uint32) Status {
	if !m.initialized {
		return StatusFailed
	}

	id, hint := m.address(key)
	b := m.bucketAt(id)

	_, status := b.getOrInsertDeadline(key, value, now, deadline, hint)
	if status.Code() == StatusFailed {
		return status
	}

	b.Unlock()

	return status
}
