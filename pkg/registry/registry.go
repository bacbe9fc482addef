package registry

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/lbflow/sessioncore/pkg/allocator"
	"github.com/lbflow/sessioncore/pkg/ttlmap"
)

const (
	initialBucketCount = 16
	loadFactorNum      = 3
	loadFactorDen      = 4
	blockCapacity      = 4096
)

// Table is a dense array of records of type V, keyed by an identifier of
// type ID, with an open-chaining hash index from identifier to dense
// index. idOf extracts the identifier embedded in a record; FindOrInsert
// uses it to recognize an existing record without the caller repeating
// the identifier separately.
//
// Dense storage grows in fixed-size blocks carved out of an Allocator,
// the same chunked-growth idiom pkg/ttlmap uses for bucket storage,
// rather than one record at a time.
type Table[ID comparable, V any] struct {
	mu    sync.Mutex
	alloc allocator.Allocator
	idOf  func(*V) ID

	recordSize int
	blocks     [][]byte

	count int

	buckets []int32 // dense index + 1, 0 = empty
	next    []int32 // dense index + 1, 0 = chain end
}

// New constructs an empty Table. idOf must return the identifier embedded
// in a record; it is called only on records already stored in the dense
// array (never on a zero-initialized record before the caller has set its
// identifier, so FindOrInsert takes the identifier explicitly rather than
// relying on a zero-value record's idOf result).
func New[ID comparable, V any](alloc allocator.Allocator, idOf func(*V) ID) *Table[ID, V] {
	var zero V

	return &Table[ID, V]{
		alloc:      alloc,
		idOf:       idOf,
		recordSize: int(unsafe.Sizeof(zero)),
		buckets:    make([]int32, initialBucketCount),
	}
}

// Size returns the number of records currently stored.
func (t *Table[ID, V]) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.count
}

func (t *Table[ID, V]) recordAt(denseIdx int) *V {
	block := denseIdx / blockCapacity
	within := denseIdx % blockCapacity

	base := unsafe.Pointer(&t.blocks[block][0])

	return (*V)(unsafe.Pointer(uintptr(base) + uintptr(within)*uintptr(t.recordSize)))
}

func (t *Table[ID, V]) bucketIndex(id ID) int {
	return int(ttlmap.HashKey(id)) & (len(t.buckets) - 1)
}

// Lookup returns the dense index for id, or -1 if absent.
func (t *Table[ID, V]) Lookup(id ID) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lookupLocked(id)
}

func (t *Table[ID, V]) lookupLocked(id ID) int {
	b := t.bucketIndex(id)

	for link := t.buckets[b]; link != 0; link = t.next[link-1] {
		denseIdx := int(link - 1)
		if t.idOf(t.recordAt(denseIdx)) == id {
			return denseIdx
		}
	}

	return -1
}

// LookupByID is an alias of Lookup matching the component design's own
// naming (lookup_by_id vs. lookup(idx)).
func (t *Table[ID, V]) LookupByID(id ID) int {
	return t.Lookup(id)
}

// At returns a pointer to the record at dense index idx. idx must be in
// [0, Size()); it is O(1) dense access, matching the component design's
// lookup(idx) contract.
func (t *Table[ID, V]) At(idx int) *V {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.recordAt(idx)
}

// FindOrInsert returns the existing record for id, or inserts a
// zero-initialized one (with its identifier already set, via the
// setID callback) and returns that. It reports the dense index either
// way; calling it twice with the same id is idempotent and returns the
// same index both times.
func (t *Table[ID, V]) FindOrInsert(id ID, setID func(*V, ID)) (*V, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing := t.lookupLocked(id); existing >= 0 {
		return t.recordAt(existing), existing, nil
	}

	denseIdx := t.count

	if denseIdx/blockCapacity >= len(t.blocks) {
		if err := t.growBlock(); err != nil {
			return nil, -1, err
		}
	}

	record := t.recordAt(denseIdx)

	var zero V

	*record = zero
	setID(record, id)

	t.count++

	if t.count*loadFactorDen > len(t.buckets)*loadFactorNum {
		// rehash already threads every record, including the one just
		// written, into the new chain structure — do not also append
		// below, or this record would be linked in twice.
		t.rehash(len(t.buckets) * 2)
	} else {
		b := t.bucketIndex(id)
		t.next = append(t.next, t.buckets[b])
		t.buckets[b] = int32(denseIdx + 1)
	}

	return record, denseIdx, nil
}

func (t *Table[ID, V]) growBlock() error {
	block, err := t.alloc.Balloc(blockCapacity * t.recordSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAllocation, err)
	}

	t.blocks = append(t.blocks, block)

	return nil
}

func (t *Table[ID, V]) rehash(newBucketCount int) {
	t.buckets = make([]int32, newBucketCount)
	t.next = make([]int32, t.count)

	for i := range t.count {
		id := t.idOf(t.recordAt(i))
		b := t.bucketIndex(id)
		t.next[i] = t.buckets[b]
		t.buckets[b] = int32(i + 1)
	}
}
