package ttlmap

import "errors"

// ErrAllocation is returned when a TTLMap cannot be constructed, or a
// SessionTable cannot be resized, because the backing allocator could not
// produce a chunk. The affected structure is left in a defined state: a
// TTLMap reverts to its empty sentinel, a SessionTable keeps its current
// map usable.
var ErrAllocation = errors.New("ttlmap: allocation failed")

// errTooManyChunks backs a construction-time panic: the requested capacity
// would require more chunks than chunkMax allows. Construction-time
// invariant violations panic rather than returning an error; they are
// never part of the runtime status vocabulary.
var errTooManyChunks = errors.New("ttlmap: capacity requires more chunks than chunkMax allows")
