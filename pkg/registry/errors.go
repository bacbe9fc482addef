package registry

import "errors"

// ErrAllocation is returned by FindOrInsert when the backing allocator
// cannot grow the dense array to fit a new record. The dense array is
// left exactly as it was: no partially-inserted record is ever visible.
var ErrAllocation = errors.New("registry: allocation failed")
