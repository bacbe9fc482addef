// Package registry implements the dense-array-plus-hash-index structure
// used for virtual-service and real-server bookkeeping on the control
// plane: every record lives in a flat, append-only array indexed by a
// small dense integer, with a separate-chaining hash index mapping a
// composite identifier to that index. Separate chaining (rather than the
// open-addressed bucket scheme pkg/ttlmap uses) is the right fit here
// because this structure is control-plane-only and mutation-heavy, not a
// hot data-plane path.
package registry
