package ttlmap

// bucketSlots is the fixed number of entry slots per bucket (B in the
// component design). It is not configurable: the whole addressing scheme
// (slot hints, status packing) is built around this constant.
const bucketSlots = 16

// chunkMax bounds how many allocator blocks a single TTLMap may be split
// across. It is a small compile-time constant, not a tunable: a map that
// needs more chunks than this should be using a larger allocator block
// size instead.
const chunkMax = 4096

// statusSlotShift is how far the slot index is shifted up in a packed
// Status word; the low statusSlotShift bits carry the status code.
const statusSlotShift = 2
