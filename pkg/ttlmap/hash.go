package ttlmap

import (
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// hash32 is the 32-bit, non-cryptographic hash used for bucket and slot
// addressing throughout this package. xxhash's 64-bit digest is truncated
// to 32 bits; this satisfies the "any hash with <= 2^-16 pair collision
// rate on uniformly random keys" tolerance without depending on a
// city_hash32 port that does not exist in the Go ecosystem.
func hash32(b []byte) uint32 {
	return uint32(xxhash.Sum64(b))
}

// hashOf hashes the raw in-memory bytes of v. K is expected to be a
// fixed-size comparable type with no pointers or interfaces inside it
// (a flow key, a composite identifier, …) — exactly the "fixed-size POD
// type agreed between control plane and data plane" the layout assumes.
// Hashing the bytes directly, rather than routing through K's own
// hashing, mirrors the original design's single city_hash32 call over
// sizeof(K) bytes.
func hashOf[K comparable](k K) uint32 {
	return hash32(bytesOf(&k))
}

// HashKey exposes the same 32-bit key hash TTLMap uses internally for
// bucket addressing. It is useful to callers (and tests) that need to
// reason about or deliberately construct bucket collisions.
func HashKey[K comparable](k K) uint32 {
	return hashOf(k)
}

// bytesOf reinterprets the memory pointed to by p as a byte slice of
// unsafe.Sizeof(*p) bytes. The returned slice aliases p's memory; it must
// not outlive p and must not be retained beyond the call that produced it.
func bytesOf[T any](p *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), unsafe.Sizeof(*p))
}
