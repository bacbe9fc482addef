// Package ttlmap implements a TTL-keyed concurrent hash map (TTLMap) and a
// generation-swapped double buffer built on top of it (SessionTable), the
// way a software load balancer's data plane tracks per-flow session state:
// many reader/writer worker goroutines performing lock-striped lookups and
// upserts against a shared map, with a single control-plane goroutine able
// to grow the map online without ever blocking a worker.
//
// The map is organized as a power-of-two array of fixed-size Buckets, each
// holding 16 entry slots behind one embedded lock — the unit of
// concurrency is the bucket, not the entry. Bucket storage is carved out
// of allocator-provided blocks ("chunks") rather than grown one entry at a
// time, and chunk addresses are recorded as byte offsets from their own
// table slot so the same layout is valid regardless of where a given
// process happens to map the backing memory.
//
// Example:
//
//	m, err := ttlmap.New[FlowKey, SessionState](allocator.NewHeap(0), ttlmap.Config{
//		InitialEntries: 1 << 16,
//	})
//	status := m.Upsert(key, value, clock.Now(), 30)
package ttlmap
