package ttlmap

import (
	"sync"
	"sync/atomic"

	"github.com/lbflow/sessioncore/pkg/allocator"
)

// idx maps a generation onto the TTLMap slot that is currently active.
// Four generations map onto two slots in the pattern 0,1,1,0 — this is
// deliberate and encodes the four-phase resize protocol; it must not be
// simplified to gen & 1, which would give the wrong slot during the
// transient phase following the second publication of a resize.
func idx(gen uint64) int {
	return int(((gen + 1) & 3) >> 1)
}

// SessionTable is a pair of TTLMaps behind a single atomic generation
// counter, giving the control plane an online resize that data-plane
// workers never block on. The generation's low bit distinguishes steady
// state (even: exactly one map is authoritative) from an in-flight resize
// (odd: the new map is primary, the old map is consulted as a fallback on
// miss).
type SessionTable[K comparable, V any] struct {
	alloc      allocator.Allocator
	maps       [2]*TTLMap[K, V]
	currentGen atomic.Uint64
	rcu        *RCU
	resizeMu   sync.Mutex
	dropped    atomic.Uint64
}

// NewSessionTable constructs a SessionTable with an initial map sized for
// cfg.InitialEntries, and an RCU quiescence group sized for workers
// worker indices (W <= 8 in the scheduling model this package targets,
// though nothing here enforces that ceiling).
func NewSessionTable[K comparable, V any](alloc allocator.Allocator, cfg Config, workers int) (*SessionTable[K, V], error) {
	initial, err := New[K, V](alloc, cfg)
	if err != nil {
		return nil, err
	}

	t := &SessionTable[K, V]{alloc: alloc, rcu: NewRCU(workers)}
	t.maps[idx(0)] = initial

	return t, nil
}

// Generation returns the current generation counter, read with acquire
// ordering — the same ordering workers use on every operation.
func (t *SessionTable[K, V]) Generation() uint64 {
	return t.currentGen.Load()
}

// DroppedMigrations returns the running count of live sessions that could
// not be carried over during a resize because their target bucket in the
// new map overflowed. It never decreases.
func (t *SessionTable[K, V]) DroppedMigrations() uint64 {
	return t.dropped.Load()
}

// Lookup reads the current generation, polls the RCU group on behalf of
// workerIndex, and looks the key up in the current map. During an
// in-flight resize (odd generation) a miss falls back to the previous
// map before being reported as not found.
func (t *SessionTable[K, V]) Lookup(workerIndex int, key K, now uint32) (V, Status) {
	gen := t.currentGen.Load()
	t.rcu.Poll(workerIndex, gen)

	cur := t.maps[idx(gen)]

	v, status := cur.Lookup(key, now)
	if status.Code() == StatusFound || gen&1 == 0 {
		return v, status
	}

	prev := t.maps[idx(gen)^1]
	if prev == nil {
		return v, status
	}

	return prev.Lookup(key, now)
}

// Get finds or inserts key in the current map, storing value and
// refreshing its deadline to now+timeout. Writes always target the current map, never the fallback
// map, per the resize protocol: only reads fall back during migration.
func (t *SessionTable[K, V]) Get(workerIndex int, key K, value V, now, timeout uint32) (*Handle[K, V], Status) {
	gen := t.currentGen.Load()
	t.rcu.Poll(workerIndex, gen)

	return t.maps[idx(gen)].Get(key, value, now, timeout)
}

// Upsert finds or inserts key with value, refreshing its deadline, and
// releases the bucket lock before returning.
func (t *SessionTable[K, V]) Upsert(workerIndex int, key K, value V, now, timeout uint32) Status {
	h, status := t.Get(workerIndex, key, value, now, timeout)
	if h != nil {
		h.Release()
	}

	return status
}

// Iterate visits every live entry in the current map only; entries still
// draining out of a previous map mid-resize are not observed by external
// callers (this is also what fill_balancer_info-style telemetry scans use
// under the hood).
func (t *SessionTable[K, V]) Iterate(now uint32, fn func(key K, value V) bool) {
	gen := t.currentGen.Load()
	t.maps[idx(gen)].Iterate(now, fn)
}

// Capacity reports the current map's capacity.
func (t *SessionTable[K, V]) Capacity() uint64 {
	gen := t.currentGen.Load()
	return t.maps[idx(gen)].Capacity()
}

// Resize grows (or rebuilds, for an unchanged size) the table to hold
// newCapacityEntries key/value pairs, migrating every entry live at now
// from the old map into the new one without ever blocking a concurrent
// Lookup or Get. It is control-plane only: at most one resize runs at a
// time, serialized by resizeMu, and it runs to completion without
// honoring cancellation.
func (t *SessionTable[K, V]) Resize(newCapacityEntries uint64, now uint32) error {
	t.resizeMu.Lock()
	defer t.resizeMu.Unlock()

	gen := t.currentGen.Load()
	curIdx := idx(gen)
	prevIdx := curIdx ^ 1

	newMap, err := New[K, V](t.alloc, Config{InitialEntries: newCapacityEntries})
	if err != nil {
		return err
	}

	oldMap := t.maps[curIdx]
	t.maps[prevIdx] = newMap

	// Publish: the new map becomes primary, with fallback reads still
	// hitting the old one on miss (phase A/C -> B/D).
	t.currentGen.Add(1)

	oldMap.iterateWithDeadline(now, func(key K, value V, deadline uint32) bool {
		status := newMap.upsertDeadline(key, value, now, deadline)
		if status.Code() == StatusFailed {
			t.dropped.Add(1)
		}

		return true
	})

	// Publish again: workers stop falling back to the old map (phase
	// B/D -> the next steady state).
	quiesceGen := t.currentGen.Add(1)

	t.rcu.WaitForQuiescence(quiesceGen)

	oldMap.Free()
	t.maps[curIdx] = nil

	return nil
}
