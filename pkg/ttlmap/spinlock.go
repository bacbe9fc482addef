package ttlmap

import "sync/atomic"

// spinlock is a simple test-and-set lock embedded directly in a Bucket.
// It is held for at most bucketSlots slot inspections, a bounded constant
// amount of work, so spinning rather than parking is the right tradeoff:
// a worker never sleeps waiting for another worker's O(B) critical
// section to finish.
type spinlock struct {
	held atomic.Bool
}

func (l *spinlock) Lock() {
	for !l.held.CompareAndSwap(false, true) {
		spinWait()
	}
}

func (l *spinlock) Unlock() {
	l.held.Store(false)
}
