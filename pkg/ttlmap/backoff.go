package ttlmap

import "runtime"

// spinWait yields the processor once. It exists as a single named call
// site so the backoff strategy (currently a bare Gosched) can change in
// one place without touching every spin loop in the package.
func spinWait() {
	runtime.Gosched()
}
