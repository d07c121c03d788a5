package cache

import "sync/atomic"

// CancelToken is a one-shot flag: once set it stays set. Workers poll it
// cooperatively; the cache sets it when preempting an entry.
type CancelToken struct {
	flag atomic.Bool
}

// Cancel sets the flag. Idempotent.
func (t *CancelToken) Cancel() { t.flag.Store(true) }

// Cancelled reports whether Cancel has been called.
func (t *CancelToken) Cancelled() bool { return t.flag.Load() }
