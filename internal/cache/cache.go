package cache

import (
	"encoding/hex"
	"errors"
	"sync"
)

// Key is a stable, order-independent fingerprint of a build's full
// parameter set. Equal keys denote requests for an identical build.
// Computing a Key is the gateway's job (see internal/gateway/fingerprint.go);
// the cache only ever compares keys with ==.
type Key [32]byte

// Worker performs the actual build. It must call report periodically with
// human-readable progress and must poll cancel at a cadence sufficient to
// bound cancellation latency, returning promptly (with ErrWorkerCancelled,
// wrapped or bare) once cancel.Cancelled() is true.
type Worker func(report func(message string, percent int), cancel *CancelToken) (result any, err error)

type status int

const (
	statusLoading status = iota
	statusComplete
	statusError
)

// entry is the cache's sole live record of a build. It is mutated only
// under SingleflightCache.mu, except for the worker goroutine's direct
// call into broadcaster (which has its own synchronization) and the
// one-shot done close (guarded by its own sync.Once so the cache's
// preemption path and the worker's completion path can both attempt to
// fire it without a double-close panic — see DESIGN.md).
type entry struct {
	key         Key
	identity    int64
	broadcaster *ProgressBroadcaster
	cancel      *CancelToken
	done        chan struct{}
	closeDone   sync.Once

	status status
	result any
	err    error
}

func (e *entry) fire() {
	e.closeDone.Do(func() { close(e.done) })
}

// SingleflightCache holds at most one live entry. Submit collapses
// concurrent requests for the same key into a single worker execution,
// fans its progress and outcome out to every joined caller, and
// preempts-and-replaces the current entry when a different key arrives.
type SingleflightCache struct {
	mu      sync.Mutex
	current *entry
	nextID  int64
}

// New returns an empty cache.
func New() *SingleflightCache {
	return &SingleflightCache{}
}

// CurrentKey reports the key of the live entry, if any, as a hex string
// suitable for a health-check response. It never blocks on a build.
func (c *SingleflightCache) CurrentKey() (key string, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return "", false
	}
	return hex.EncodeToString(c.current.key[:]), true
}

// CancelCurrent cancels the live entry's worker, if any, without installing
// a replacement. Unlike Submit's preemption path, it does not fire the
// entry's done signal itself: joined callers stay parked until the worker
// notices the token, and run's own cleanup then clears the entry and fires
// done. It never blocks on a build in progress.
func (c *SingleflightCache) CancelCurrent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.cancel.Cancel()
	}
}

// Submit joins or starts the build for key. progress, if non-nil, is
// registered with the entry's broadcaster for the duration of this call.
//
// It returns the cached result on success, ErrCancelled if this
// submission's entry was replaced or cancelled (CancelCurrent) before
// completion, or a *WorkerError
// wrapping the worker's failure.
func (c *SingleflightCache) Submit(key Key, worker Worker, progress Listener) (any, error) {
	c.mu.Lock()

	if c.current != nil && c.current.key == key {
		e := c.current
		switch e.status {
		case statusComplete:
			result := e.result
			c.mu.Unlock()
			if progress != nil {
				// Routed through safeCall, not called bare, so a listener
				// that panics on a disconnected observer (see
				// gateway.Server.stream) is recovered here exactly as it
				// would be inside Broadcast, instead of crashing this
				// goroutine.
				safeCall(progress, "cached", 100)
			}
			return result, nil
		case statusError:
			err := e.err
			c.mu.Unlock()
			return nil, &WorkerError{Err: err}
		default: // loading: join the in-flight build
			var listenerID int
			if progress != nil {
				listenerID, _ = e.broadcaster.Add(progress)
			}
			ident, done, broadcaster := e.identity, e.done, e.broadcaster
			c.mu.Unlock()
			return c.join(ident, done, listenerID, broadcaster, progress != nil)
		}
	}

	// Preempt the current entry (if any) and install a fresh one for key.
	var old *entry
	if c.current != nil {
		old = c.current
		old.cancel.Cancel()
	}

	c.nextID++
	e := &entry{
		key:         key,
		identity:    c.nextID,
		broadcaster: NewProgressBroadcaster(),
		cancel:      &CancelToken{},
		done:        make(chan struct{}),
		status:      statusLoading,
	}
	var listenerID int
	if progress != nil {
		listenerID, _ = e.broadcaster.Add(progress)
	}
	c.current = e
	c.mu.Unlock()

	// Fire the predecessor's done signal only after the swap is visible,
	// so its waiters re-acquire the lock, see the new identity, and raise
	// Cancelled instead of racing the installation. The predecessor's own
	// worker goroutine may also try to fire it later via its own fire()
	// call; the sync.Once there makes the two race-free.
	if old != nil {
		old.fire()
	}

	go c.run(e, worker)

	return c.join(e.identity, e.done, listenerID, e.broadcaster, progress != nil)
}

// join waits for done, then inspects the outcome. If the joined entry is no
// longer current (replaced, or cleared after cancellation), a registered
// listener is removed from broadcaster so no further progress is delivered
// to a caller that has already returned. On a completed or failed entry the
// listener stays registered; that entry's worker has already finished
// broadcasting.
func (c *SingleflightCache) join(ident int64, done chan struct{}, listenerID int, broadcaster *ProgressBroadcaster, hasListener bool) (any, error) {
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.current.identity != ident {
		if hasListener {
			broadcaster.Remove(listenerID)
		}
		return nil, ErrCancelled
	}

	e := c.current
	switch e.status {
	case statusComplete:
		return e.result, nil
	case statusError:
		return nil, &WorkerError{Err: e.err}
	default:
		// Not reached: every path that fires done while this entry is
		// still current first moves it out of LOADING, and a cancelled
		// entry is cleared from the cache before done fires. Treated
		// the same as preemption, defensively.
		return nil, ErrCancelled
	}
}

// run executes worker on its own goroutine and applies its outcome to e,
// but only if e is still the cache's current entry — a predecessor that
// finishes after being preempted must never touch its successor.
func (c *SingleflightCache) run(e *entry, worker Worker) {
	report := func(message string, percent int) {
		e.broadcaster.Broadcast(message, percent)
	}

	result, err := worker(report, e.cancel)

	c.mu.Lock()
	stillCurrent := c.current == e
	switch {
	case err == nil:
		if stillCurrent {
			e.status = statusComplete
			e.result = result
		}
	case isWorkerCancelled(err):
		if stillCurrent {
			c.current = nil
		}
		// A predecessor that was already replaced leaves no trace: the
		// successor owns the cache entirely.
	default:
		if stillCurrent {
			e.status = statusError
			e.err = err
		}
		// If already replaced, the failure is not cached against the
		// successor (invariant: no cross-contamination on preemption).
	}
	c.mu.Unlock()

	e.fire()
}

func isWorkerCancelled(err error) bool {
	return errors.Is(err, ErrWorkerCancelled)
}
