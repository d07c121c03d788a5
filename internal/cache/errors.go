package cache

import "errors"

// ErrCancelled is raised by Submit when the calling submission's entry was
// replaced by a different key, or cancelled through CancelCurrent, before
// the worker finished. It is never
// cached: a cancelled entry leaves no residue on the cache.
var ErrCancelled = errors.New("cache: build was replaced before completion")

// WorkerError wraps the error a worker returned. It is cached on the
// entry for the lifetime of that entry (until replaced) and re-raised to
// every submission currently joined to it.
type WorkerError struct {
	Err error
}

func (e *WorkerError) Error() string { return e.Err.Error() }

func (e *WorkerError) Unwrap() error { return e.Err }

// ErrWorkerCancelled is the sentinel a Worker should return (wrapped or
// bare) to indicate it stopped because its CancelToken was set, as
// opposed to failing outright. Submit translates this into ErrCancelled
// for callers and never caches it as a WorkerError.
var ErrWorkerCancelled = errors.New("cache: worker stopped: cancel token was set")
