// Package cputime measures CPU time consumed by the calling OS thread,
// used by the action worker's watcher to enforce CPU-time timeouts
// (spec.md §4.4: "CPU-time measurement per thread... RUSAGE_THREAD").
//
// Go does not expose a stable "current OS thread" handle to user code, so
// every exported function here must be called from a goroutine that has
// already called runtime.LockOSThread — the task thread pool does this
// once per worker goroutine before running any action.
package cputime

import (
	"time"

	"golang.org/x/sys/unix"
)

// Thread returns the CPU time (user+sys) consumed by the calling OS thread
// since it was created. The caller must have called runtime.LockOSThread;
// otherwise the Go runtime may have migrated the goroutine to a different
// thread between the lock and this call, silently invalidating the
// measurement.
func Thread() (time.Duration, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_THREAD, &ru); err != nil {
		return 0, err
	}
	user := time.Duration(ru.Utime.Sec)*time.Second + time.Duration(ru.Utime.Usec)*time.Microsecond
	sys := time.Duration(ru.Stime.Sec)*time.Second + time.Duration(ru.Stime.Usec)*time.Microsecond
	return user + sys, nil
}

// Tracker samples Thread() at construction and reports elapsed CPU time on
// demand, mirroring the wall-clock time.Since pattern the rest of the
// codebase uses.
type Tracker struct {
	start time.Duration
	ok    bool
}

// NewTracker starts tracking CPU time for the calling (locked) OS thread.
// If the underlying syscall fails — e.g. on a platform without
// RUSAGE_THREAD — Elapsed degrades to always returning 0, and the watcher
// falls back to wall-time-only enforcement.
func NewTracker() *Tracker {
	t, err := Thread()
	return &Tracker{start: t, ok: err == nil}
}

// Elapsed returns CPU time consumed since NewTracker was called.
func (t *Tracker) Elapsed() time.Duration {
	if !t.ok {
		return 0
	}
	now, err := Thread()
	if err != nil {
		return 0
	}
	return now - t.start
}

// Available reports whether per-thread CPU time sampling is working on
// this platform/thread.
func (t *Tracker) Available() bool { return t.ok }
