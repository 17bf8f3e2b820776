// Package lockfile implements a cross-process advisory lock backed by a
// marker file holding "<pid> <uuid>". Liveness of the owning pid is
// checked with a null signal, so a lock left behind by a process that
// has since died is reclaimed rather than blocking forever.
//
// A Locker owns the in-process half of this: which paths this process
// holds, and who's waiting on which. Callers construct one with
// NewLocker and keep it around rather than relying on package state,
// so two unrelated Lockers never share wait-wakeup bookkeeping even if
// they happen to lock the same path.
//
// Waiters combine the Locker's in-process notifier (instant wakeup
// when this process releases the path) with a periodic poll of the
// marker file (to catch releases by other processes).
package lockfile
