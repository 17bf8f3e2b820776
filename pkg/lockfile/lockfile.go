package lockfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/serverkit/pkg/log"
	"github.com/cuemby/serverkit/pkg/metrics"
)

// pollInterval is how often wait-for-lock re-checks the marker file to
// cover the cross-process case, where the in-process notifier can't
// possibly fire.
const pollInterval = 3 * time.Second

type state int

const (
	stateAvailable state = iota
	stateAvailableInstance
	stateLockedSelf
	stateLockedDifferent
)

// Locker owns the in-process bookkeeping for advisory locks: which
// paths this process currently holds, and who's waiting on which. It
// is an explicit collaborator, not global state — callers construct
// one via NewLocker and hold onto it, the same way Resolver and
// Prober are constructed rather than read from package globals.
type Locker struct {
	mu       sync.Mutex
	held     map[string]bool
	notifier *notifier
}

// NewLocker constructs a Locker with no paths held.
func NewLocker() *Locker {
	return &Locker{
		held:     make(map[string]bool),
		notifier: newNotifier(),
	}
}

// Handle represents ownership of a lock acquired by Lock. It becomes
// invalid after a successful Unlock; calling Unlock again is a no-op.
type Handle struct {
	locker *Locker
	path   string
	uuid   string
	mu     sync.Mutex
	done   bool
}

// Lock acquires an advisory cross-process lock on path, creating the
// marker file if necessary. It blocks until the lock is available,
// polling every three seconds to catch releases by other processes and
// waking immediately on releases by this process.
func (l *Locker) Lock(ctx context.Context, path string) (*Handle, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("lockfile: normalize path: %w", err)
	}

	logger := log.WithComponent("lockfile")
	start := time.Now()

	for {
		st, _, err := check(path, "")
		if err != nil {
			return nil, err
		}

		if st == stateAvailable {
			h, acquired, err := l.tryAcquire(path)
			if err != nil {
				return nil, err
			}
			if acquired {
				metrics.LockWaitDuration.Observe(time.Since(start).Seconds())
				return h, nil
			}
			// Lost the race to another goroutine/process; fall through to wait.
		}

		logger.Debug().Str("path", path).Msg("waiting for lock")
		if err := l.waitForRelease(ctx, path); err != nil {
			return nil, err
		}
	}
}

// tryAcquire creates the lock under the locker's mutex, re-checking
// first so that two goroutines racing to create the same path don't
// both believe they won.
func (l *Locker) tryAcquire(path string) (*Handle, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[path] {
		return nil, false, nil
	}

	st, _, err := check(path, "")
	if err != nil {
		return nil, false, err
	}
	if st != stateAvailable {
		return nil, false, nil
	}

	id := uuid.New().String()
	record := fmt.Sprintf("%d %s", os.Getpid(), id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, fmt.Errorf("lockfile: create lock directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(record), 0o644); err != nil {
		return nil, false, fmt.Errorf("lockfile: write lock file: %w", err)
	}

	l.held[path] = true
	return &Handle{locker: l, path: path, uuid: id}, true, nil
}

func (l *Locker) waitForRelease(ctx context.Context, path string) error {
	ch, cancel := l.notifier.subscribe(path)
	defer cancel()

	timer := time.NewTimer(pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	case <-timer.C:
		return nil
	}
}

// Unlock releases h. It is safe to call more than once; only the first
// call has any effect.
func (h *Handle) Unlock() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return nil
	}

	l := h.locker
	l.mu.Lock()
	defer l.mu.Unlock()

	st, _, err := check(h.path, h.uuid)
	if err != nil {
		return err
	}

	switch st {
	case stateAvailableInstance:
		if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("lockfile: remove lock file: %w", err)
		}
	case stateAvailable:
		// Someone else already cleaned up the marker; nothing to do.
	default:
		return fmt.Errorf("lockfile: cannot unlock %s: not the current owner", h.path)
	}

	delete(l.held, h.path)
	h.done = true
	l.notifier.notify(h.path)
	return nil
}

// check reads path's marker and classifies it. If ownUUID is non-empty
// and the marker belongs to our pid with a matching uuid, it reports
// stateAvailableInstance (used only during unlock to validate ownership
// without racing a concurrent re-lock of the same path by us).
func check(path, ownUUID string) (state, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return stateAvailable, "", nil
		}
		return stateAvailable, "", nil
	}

	pid, id, ok := parseRecord(string(data))
	if !ok {
		return stateAvailable, "", nil
	}

	if !pidAlive(pid) {
		return stateAvailable, "", nil
	}

	if pid == os.Getpid() {
		if ownUUID != "" && id == ownUUID {
			return stateAvailableInstance, id, nil
		}
		return stateLockedSelf, id, nil
	}

	return stateLockedDifferent, id, nil
}

func parseRecord(contents string) (pid int, id string, ok bool) {
	fields := strings.Fields(contents)
	if len(fields) != 2 {
		return 0, "", false
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", false
	}
	return pid, fields[1], true
}

// pidAlive reports whether pid refers to a live process by sending it
// the null signal. Any error, including "process doesn't exist" and
// "not ours to signal", is treated as not-alive, per the same logic a
// stale lock should be reclaimed on either condition.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil
}
