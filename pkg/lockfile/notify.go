package lockfile

import "sync"

// notifier is the in-process half of lock-wait: it lets a goroutine
// blocked in wait-for-lock wake up as soon as the same process releases
// the path it's waiting on, instead of always sleeping out the poll
// interval. Adapted from the publish/subscribe shape of a cluster event
// broker, specialized to a single topic per lock path and to
// fire-and-forget semantics (subscribers that aren't currently
// listening simply miss the notification and fall back to polling).
type notifier struct {
	mu          sync.Mutex
	subscribers map[string][]chan struct{}
}

func newNotifier() *notifier {
	return &notifier{subscribers: make(map[string][]chan struct{})}
}

// subscribe returns a channel that receives one value the next time
// notify(path) is called. Callers must call the returned cancel func
// once they're done waiting, win or lose, to avoid leaking the entry.
func (n *notifier) subscribe(path string) (ch <-chan struct{}, cancel func()) {
	c := make(chan struct{}, 1)
	n.mu.Lock()
	n.subscribers[path] = append(n.subscribers[path], c)
	n.mu.Unlock()

	return c, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subs := n.subscribers[path]
		for i, sub := range subs {
			if sub == c {
				n.subscribers[path] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(n.subscribers[path]) == 0 {
			delete(n.subscribers, path)
		}
	}
}

// notify wakes every subscriber currently waiting on path.
func (n *notifier) notify(path string) {
	n.mu.Lock()
	subs := n.subscribers[path]
	n.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- struct{}{}:
		default:
		}
	}
}
