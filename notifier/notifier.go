package notifier

import (
	"sync"
)

// Notifier wakes subscribers when new data is available. A wake-up carries
// no payload: subscribers re-read whatever they follow, so a missed signal
// never loses data, it only coalesces with the next one.
type Notifier struct {
	mu          sync.Mutex
	subscribers map[chan struct{}]struct{}
}

func New() *Notifier {
	return &Notifier{
		subscribers: make(map[chan struct{}]struct{}),
	}
}

func (n *Notifier) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subscribers[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Calling it twice for the same channel
// is a no-op.
func (n *Notifier) Unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subscribers[ch]; !ok {
		return
	}
	delete(n.subscribers, ch)
	close(ch)
}

func (n *Notifier) NotifyAll() {
	n.mu.Lock()
	for ch := range n.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// a wake-up is already pending
		}
	}
	n.mu.Unlock()
}

func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subscribers)
}
