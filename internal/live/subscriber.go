package live

import (
	"context"
	"sync"

	"github.com/tourneyforge/livebracket/internal/wire"
)

// SubscriberID identifies one subscription within a LiveBracket's
// lifetime. Never reused.
type SubscriberID uint64

// queueEntry is either a real event or a Lagged marker. Giving the
// marker its own slot — instead of a side "pending" flag Pop only
// checks once the queue empties — lets it surface at its correct FIFO
// position even when the queue never fully drains (spec §8 S5).
type queueEntry struct {
	evt wire.Event
	lag bool
}

// Subscriber is a bounded, single-producer/single-consumer event
// mailbox (spec §4.4): the LiveBracket actor is the sole producer
// (push), a session's write pump is the sole consumer (Pop). Overflow
// drops the oldest queued real event and, the first time that happens
// since the last delivered Lagged, inserts a Lagged marker right
// there in the queue, so a consumer draining concurrently with the
// producer still observes it promptly instead of only once the queue
// happens to go empty. Later overflows keep dropping the oldest real
// event, including those queued ahead of the marker, so a consumer
// that does not drain during a burst receives the single Lagged first
// and then the newest cap events.
type Subscriber struct {
	id  SubscriberID
	cap int

	mu    sync.Mutex
	queue []queueEntry

	notify chan struct{} // capacity 1; wakes a blocked Pop
}

func newSubscriber(id SubscriberID, capacity int) *Subscriber {
	if capacity <= 0 {
		capacity = 1
	}
	return &Subscriber{id: id, cap: capacity, notify: make(chan struct{}, 1)}
}

// push enqueues evt, reporting whether doing so dropped an older
// event. Called only from the owning LiveBracket's actor goroutine.
func (s *Subscriber) push(evt wire.Event) (dropped bool) {
	s.mu.Lock()
	if s.realCount() >= s.cap {
		dropped = true
		hadMarker := s.hasMarker()
		s.dropOldestReal()
		if !hadMarker {
			s.queue = append(s.queue, queueEntry{lag: true})
		}
	}
	s.queue = append(s.queue, queueEntry{evt: evt})
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return dropped
}

// realCount counts queued entries that are not the Lagged marker.
// Must be called with mu held.
func (s *Subscriber) realCount() int {
	n := 0
	for _, e := range s.queue {
		if !e.lag {
			n++
		}
	}
	return n
}

// hasMarker reports whether a Lagged marker is already queued,
// awaiting delivery. Must be called with mu held.
func (s *Subscriber) hasMarker() bool {
	for _, e := range s.queue {
		if e.lag {
			return true
		}
	}
	return false
}

// dropOldestReal removes the oldest non-marker entry, leaving an
// already-queued marker untouched so it keeps its place in line
// instead of being evicted before it is ever delivered. Must be
// called with mu held.
func (s *Subscriber) dropOldestReal() {
	for i, e := range s.queue {
		if !e.lag {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// Pop blocks until an event is available or ctx is done.
func (s *Subscriber) Pop(ctx context.Context) (wire.Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			e := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			if e.lag {
				return wire.ErrorEvent{Kind: wire.ErrKindLagged}, nil
			}
			return e.evt, nil
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
