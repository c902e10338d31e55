package session

import (
	"sync"

	"github.com/collabforge/core/internal/metrics"
	"github.com/collabforge/core/internal/ot"
)

// DefaultBufferSize is the default per-subscriber channel capacity,
// configurable by callers that need a different backpressure threshold.
const DefaultBufferSize = 1000

// Event is what a subscriber receives: either a newly applied operation or a
// terminal lag/close signal.
type Event struct {
	Op     ot.Operation
	Lagged bool
	Closed bool
}

// Subscription is a live subscriber handle. Consume Events from C until
// Closed is observed or the channel itself closes.
type Subscription struct {
	C      <-chan Event
	id     uint64
	cancel func()
}

// Unsubscribe detaches this subscription; the underlying channel is closed.
func (s *Subscription) Unsubscribe() {
	if s.cancel != nil {
		s.cancel()
	}
}

type sub struct {
	userID string
	ch     chan Event
}

// broadcaster is a bounded multi-subscriber fan-out. Delivery is best-effort:
// a subscriber whose buffer is full is dropped with an explicit terminal
// "Lagged" event rather than a silent drop. Subscribing a fresh subscriber
// never replays past events (late-join safety): clients reconcile via
// detectConflicts.
type broadcaster struct {
	mu     sync.Mutex
	next   uint64
	buffer int
	subs   map[uint64]sub
	closed bool
}

func newBroadcaster(bufferSize int) *broadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &broadcaster{buffer: bufferSize, subs: make(map[uint64]sub)}
}

// subscribe registers a new subscriber for userID. A submit by this userID
// never delivers to this subscription — the author already has the op's
// effect reflected locally before submitting.
func (b *broadcaster) subscribe(userID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return &Subscription{C: ch, id: id}
	}
	b.subs[id] = sub{userID: userID, ch: ch}

	s := &Subscription{C: ch, id: id}
	s.cancel = func() { b.unsubscribe(id) }
	return s
}

func (b *broadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(s.ch)
	}
}

// publish delivers op to every subscriber except one belonging to author —
// exactly one delivery attempt per subscriber that is not the author.
// publish itself takes only the broadcaster's short internal lock while
// iterating subscribers; Session.submit calls it after the version
// increment while still holding the session's own mu.
func (b *broadcaster) publish(author string, op ot.Operation) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, s := range b.subs {
		if s.userID == author {
			continue
		}
		select {
		case s.ch <- Event{Op: op}:
		default:
			// Buffer full: this subscriber is dropped, not silently skipped.
			// Deliver a terminal Lagged event before closing its stream.
			select {
			case s.ch <- Event{Lagged: true}:
			default:
			}
			close(s.ch)
			delete(b.subs, id)
			metrics.Get().BroadcastDropsTotal.Inc()
		}
	}
}

// close terminates every subscriber with a Closed event and tears down the
// broadcaster; no further subscribe calls will see a live channel.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		select {
		case s.ch <- Event{Closed: true}:
		default:
		}
		close(s.ch)
		delete(b.subs, id)
	}
}
