package notify

import (
	"log"
	"sync"

	"github.com/sweeney/garden-pump/internal/intent"
)

// DefaultBufferCapacity bounds the offline event backlog.
const DefaultBufferCapacity = 64

// BufferedPublisher wraps a Publisher and holds events while the broker
// is unreachable. A failed publish is stored, not lost; the backlog is
// replayed in order before the next event that succeeds.
type BufferedPublisher struct {
	mu      sync.Mutex
	inner   Publisher
	pending *ringBuffer
}

// NewBufferedPublisher wraps inner with an offline buffer. capacity <= 0
// uses DefaultBufferCapacity.
func NewBufferedPublisher(inner Publisher, capacity int) *BufferedPublisher {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &BufferedPublisher{
		inner:   inner,
		pending: newRingBuffer(capacity),
	}
}

// Publish replays any backlog, then sends the event. On failure the
// event joins the backlog and nil is returned; buffering is the error
// handling.
func (b *BufferedPublisher) Publish(event intent.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	backlog := b.pending.drainAll()
	for i, queued := range backlog {
		if err := b.inner.Publish(queued); err != nil {
			// Broker still down: requeue the rest and stop replaying.
			for _, rest := range backlog[i:] {
				b.pending.push(rest)
			}
			b.pending.push(event)
			log.Printf("notify: broker unreachable, %d event(s) buffered", b.pending.len())
			return nil
		}
	}

	if err := b.inner.Publish(event); err != nil {
		b.pending.push(event)
		log.Printf("notify: broker unreachable, %d event(s) buffered", b.pending.len())
	}
	return nil
}

// PublishSystem sends lifecycle events straight through; they are
// timely or worthless.
func (b *BufferedPublisher) PublishSystem(event SystemEvent) error {
	return b.inner.PublishSystem(event)
}

// Pending reports the buffered event count.
func (b *BufferedPublisher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.len()
}

// Close disconnects the underlying publisher.
func (b *BufferedPublisher) Close() error {
	return b.inner.Close()
}
