package notify

import (
	"log"

	"github.com/sweeney/garden-pump/internal/intent"
)

// ringBuffer is a fixed-capacity FIFO holding pump events while the
// broker is unreachable. Not safe for concurrent use — caller must
// synchronize.
type ringBuffer struct {
	buf      []intent.Event
	capacity int
	head     int // next write position
	count    int
	overflow bool // true if any event was dropped since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		buf:      make([]intent.Event, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) push(event intent.Event) {
	if r.count == r.capacity {
		if !r.overflow {
			log.Printf("notify: buffer full (%d events), dropping oldest", r.capacity)
			r.overflow = true
		}
		// Overwrite oldest: head is already pointing at it
		r.buf[r.head] = event
		r.head = (r.head + 1) % r.capacity
		return
	}
	r.buf[r.head] = event
	r.head = (r.head + 1) % r.capacity
	r.count++
}

func (r *ringBuffer) drainAll() []intent.Event {
	if r.count == 0 {
		return nil
	}

	result := make([]intent.Event, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}

	r.count = 0
	r.head = 0
	r.overflow = false
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}
