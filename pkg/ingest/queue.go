package ingest

import (
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"harbor/pkg/errs"
	"harbor/pkg/metrics"
)

const fallbackQueueCapacity = 1024

// maxPooledBuffer caps the buffer size returned to the pool so one giant
// event cannot pin memory; larger buffers are left for GC.
var maxPooledBuffer = 256 * 1024

// Raw is an unvalidated event as it arrived off the wire, tagged with the
// relay and logical subscription that produced it.
type Raw struct {
	Relay   string
	Sub     string
	Payload []byte
}

// Item wraps a Raw and owns its pooled buffer. Consumers must call Done
// exactly once when finished with the payload.
type Item struct {
	Raw *Raw

	buf  *bytebufferpool.ByteBuffer
	once sync.Once
}

// Done returns pooled resources. Safe to call more than once.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.buf != nil {
			if cap(it.buf.B) <= maxPooledBuffer {
				bytebufferpool.Put(it.buf)
			}
			it.buf = nil
		}
		if it.Raw != nil {
			it.Raw.Payload = nil
			rawPool.Put(it.Raw)
			it.Raw = nil
		}
	})
}

var rawPool = sync.Pool{New: func() any { return &Raw{} }}

// Queue is the bounded buffer between the relay fan-in and the validation
// pipeline. Single consumer, potentially several producers.
type Queue struct {
	ch       chan *Item
	capacity int
	closed   int32
}

// NewQueue creates a bounded queue; non-positive capacities fall back to a
// default.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = fallbackQueueCapacity
	}
	return &Queue{ch: make(chan *Item, capacity), capacity: capacity}
}

// SetMaxPooledBuffer adjusts the pooled-buffer ceiling. Call at startup,
// before producers exist.
func SetMaxPooledBuffer(n int) {
	if n > 0 {
		maxPooledBuffer = n
	}
}

// Out exposes queued items to the consumer.
func (q *Queue) Out() <-chan *Item { return q.ch }

// TryEnqueue copies the payload into a pooled buffer and queues it without
// blocking. A full queue drops the event and returns ErrQueueFull; relays
// re-deliver stored events on the next subscription refresh, so a drop
// loses freshness, not data.
func (q *Queue) TryEnqueue(relay, sub string, payload []byte) error {
	if atomic.LoadInt32(&q.closed) == 1 {
		return errs.ErrQueueClosed
	}
	raw := rawPool.Get().(*Raw)
	raw.Relay = relay
	raw.Sub = sub

	var bb *bytebufferpool.ByteBuffer
	if len(payload) > 0 {
		bb = bytebufferpool.Get()
		bb.B = append(bb.B[:0], payload...)
		raw.Payload = bb.B[:len(payload)]
	}
	it := &Item{Raw: raw, buf: bb}

	select {
	case q.ch <- it:
		metrics.QueueDepth.Set(float64(len(q.ch)))
		return nil
	default:
		it.Done()
		metrics.QueueDropped.Inc()
		return errs.ErrQueueFull
	}
}

// Close stops producers and drains anything still queued.
func (q *Queue) Close() {
	if !atomic.CompareAndSwapInt32(&q.closed, 0, 1) {
		return
	}
	close(q.ch)
	for it := range q.ch {
		it.Done()
	}
}

// Len returns the current queue depth.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the configured capacity.
func (q *Queue) Cap() int { return q.capacity }
