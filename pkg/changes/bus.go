package changes

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"harbor/pkg/logger"
	"harbor/pkg/metrics"
	"harbor/pkg/models"
)

const (
	defaultCoalesceWindow = 33 * time.Millisecond
	defaultSubscriberCap  = 16
	inBuffer              = 4096
)

type subscriber struct {
	id int
	ch chan *ChangeSet
}

// Bus coalesces committed-event notifications into ChangeSets and fans
// them out to subscribers. A coalesce window opens when the first change
// of a batch arrives and everything landing inside it joins the same set.
//
// Delivery is lossy for slow subscribers: when a subscriber's queue is
// full, the oldest queued set is merged into the incoming one rather than
// blocking ingestion. A subscriber always eventually sees every touched
// set entry, just possibly in fewer, larger batches.
type Bus struct {
	subsMu sync.Mutex
	subs   map[int]*subscriber
	nextID int

	in     chan models.DataChange
	window time.Duration
	cap    int
}

// NewBus creates a bus with the given coalesce window and per-subscriber
// queue capacity. Zero values select defaults.
func NewBus(window time.Duration, subscriberCap int) *Bus {
	if window <= 0 {
		window = defaultCoalesceWindow
	}
	if subscriberCap <= 0 {
		subscriberCap = defaultSubscriberCap
	}
	return &Bus{
		subs:   make(map[int]*subscriber),
		in:     make(chan models.DataChange, inBuffer),
		window: window,
		cap:    subscriberCap,
	}
}

// Publish hands one committed-event notification to the bus. Commit order
// is preserved within the coalesced set. Blocks only if the internal
// buffer fills, which backpressures the ingestion pipeline rather than
// dropping notifications.
func (b *Bus) Publish(dc models.DataChange) {
	b.in <- dc
}

// Subscribe registers a consumer. The returned cancel function is
// idempotent.
func (b *Bus) Subscribe() (<-chan *ChangeSet, func()) {
	b.subsMu.Lock()
	b.nextID++
	s := &subscriber{id: b.nextID, ch: make(chan *ChangeSet, b.cap)}
	b.subs[s.id] = s
	b.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.subsMu.Lock()
			delete(b.subs, s.id)
			b.subsMu.Unlock()
		})
	}
	return s.ch, cancel
}

// Run coalesces and delivers until ctx is cancelled. A pending set is
// flushed on shutdown.
func (b *Bus) Run(ctx context.Context) {
	var pending *ChangeSet
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case dc := <-b.in:
			if pending == nil {
				pending = newChangeSet()
				timer = time.NewTimer(b.window)
				timerC = timer.C
			}
			pending.add(dc)
		case <-timerC:
			b.deliver(pending)
			pending = nil
			timerC = nil
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			if pending != nil {
				b.deliver(pending)
			}
			return
		}
	}
}

func (b *Bus) deliver(cs *ChangeSet) {
	b.subsMu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subsMu.Unlock()

	for _, s := range subs {
		out := cs
		select {
		case s.ch <- out:
			metrics.ChangeSetsDelivered.Inc()
			continue
		default:
		}
		// Slow subscriber: fold its oldest queued set into this one and
		// try again. The second attempt can only fail if the consumer
		// raced a read in between, in which case there is room.
		select {
		case old := <-s.ch:
			out = merge(old, cs)
			metrics.ChangeSetsMerged.Inc()
		default:
		}
		select {
		case s.ch <- out:
			metrics.ChangeSetsDelivered.Inc()
		default:
			logger.Log.Warn("changeset_dropped", zap.Int("subscriber", s.id), zap.Int("events", out.Len()))
		}
	}
}
