package changes

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"harbor/pkg/logger"
)

// Callback receives one encoded ChangeSet. Callbacks run on the notifier
// goroutine and must not block; hand off to a channel for slow work.
type Callback func(payload []byte)

// Notifier bridges the bus to host callbacks that want JSON instead of
// channels. Each registered callback sees every ChangeSet the notifier's
// own bus subscription sees, already encoded.
type Notifier struct {
	bus *Bus

	mu     sync.Mutex
	cbs    map[int]Callback
	nextID int
}

func NewNotifier(bus *Bus) *Notifier {
	return &Notifier{bus: bus, cbs: make(map[int]Callback)}
}

// Register adds a callback and returns an idempotent remove function.
func (n *Notifier) Register(cb Callback) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.cbs[id] = cb
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.cbs, id)
			n.mu.Unlock()
		})
	}
}

// Run consumes the bus and fans encoded sets out to callbacks until ctx is
// cancelled.
func (n *Notifier) Run(ctx context.Context) {
	ch, cancel := n.bus.Subscribe()
	defer cancel()
	for {
		select {
		case cs := <-ch:
			payload, err := json.Marshal(cs)
			if err != nil {
				logger.Log.Warn("changeset_encode_failed", zap.Error(err))
				continue
			}
			n.mu.Lock()
			cbs := make([]Callback, 0, len(n.cbs))
			for _, cb := range n.cbs {
				cbs = append(cbs, cb)
			}
			n.mu.Unlock()
			for _, cb := range cbs {
				cb(payload)
			}
		case <-ctx.Done():
			return
		}
	}
}
