package relay

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"harbor/pkg/logger"
)

// drainBatch caps events moved per relay per drain iteration so a loud
// relay cannot starve the others.
const drainBatch = 64

const outBuffer = 4096

// Pool maintains websocket connections to the configured relays and
// multiplexes named subscriptions over them. It forwards raw events
// without parsing or validating them.
type Pool struct {
	mu    sync.Mutex
	conns map[string]*conn
	order []string
	// subs is the replay set: logical subscription id -> filters, resent
	// whenever a connection (re)opens.
	subs map[string][]nostr.Filter

	out    chan Inbound
	wake   chan struct{}
	done   chan struct{}
	health *healthTracker

	dialLimiter *rate.Limiter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool over the given relay URLs. Start must be called
// before any subscriptions are opened.
func NewPool(urls []string) *Pool {
	p := &Pool{
		conns:  make(map[string]*conn),
		subs:   make(map[string][]nostr.Filter),
		out:    make(chan Inbound, outBuffer),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		health: newHealthTracker(),
		// One dial per second with small bursts keeps reconnect storms off
		// struggling relays.
		dialLimiter: rate.NewLimiter(rate.Limit(1), 3),
	}
	for _, u := range urls {
		p.conns[u] = newConn(u, p)
		p.order = append(p.order, u)
	}
	return p
}

// Start launches the per-connection socket tasks and the fan-in drainer.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Lock()
	for _, c := range p.conns {
		c := c
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			c.run(ctx)
		}()
	}
	p.mu.Unlock()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.drain(ctx)
	}()
}

// Close tears down every connection and stops the drainer.
func (p *Pool) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	close(p.done)
	p.wg.Wait()
}

// Events is the fan-in surface consumed by the ingestion task.
func (p *Pool) Events() <-chan Inbound { return p.out }

// Relays returns the configured relay URLs.
func (p *Pool) Relays() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

// OpenCount returns the number of currently open connections.
func (p *Pool) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.conns {
		if c.currentState() == StateOpen {
			n++
		}
	}
	return n
}

// OpenSubscription installs a named subscription on every open,
// non-quarantined connection and remembers it for replay on reconnect.
func (p *Pool) OpenSubscription(id string, filters []nostr.Filter) {
	p.mu.Lock()
	p.subs[id] = filters
	conns := p.openConns()
	p.mu.Unlock()

	data, err := encodeReq(id, filters)
	if err != nil {
		logger.Log.Error("encode_req_failed", zap.String("sub", id), zap.Error(err))
		return
	}
	for _, c := range conns {
		if p.health.Quarantined(c.url) {
			continue
		}
		c.send(data)
	}
}

// CloseSubscription closes a named subscription everywhere and drops it
// from the replay set.
func (p *Pool) CloseSubscription(id string) {
	p.mu.Lock()
	delete(p.subs, id)
	conns := p.openConns()
	p.mu.Unlock()

	data, err := encodeClose(id)
	if err != nil {
		return
	}
	for _, c := range conns {
		c.send(data)
	}
}

// Publish queues the signed event on every open, non-quarantined
// connection and returns the relays it was queued to. Acceptance arrives
// asynchronously as OK frames on Events.
func (p *Pool) Publish(ev *nostr.Event) []string {
	data, err := encodeEvent(ev)
	if err != nil {
		logger.Log.Error("encode_event_failed", zap.String("id", ev.ID), zap.Error(err))
		return nil
	}
	p.mu.Lock()
	conns := p.openConns()
	p.mu.Unlock()
	var sent []string
	for _, c := range conns {
		if p.health.Quarantined(c.url) {
			continue
		}
		if c.send(data) {
			sent = append(sent, c.url)
		}
	}
	return sent
}

// ReportAccepted feeds the quarantine tracker with a validation success.
func (p *Pool) ReportAccepted(relay string) { p.health.ReportAccepted(relay) }

// ReportRejected feeds the quarantine tracker with a validation failure.
func (p *Pool) ReportRejected(relay string, badSignature bool) {
	p.health.ReportRejected(relay, badSignature)
}

// Quarantined reports whether a relay is currently quarantined.
func (p *Pool) Quarantined(relay string) bool { return p.health.Quarantined(relay) }

func (p *Pool) openConns() []*conn {
	out := make([]*conn, 0, len(p.order))
	for _, u := range p.order {
		if c := p.conns[u]; c.currentState() == StateOpen {
			out = append(out, c)
		}
	}
	return out
}

// onOpen replays the current subscription set on a freshly opened
// connection.
func (p *Pool) onOpen(c *conn) {
	p.mu.Lock()
	reqs := make([][]byte, 0, len(p.subs))
	for id, filters := range p.subs {
		if data, err := encodeReq(id, filters); err == nil {
			reqs = append(reqs, data)
		}
	}
	p.mu.Unlock()
	for _, data := range reqs {
		c.send(data)
	}
}

func (p *Pool) wakeDrainer() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// drain moves inbound messages from the per-relay queues onto the fan-in
// channel, round-robin across relays, at most drainBatch events per relay
// per iteration.
func (p *Pool) drain(ctx context.Context) {
	for {
		p.mu.Lock()
		order := append([]string(nil), p.order...)
		p.mu.Unlock()

		moved := 0
		for _, u := range order {
			p.mu.Lock()
			c := p.conns[u]
			p.mu.Unlock()
			if c == nil {
				continue
			}
		relayLoop:
			for i := 0; i < drainBatch; i++ {
				select {
				case msg := <-c.inbound:
					select {
					case p.out <- msg:
						moved++
					case <-ctx.Done():
						return
					}
				default:
					break relayLoop
				}
			}
		}
		if moved == 0 {
			select {
			case <-p.wake:
			case <-ctx.Done():
				return
			}
		}
	}
}
