package relay

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"harbor/pkg/logger"
	"harbor/pkg/metrics"
)

// State is a relay connection's lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateDraining
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateDraining:
		return "draining"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// InboundKind discriminates pool surface messages.
type InboundKind int

const (
	InboundEvent InboundKind = iota
	InboundEOSE
	InboundNotice
	InboundOK
	InboundState
)

// Inbound is a message surfaced by the pool. Events are raw bytes plus the
// subscription name that produced them; the pool never parses or validates
// event payloads.
type Inbound struct {
	Relay    string
	Kind     InboundKind
	Sub      string
	Raw      []byte
	Text     string
	EventID  string
	Accepted bool
	State    State
}

const (
	connInboundBuffer = 1024
	connWriteBuffer   = 64
	writeDeadline     = 10 * time.Second
)

type conn struct {
	url  string
	pool *Pool

	mu    sync.Mutex
	ws    *websocket.Conn
	state State

	writeCh chan []byte
	inbound chan Inbound
}

func newConn(url string, p *Pool) *conn {
	return &conn{
		url:     url,
		pool:    p,
		state:   StateDisconnected,
		writeCh: make(chan []byte, connWriteBuffer),
		inbound: make(chan Inbound, connInboundBuffer),
	}
}

func (c *conn) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev == s {
		return
	}
	metrics.RelayState.WithLabelValues(c.url, prev.String()).Set(0)
	metrics.RelayState.WithLabelValues(c.url, s.String()).Set(1)
	c.push(Inbound{Relay: c.url, Kind: InboundState, State: s})
}

func (c *conn) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// push queues an inbound message and wakes the pool drainer. The queue is
// bounded; the socket read loop blocks when it fills, which is the
// backpressure the round-robin drain relies on.
func (c *conn) push(msg Inbound) {
	select {
	case c.inbound <- msg:
	default:
		// Queue full: state and notice churn is droppable, events and OK
		// results are not. Blocking here is the backpressure that pairs
		// with the round-robin drain; bail out if the pool is closing.
		if msg.Kind == InboundEvent || msg.Kind == InboundEOSE || msg.Kind == InboundOK {
			select {
			case c.inbound <- msg:
			case <-c.pool.done:
			}
		}
	}
	c.pool.wakeDrainer()
}

// send queues a frame for the write loop. Returns false when the write
// queue is full or the connection is not open.
func (c *conn) send(data []byte) bool {
	if c.currentState() != StateOpen {
		return false
	}
	select {
	case c.writeCh <- data:
		return true
	default:
		metrics.ProtocolErrors.WithLabelValues("write_queue_full").Inc()
		return false
	}
}

// run owns the connection lifecycle: dial, read loop, reconnect with
// jittered backoff, quarantine gating.
func (c *conn) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}
		if c.pool.health.Quarantined(c.url) {
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			continue
		}

		c.setState(StateConnecting)
		if err := c.pool.dialLimiter.Wait(ctx); err != nil {
			return
		}
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.setState(StateFailed)
			logger.Log.Debug("relay_dial_failed", zap.String("relay", c.url), zap.Error(err))
			attempt++
			select {
			case <-time.After(backoffDelay(attempt)):
			case <-ctx.Done():
				return
			}
			continue
		}

		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		c.setState(StateOpen)
		openedAt := time.Now()
		logger.Log.Info("relay_connected", zap.String("relay", c.url))
		c.pool.onOpen(c)

		writerDone := make(chan struct{})
		go c.writeLoop(ctx, ws, writerDone)

		readErr := c.readLoop(ctx, ws)
		_ = ws.Close()
		<-writerDone

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}
		c.setState(StateFailed)
		logger.Log.Warn("relay_disconnected", zap.String("relay", c.url), zap.Error(readErr))
		if time.Since(openedAt) >= backoffReset {
			attempt = 0
		}
		attempt++
		select {
		case <-time.After(backoffDelay(attempt)):
		case <-ctx.Done():
			return
		}
	}
}

func (c *conn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		f, derr := decodeFrame(data)
		if derr != nil {
			// Bad frame: drop it, count it, keep the connection.
			metrics.ProtocolErrors.WithLabelValues("bad_frame").Inc()
			logger.Log.Debug("relay_bad_frame", zap.String("relay", c.url), zap.Error(derr))
			continue
		}
		switch f.Kind {
		case "EVENT":
			metrics.RelayEvents.WithLabelValues(c.url).Inc()
			c.push(Inbound{Relay: c.url, Kind: InboundEvent, Sub: f.Sub, Raw: f.Raw})
		case "EOSE":
			c.push(Inbound{Relay: c.url, Kind: InboundEOSE, Sub: f.Sub})
		case "NOTICE":
			c.push(Inbound{Relay: c.url, Kind: InboundNotice, Text: f.Text})
		case "OK":
			c.push(Inbound{Relay: c.url, Kind: InboundOK, EventID: f.EventID, Accepted: f.Accepted, Text: f.Text})
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *conn) writeLoop(ctx context.Context, ws *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case data := <-c.writeCh:
			_ = ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Log.Debug("relay_write_failed", zap.String("relay", c.url), zap.Error(err))
				return
			}
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}
