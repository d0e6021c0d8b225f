package relay

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"harbor/pkg/logger"
	"harbor/pkg/metrics"
)

// Quarantine policy: a relay whose rejected-event rate exceeds 1% over one
// minute, or that delivers 100 consecutive bad-signature events, is
// quarantined for 5 minutes. No subscriptions are opened on a quarantined
// relay; other relays are unaffected.
const (
	quarantineWindow      = time.Minute
	quarantineRatio       = 0.01
	quarantineMinEvents   = 100
	quarantineConsecutive = 100
	quarantineDuration    = 5 * time.Minute
)

type relayHealth struct {
	windowStart    time.Time
	total          int
	rejected       int
	consecutiveBad int
	quarantinedTil time.Time
}

// healthTracker accumulates validation outcomes per relay and decides
// quarantine state. The ingestion pipeline reports outcomes; the pool
// consults Quarantined before opening subscriptions or reconnecting.
type healthTracker struct {
	mu     sync.Mutex
	relays map[string]*relayHealth
	now    func() time.Time
}

func newHealthTracker() *healthTracker {
	return &healthTracker{relays: make(map[string]*relayHealth), now: time.Now}
}

func (h *healthTracker) get(relay string) *relayHealth {
	rh, ok := h.relays[relay]
	if !ok {
		rh = &relayHealth{windowStart: h.now()}
		h.relays[relay] = rh
	}
	return rh
}

func (h *healthTracker) roll(rh *relayHealth, now time.Time) {
	if now.Sub(rh.windowStart) >= quarantineWindow {
		rh.windowStart = now
		rh.total = 0
		rh.rejected = 0
	}
}

// ReportAccepted records a validated event from relay.
func (h *healthTracker) ReportAccepted(relay string) {
	if relay == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	rh := h.get(relay)
	h.roll(rh, h.now())
	rh.total++
	rh.consecutiveBad = 0
}

// ReportRejected records a validation failure from relay; badSignature
// feeds the consecutive-bad-signature trip wire.
func (h *healthTracker) ReportRejected(relay string, badSignature bool) {
	if relay == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	rh := h.get(relay)
	h.roll(rh, now)
	rh.total++
	rh.rejected++
	if badSignature {
		rh.consecutiveBad++
	} else {
		rh.consecutiveBad = 0
	}

	tripped := rh.consecutiveBad >= quarantineConsecutive ||
		(rh.total >= quarantineMinEvents && float64(rh.rejected)/float64(rh.total) > quarantineRatio)
	if tripped && now.After(rh.quarantinedTil) {
		rh.quarantinedTil = now.Add(quarantineDuration)
		rh.consecutiveBad = 0
		rh.rejected = 0
		rh.total = 0
		metrics.RelayQuarantines.WithLabelValues(relay).Inc()
		logger.Log.Warn("relay_quarantined",
			zap.String("relay", relay),
			zap.Duration("for", quarantineDuration))
	}
}

// Quarantined reports whether the relay is currently quarantined.
func (h *healthTracker) Quarantined(relay string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	rh, ok := h.relays[relay]
	return ok && h.now().Before(rh.quarantinedTil)
}
