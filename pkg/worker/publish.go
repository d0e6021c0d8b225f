package worker

import (
	"sync"
	"time"

	"harbor/pkg/errs"
)

const publishTimeout = 10 * time.Second

// PublishResult reports per-relay acceptance for one published event.
type PublishResult struct {
	EventID  string
	Accepted []string
	// Rejected maps relay to the reason it gave.
	Rejected map[string]string
	// Pending lists relays that never answered before the deadline.
	Pending []string
}

type pendingPublish struct {
	sent     map[string]struct{}
	accepted []string
	rejected map[string]string
	done     chan struct{}
}

// publishTracker correlates OK frames with in-flight publishes by event
// id. One publish may wait on several relays; the waiter is released when
// every relay has answered or the deadline passes.
type publishTracker struct {
	mu      sync.Mutex
	pending map[string]*pendingPublish
}

func newPublishTracker() *publishTracker {
	return &publishTracker{pending: make(map[string]*pendingPublish)}
}

// track registers an in-flight publish to the given relays.
func (t *publishTracker) track(eventID string, relays []string) {
	p := &pendingPublish{
		sent:     make(map[string]struct{}, len(relays)),
		rejected: make(map[string]string),
		done:     make(chan struct{}),
	}
	for _, r := range relays {
		p.sent[r] = struct{}{}
	}
	t.mu.Lock()
	t.pending[eventID] = p
	t.mu.Unlock()
}

// handleOK records one relay's verdict. OK frames for unknown events (for
// example re-broadcast acknowledgements after a timeout) are ignored.
func (t *publishTracker) handleOK(relay, eventID string, accepted bool, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[eventID]
	if !ok {
		return
	}
	if _, awaited := p.sent[relay]; !awaited {
		return
	}
	delete(p.sent, relay)
	if accepted {
		p.accepted = append(p.accepted, relay)
	} else {
		p.rejected[relay] = message
	}
	if len(p.sent) == 0 {
		close(p.done)
	}
}

// wait blocks until every relay answered or the publish deadline passes,
// then settles the result. Total rejection is ErrPublishRejected; any mix
// of missing or refused acknowledgements with at least one acceptance is
// ErrPublishPartial.
func (t *publishTracker) wait(eventID string) (PublishResult, error) {
	t.mu.Lock()
	p, ok := t.pending[eventID]
	t.mu.Unlock()
	if !ok {
		return PublishResult{EventID: eventID}, errs.ErrPublishRejected
	}

	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
	}

	t.mu.Lock()
	delete(t.pending, eventID)
	res := PublishResult{EventID: eventID, Accepted: p.accepted, Rejected: p.rejected}
	for r := range p.sent {
		res.Pending = append(res.Pending, r)
	}
	t.mu.Unlock()

	switch {
	case len(res.Accepted) == 0:
		return res, errs.ErrPublishRejected
	case len(res.Rejected) > 0 || len(res.Pending) > 0:
		return res, errs.ErrPublishPartial
	default:
		return res, nil
	}
}
