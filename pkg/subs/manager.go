package subs

import (
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"harbor/pkg/logger"
)

// releaseGrace keeps a zero-refcount subscription open briefly so a view
// that is immediately re-opened (tab switches, quick navigation) does not
// tear down and replay its relay subscription.
const releaseGrace = 2 * time.Second

// Transport is the slice of the relay pool the manager drives. Satisfied
// by *relay.Pool.
type Transport interface {
	OpenSubscription(id string, filters []nostr.Filter)
	CloseSubscription(id string)
	Relays() []string
}

type entry struct {
	refs    int
	filters []nostr.Filter
	// settled records which relays have sent EOSE for this subscription
	// since it was last (re)opened.
	settled map[string]bool
	release *time.Timer
}

// Manager tracks logical subscriptions by name, refcounts interest in
// them, and keeps relay-side REQs in sync. Multiple views sharing a name
// share one relay subscription.
type Manager struct {
	mu        sync.Mutex
	transport Transport
	subs      map[string]*entry
	grace     time.Duration
}

func NewManager(t Transport) *Manager {
	return &Manager{transport: t, subs: make(map[string]*entry), grace: releaseGrace}
}

// Acquire registers interest in a named subscription. The first acquirer
// opens it on the relays; later acquirers just bump the refcount. Filters
// from later acquirers are ignored while the subscription is live; use
// Refresh to change them.
func (m *Manager) Acquire(name string, filters []nostr.Filter) {
	m.mu.Lock()
	e, ok := m.subs[name]
	if ok {
		e.refs++
		if e.release != nil {
			e.release.Stop()
			e.release = nil
		}
		m.mu.Unlock()
		return
	}
	e = &entry{refs: 1, filters: filters, settled: make(map[string]bool)}
	m.subs[name] = e
	m.mu.Unlock()

	m.transport.OpenSubscription(name, filters)
	logger.Log.Debug("sub_opened", zap.String("sub", name), zap.Int("filters", len(filters)))
}

// Release drops one reference. When the count reaches zero the relay
// subscription stays open for a short grace period in case the name is
// re-acquired, then closes.
func (m *Manager) Release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.subs[name]
	if !ok || e.refs == 0 {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	e.release = time.AfterFunc(m.grace, func() { m.expire(name) })
}

func (m *Manager) expire(name string) {
	m.mu.Lock()
	e, ok := m.subs[name]
	if !ok || e.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.subs, name)
	m.mu.Unlock()

	m.transport.CloseSubscription(name)
	logger.Log.Debug("sub_closed", zap.String("sub", name))
}

// Refresh atomically replaces a live subscription's filters. Re-sending a
// REQ under the same id replaces the old one relay-side, so there is no
// gap with neither filter set active. Settled state resets.
func (m *Manager) Refresh(name string, filters []nostr.Filter) {
	m.mu.Lock()
	e, ok := m.subs[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	e.filters = filters
	e.settled = make(map[string]bool)
	m.mu.Unlock()

	m.transport.OpenSubscription(name, filters)
}

// HandleEOSE records that a relay finished replaying stored events for a
// subscription.
func (m *Manager) HandleEOSE(relay, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.subs[name]; ok {
		e.settled[relay] = true
	}
}

// Settled reports whether every configured relay has sent EOSE for the
// subscription. With no configured relays a live subscription counts as
// settled.
func (m *Manager) Settled(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.subs[name]
	if !ok {
		return false
	}
	for _, r := range m.transport.Relays() {
		if !e.settled[r] {
			return false
		}
	}
	return true
}

// SettledRelays returns the relays that have sent EOSE for the
// subscription.
func (m *Manager) SettledRelays(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.subs[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(e.settled))
	for r, ok := range e.settled {
		if ok {
			out = append(out, r)
		}
	}
	return out
}

// Active returns the names of live subscriptions, including those inside
// their release grace.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.subs))
	for name := range m.subs {
		out = append(out, name)
	}
	return out
}

// Refs returns the current refcount for a subscription name.
func (m *Manager) Refs(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.subs[name]; ok {
		return e.refs
	}
	return 0
}

// Close tears down every live subscription immediately.
func (m *Manager) Close() {
	m.mu.Lock()
	names := make([]string, 0, len(m.subs))
	for name, e := range m.subs {
		if e.release != nil {
			e.release.Stop()
		}
		names = append(names, name)
	}
	m.subs = make(map[string]*entry)
	m.mu.Unlock()
	for _, name := range names {
		m.transport.CloseSubscription(name)
	}
}
