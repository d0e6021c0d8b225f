package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"harbor/pkg/errs"
	"harbor/pkg/logger"
	"harbor/pkg/metrics"
	"harbor/pkg/models"
	"harbor/pkg/store"
)

// Validation order: parse, id recomputation, signature, future-dated gate,
// duplicate check. Each failure counts against the producing relay's
// quarantine ledger except future-dated, which is rejected but only logged.
const (
	futureSkew    = 15 * time.Minute
	probeInterval = time.Second
	// shutdownFlushWindow bounds the final commit attempt on shutdown.
	shutdownFlushWindow = 2 * time.Second
)

// HealthReporter receives per-relay validation outcomes. Satisfied by
// *relay.Pool.
type HealthReporter interface {
	ReportAccepted(relay string)
	ReportRejected(relay string, badSignature bool)
}

// Pipeline validates raw events off the queue and commits them to the
// store in bounded batches, emitting one change notification per committed
// event in commit order.
type Pipeline struct {
	queue  *Queue
	health HealthReporter
	emit   func(models.DataChange)

	maxBatch      int
	flushInterval time.Duration
	now           func() time.Time

	staged    []*nostr.Event
	stagedIDs map[string]struct{}
	relayByID map[string]string
}

// NewPipeline wires a pipeline. emit may be nil during tests; health must
// not be.
func NewPipeline(q *Queue, health HealthReporter, emit func(models.DataChange), maxBatch int, flushInterval time.Duration) *Pipeline {
	if maxBatch <= 0 {
		maxBatch = 128
	}
	if flushInterval <= 0 {
		flushInterval = 50 * time.Millisecond
	}
	if emit == nil {
		emit = func(models.DataChange) {}
	}
	return &Pipeline{
		queue:         q,
		health:        health,
		emit:          emit,
		maxBatch:      maxBatch,
		flushInterval: flushInterval,
		now:           time.Now,
		stagedIDs:     make(map[string]struct{}),
		relayByID:     make(map[string]string),
	}
}

// Run consumes the queue until ctx is cancelled, flushing staged events
// when a batch fills or the flush interval elapses. On return any staged
// events get a final flush attempt.
func (p *Pipeline) Run(ctx context.Context) {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case it, ok := <-p.queue.Out():
			if !ok {
				p.finalFlush()
				return
			}
			p.ingest(it)
			if len(p.staged) >= p.maxBatch {
				p.flush(ctx)
			}
		case <-ticker.C:
			p.flush(ctx)
		case <-ctx.Done():
			p.finalFlush()
			return
		}
	}
}

// ingest validates one raw event and stages it. The pooled buffer is
// released here; staged events own their decoded copies.
func (p *Pipeline) ingest(it *Item) {
	defer it.Done()
	relay := it.Raw.Relay

	ev, err := p.validate(it.Raw.Payload)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrDuplicate):
			// Seen before: remember the extra provenance, no reprocessing.
			metrics.EventsDuplicate.Inc()
			store.NoteProvenance(ev.ID, relay)
			p.health.ReportAccepted(relay)
		case errors.Is(err, errs.ErrFutureDated):
			// Clock skew beyond tolerance. Rejected but not held against
			// the relay, which is only the messenger here.
			metrics.EventsRejected.WithLabelValues("future_dated").Inc()
			logger.Log.Debug("event_future_dated",
				zap.String("id", ev.ID),
				zap.String("relay", relay),
				zap.Int64("created_at", int64(ev.CreatedAt)))
		default:
			metrics.EventsRejected.WithLabelValues(rejectReason(err)).Inc()
			p.health.ReportRejected(relay, errors.Is(err, errs.ErrBadSignature))
			logger.Log.Debug("event_rejected",
				zap.String("relay", relay),
				zap.Error(err))
		}
		return
	}

	if _, dup := p.stagedIDs[ev.ID]; dup {
		metrics.EventsDuplicate.Inc()
		p.health.ReportAccepted(relay)
		return
	}
	p.staged = append(p.staged, ev)
	p.stagedIDs[ev.ID] = struct{}{}
	p.relayByID[ev.ID] = relay
	p.health.ReportAccepted(relay)
}

// validate parses and checks a raw payload. For duplicate events the
// parsed event is returned alongside ErrDuplicate so the caller can record
// provenance.
func (p *Pipeline) validate(payload []byte) (*nostr.Event, error) {
	var ev nostr.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, errs.ErrMalformedEvent
	}
	if len(ev.ID) != 64 || len(ev.PubKey) != 64 || len(ev.Sig) != 128 {
		return nil, errs.ErrMalformedEvent
	}
	if ev.GetID() != ev.ID {
		return nil, errs.ErrBadID
	}
	if ok, err := ev.CheckSignature(); err != nil || !ok {
		return nil, errs.ErrBadSignature
	}
	if ev.CreatedAt.Time().After(p.now().Add(futureSkew)) {
		return &ev, errs.ErrFutureDated
	}
	if dup, err := store.HasEvent(ev.ID); err == nil && dup {
		return &ev, errs.ErrDuplicate
	}
	return &ev, nil
}

// flush commits the staged batch. A store failure halts the pipeline here
// until a recovery probe succeeds; staged events are held, not dropped.
func (p *Pipeline) flush(ctx context.Context) {
	if len(p.staged) == 0 {
		return
	}
	for {
		err := store.CommitBatch(p.staged, p.relayByID)
		if err == nil {
			break
		}
		logger.Log.Error("commit_failed", zap.Int("batch", len(p.staged)), zap.Error(err))
		if !p.awaitRecovery(ctx) {
			return
		}
	}

	metrics.EventsIngested.Add(float64(len(p.staged)))
	for _, ev := range p.staged {
		p.emit(changeFor(ev))
	}
	p.staged = p.staged[:0]
	p.stagedIDs = make(map[string]struct{})
	p.relayByID = make(map[string]string)
}

// finalFlush gives staged events one bounded chance to commit on the way
// out. Events still staged when the window closes are dropped; relays
// re-deliver stored events on the next start, so the loss is freshness,
// not data.
func (p *Pipeline) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushWindow)
	defer cancel()
	p.flush(ctx)
	if n := len(p.staged); n > 0 {
		logger.Log.Warn("staged_events_dropped", zap.Int("count", n))
		p.staged = nil
		p.stagedIDs = make(map[string]struct{})
		p.relayByID = make(map[string]string)
	}
}

// awaitRecovery probes the store until a write succeeds or ctx ends.
func (p *Pipeline) awaitRecovery(ctx context.Context) bool {
	t := time.NewTicker(probeInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := store.Recover(); err == nil {
				logger.Log.Info("store_recovered", zap.Int("held", len(p.staged)))
				return true
			}
		case <-ctx.Done():
			logger.Log.Warn("shutdown_with_staged_events", zap.Int("held", len(p.staged)))
			return false
		}
	}
}

func changeFor(ev *nostr.Event) models.DataChange {
	ch := models.DataChange{
		Kind:   ev.Kind,
		ID:     ev.ID,
		Author: ev.PubKey,
	}
	if addr, ok := models.EventAddress(ev); ok {
		ch.Address = addr
	}
	if models.IsMessageKind(ev.Kind) {
		if root := models.RootRef(ev); root != "" {
			ch.ThreadID = root
		} else {
			ch.ThreadID = ev.ID
		}
	}
	ch.ProjectAddress = models.ProjectATag(ev)
	return ch
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, errs.ErrMalformedEvent):
		return "malformed"
	case errors.Is(err, errs.ErrBadID):
		return "bad_id"
	case errors.Is(err, errs.ErrBadSignature):
		return "bad_signature"
	default:
		return "other"
	}
}
