package worker

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"harbor/pkg/logger"
	"harbor/pkg/relay"
)

// route fans the pool's inbound stream out to its consumers: raw events to
// the ingestion queue, EOSE to the subscription manager, OK frames to the
// publish tracker. Taps registered for a subscription see raw event
// payloads before ingestion and are used for signer traffic.
func (w *Worker) route(ctx context.Context) {
	for {
		select {
		case msg := <-w.pool.Events():
			w.dispatch(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) dispatch(msg relay.Inbound) {
	switch msg.Kind {
	case relay.InboundEvent:
		if tap := w.tapFor(msg.Sub); tap != nil {
			tap(msg.Raw)
			return
		}
		if err := w.queue.TryEnqueue(msg.Relay, msg.Sub, msg.Raw); err != nil {
			logger.Log.Debug("enqueue_dropped",
				zap.String("relay", msg.Relay),
				zap.String("sub", msg.Sub),
				zap.Error(err))
		}
	case relay.InboundEOSE:
		w.subs.HandleEOSE(msg.Relay, msg.Sub)
		w.maybeFinishPage(msg.Sub)
	case relay.InboundOK:
		w.publishes.handleOK(msg.Relay, msg.EventID, msg.Accepted, msg.Text)
	case relay.InboundNotice:
		logger.Log.Info("relay_notice",
			zap.String("relay", msg.Relay),
			zap.String("text", msg.Text))
	case relay.InboundState:
		logger.Log.Debug("relay_state",
			zap.String("relay", msg.Relay),
			zap.String("state", msg.State.String()))
	}
}

// RegisterTap routes raw event payloads for a subscription to fn instead
// of the ingestion queue.
func (w *Worker) RegisterTap(sub string, fn func(raw []byte)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.taps[sub] = fn
}

// UnregisterTap removes a tap.
func (w *Worker) UnregisterTap(sub string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.taps, sub)
}

func (w *Worker) tapFor(sub string) func([]byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.taps[sub]
}

// maybeFinishPage releases a backfill subscription once every relay has
// replayed it.
func (w *Worker) maybeFinishPage(sub string) {
	if !strings.HasPrefix(sub, pageSubPrefix) {
		return
	}
	if w.subs.Settled(sub) {
		w.subs.Release(sub)
	}
}
