package worker

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"harbor/pkg/changes"
	"harbor/pkg/errs"
	"harbor/pkg/ingest"
	"harbor/pkg/logger"
	"harbor/pkg/relay"
	"harbor/pkg/signer"
	"harbor/pkg/subs"
)

const (
	// mailboxDeadline bounds how long a caller waits for the command loop.
	mailboxDeadline = 10 * time.Second
	// shutdownDrain bounds how long queued commands run after stop.
	shutdownDrain = 2 * time.Second

	pageSubPrefix = "page:"
	localRelay    = "local"
)

type command struct {
	fn func()
}

// publishJob is one event handed from the mailbox to the publish
// dispatcher. Signing happens on the dispatcher goroutine so a slow
// remote signer never stalls other mailbox commands.
type publishJob struct {
	ctx context.Context
	ev  *nostr.Event
	res chan publishDispatch
}

type publishDispatch struct {
	sent []string
	err  error
}

// Worker owns the engine's command loop. All mutating operations funnel
// through a single goroutine, so callers never contend on engine state;
// they just wait for their command to be picked up, bounded by the
// mailbox deadline.
type Worker struct {
	pool      *relay.Pool
	queue     *ingest.Queue
	subs      *subs.Manager
	bus       *changes.Bus
	signer    signer.Signer
	publishes *publishTracker

	mu   sync.Mutex
	taps map[string]func([]byte)
	user string

	cmds    chan command
	pubJobs chan *publishJob
	stopped int32
	drained chan struct{}
}

// New wires a worker over the engine's moving parts. Call Run before
// issuing commands.
func New(pool *relay.Pool, queue *ingest.Queue, sm *subs.Manager, bus *changes.Bus, sg signer.Signer) *Worker {
	return &Worker{
		pool:      pool,
		queue:     queue,
		subs:      sm,
		bus:       bus,
		signer:    sg,
		publishes: newPublishTracker(),
		taps:      make(map[string]func([]byte)),
		cmds:      make(chan command, 256),
		pubJobs:   make(chan *publishJob, 64),
		drained:   make(chan struct{}),
	}
}

// Run services the command loop and the inbound router until ctx is
// cancelled, then drains queued commands for a bounded grace period.
// Commands still queued when the drain window closes are rejected with
// ErrWorkerStopped.
func (w *Worker) Run(ctx context.Context) {
	go w.route(ctx)
	go w.publishLoop(ctx)
	for {
		select {
		case cmd := <-w.cmds:
			cmd.fn()
		case <-ctx.Done():
			w.drainAndStop()
			return
		}
	}
}

func (w *Worker) drainAndStop() {
	atomic.StoreInt32(&w.stopped, 1)
	deadline := time.NewTimer(shutdownDrain)
	defer deadline.Stop()
	for {
		select {
		case cmd := <-w.cmds:
			cmd.fn()
		case <-deadline.C:
			close(w.drained)
			return
		default:
			close(w.drained)
			return
		}
	}
}

// do runs fn on the command loop and waits for its result.
func (w *Worker) do(ctx context.Context, fn func() error) error {
	if atomic.LoadInt32(&w.stopped) == 1 {
		return errs.ErrWorkerStopped
	}
	ctx, cancel := context.WithTimeout(ctx, mailboxDeadline)
	defer cancel()

	result := make(chan error, 1)
	cmd := command{fn: func() { result <- fn() }}
	select {
	case w.cmds <- cmd:
	case <-w.drained:
		return errs.ErrWorkerStopped
	case <-ctx.Done():
		return errs.ErrDeadlineExceeded
	}
	select {
	case err := <-result:
		return err
	case <-w.drained:
		return errs.ErrWorkerStopped
	case <-ctx.Done():
		return errs.ErrDeadlineExceeded
	}
}

// SetUser switches the active identity. Existing subscriptions are left
// alone; callers re-acquire the ones that depend on the user.
func (w *Worker) SetUser(ctx context.Context, pubkey string) error {
	return w.do(ctx, func() error {
		w.mu.Lock()
		w.user = pubkey
		w.mu.Unlock()
		logger.Log.Info("user_set", zap.String("pubkey", pubkey))
		return nil
	})
}

// User returns the active identity pubkey.
func (w *Worker) User() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.user
}

// Subscribe registers interest in a named subscription.
func (w *Worker) Subscribe(ctx context.Context, name string, filters []nostr.Filter) error {
	return w.do(ctx, func() error {
		w.subs.Acquire(name, filters)
		return nil
	})
}

// Unsubscribe drops one reference to a named subscription.
func (w *Worker) Unsubscribe(ctx context.Context, name string) error {
	return w.do(ctx, func() error {
		w.subs.Release(name)
		return nil
	})
}

// Refresh atomically replaces a live subscription's filters.
func (w *Worker) Refresh(ctx context.Context, name string, filters []nostr.Filter) error {
	return w.do(ctx, func() error {
		w.subs.Refresh(name, filters)
		return nil
	})
}

// FetchMore opens a one-shot backfill subscription for events older than
// before. It closes itself once every relay reports end of stored events.
func (w *Worker) FetchMore(ctx context.Context, filters []nostr.Filter, before nostr.Timestamp, limit int) (string, error) {
	name := pageSubPrefix + uuid.NewString()
	paged := make([]nostr.Filter, len(filters))
	for i, f := range filters {
		g := f
		until := before
		g.Until = &until
		if limit > 0 {
			g.Limit = limit
		}
		paged[i] = g
	}
	err := w.do(ctx, func() error {
		w.subs.Acquire(name, paged)
		return nil
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

// Publish signs the event, stores it locally, broadcasts it, and waits
// for relay acknowledgements. The event lands in local views immediately;
// the returned result reports how far it got on the network.
//
// The mailbox command only registers the job; signing and broadcasting
// run on the publish dispatcher so a slow signer round trip cannot
// serialize unrelated mailbox commands behind it.
func (w *Worker) Publish(ctx context.Context, ev *nostr.Event) (PublishResult, error) {
	ctx, cancel := context.WithTimeout(ctx, mailboxDeadline)
	defer cancel()

	job := &publishJob{ctx: ctx, ev: ev, res: make(chan publishDispatch, 1)}
	err := w.do(ctx, func() error {
		if ev.CreatedAt == 0 {
			ev.CreatedAt = nostr.Now()
		}
		select {
		case w.pubJobs <- job:
			return nil
		default:
			// Deep dispatcher backlog: nothing queued now could sign and
			// broadcast inside the deadline anyway.
			return errs.ErrDeadlineExceeded
		}
	})
	if err != nil {
		return PublishResult{EventID: ev.ID}, err
	}

	select {
	case d := <-job.res:
		if d.err != nil {
			return PublishResult{EventID: ev.ID}, d.err
		}
		if len(d.sent) == 0 {
			return PublishResult{EventID: ev.ID}, errs.ErrPublishRejected
		}
		return w.publishes.wait(ev.ID)
	case <-w.drained:
		return PublishResult{EventID: ev.ID}, errs.ErrWorkerStopped
	case <-ctx.Done():
		return PublishResult{EventID: ev.ID}, errs.ErrDeadlineExceeded
	}
}

// publishLoop is the dedicated dispatcher: it signs, self-ingests, and
// broadcasts queued publishes one at a time until ctx ends.
func (w *Worker) publishLoop(ctx context.Context) {
	for {
		select {
		case job := <-w.pubJobs:
			job.res <- w.broadcast(job.ctx, job.ev)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) broadcast(ctx context.Context, ev *nostr.Event) publishDispatch {
	if err := w.signer.Sign(ctx, ev); err != nil {
		return publishDispatch{err: err}
	}
	if payload, merr := json.Marshal(ev); merr == nil {
		if qerr := w.queue.TryEnqueue(localRelay, "self", payload); qerr != nil {
			logger.Log.Warn("local_ingest_dropped", zap.String("id", ev.ID), zap.Error(qerr))
		}
	}
	sent := w.pool.Publish(ev)
	if len(sent) > 0 {
		w.publishes.track(ev.ID, sent)
	}
	return publishDispatch{sent: sent}
}

// Stopped reports whether the worker has entered shutdown.
func (w *Worker) Stopped() bool { return atomic.LoadInt32(&w.stopped) == 1 }
