package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"harbor/pkg/models"
	"harbor/pkg/store"
)

type fakeHealth struct {
	mu       sync.Mutex
	accepted map[string]int
	rejected map[string]int
	badSigs  map[string]int
}

func newFakeHealth() *fakeHealth {
	return &fakeHealth{
		accepted: map[string]int{},
		rejected: map[string]int{},
		badSigs:  map[string]int{},
	}
}

func (f *fakeHealth) ReportAccepted(relay string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted[relay]++
}

func (f *fakeHealth) ReportRejected(relay string, badSignature bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected[relay]++
	if badSignature {
		f.badSigs[relay]++
	}
}

func (f *fakeHealth) counts(relay string) (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepted[relay], f.rejected[relay], f.badSigs[relay]
}

func openTestStore(t *testing.T) {
	t.Helper()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { _ = store.Close() })
}

func signedEvent(t *testing.T, sk string, kind int, content string, tags nostr.Tags, ts nostr.Timestamp) *nostr.Event {
	t.Helper()
	if tags == nil {
		tags = nostr.Tags{}
	}
	ev := &nostr.Event{Kind: kind, Content: content, Tags: tags, CreatedAt: ts}
	require.NoError(t, ev.Sign(sk))
	return ev
}

func payload(t *testing.T, ev *nostr.Event) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

type collected struct {
	mu      sync.Mutex
	changes []models.DataChange
}

func (c *collected) emit(dc models.DataChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, dc)
}

func (c *collected) snapshot() []models.DataChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.DataChange(nil), c.changes...)
}

func runPipeline(t *testing.T, q *Queue, health HealthReporter, emit func(models.DataChange)) (stop func()) {
	t.Helper()
	p := NewPipeline(q, health, emit, 128, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestPipelineCommitsValidEvent(t *testing.T) {
	openTestStore(t)
	sk := nostr.GeneratePrivateKey()
	ev := signedEvent(t, sk, models.KindMessage, "hello", nostr.Tags{{"a", "31933:x:y"}}, nostr.Now())

	q := NewQueue(16)
	health := newFakeHealth()
	var col collected
	stop := runPipeline(t, q, health, col.emit)

	require.NoError(t, q.TryEnqueue("wss://r1", "sub", payload(t, ev)))
	require.Eventually(t, func() bool {
		ok, _ := store.HasEvent(ev.ID)
		return ok
	}, time.Second, 5*time.Millisecond)
	stop()

	changes := col.snapshot()
	require.Len(t, changes, 1)
	require.Equal(t, ev.ID, changes[0].ID)
	require.Equal(t, ev.ID, changes[0].ThreadID)
	require.Equal(t, "31933:x:y", changes[0].ProjectAddress)

	acc, rej, _ := health.counts("wss://r1")
	require.Equal(t, 1, acc)
	require.Zero(t, rej)

	relays, err := store.RelaysSeen(ev.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"wss://r1"}, relays)
}

func TestPipelineRejectsTamperedContent(t *testing.T) {
	openTestStore(t)
	sk := nostr.GeneratePrivateKey()
	ev := signedEvent(t, sk, models.KindMessage, "original", nil, nostr.Now())
	ev.Content = "tampered"
	ev.ID = ev.GetID() // id consistent, signature now stale

	q := NewQueue(16)
	health := newFakeHealth()
	var col collected
	stop := runPipeline(t, q, health, col.emit)

	require.NoError(t, q.TryEnqueue("wss://r1", "sub", payload(t, ev)))
	require.Eventually(t, func() bool {
		_, rej, _ := health.counts("wss://r1")
		return rej == 1
	}, time.Second, 5*time.Millisecond)
	stop()

	_, _, badSigs := health.counts("wss://r1")
	require.Equal(t, 1, badSigs)
	ok, _ := store.HasEvent(ev.ID)
	require.False(t, ok)
	require.Empty(t, col.snapshot())
}

func TestPipelineRejectsWrongID(t *testing.T) {
	openTestStore(t)
	sk := nostr.GeneratePrivateKey()
	ev := signedEvent(t, sk, models.KindMessage, "hello", nil, nostr.Now())
	tampered := *ev
	tampered.Content = "altered" // id no longer matches serialization

	q := NewQueue(16)
	health := newFakeHealth()
	stop := runPipeline(t, q, health, nil)

	require.NoError(t, q.TryEnqueue("wss://r1", "sub", payload(t, &tampered)))
	require.Eventually(t, func() bool {
		_, rej, _ := health.counts("wss://r1")
		return rej == 1
	}, time.Second, 5*time.Millisecond)
	stop()

	_, _, badSigs := health.counts("wss://r1")
	require.Zero(t, badSigs)
}

func TestPipelineRejectsGarbage(t *testing.T) {
	openTestStore(t)
	q := NewQueue(16)
	health := newFakeHealth()
	stop := runPipeline(t, q, health, nil)

	require.NoError(t, q.TryEnqueue("wss://r1", "sub", []byte("not json")))
	require.Eventually(t, func() bool {
		_, rej, _ := health.counts("wss://r1")
		return rej == 1
	}, time.Second, 5*time.Millisecond)
	stop()
}

func TestPipelineFutureDatedNotHeldAgainstRelay(t *testing.T) {
	openTestStore(t)
	sk := nostr.GeneratePrivateKey()
	future := nostr.Timestamp(time.Now().Add(time.Hour).Unix())
	ev := signedEvent(t, sk, models.KindMessage, "from the future", nil, future)

	q := NewQueue(16)
	health := newFakeHealth()
	var col collected
	stop := runPipeline(t, q, health, col.emit)

	require.NoError(t, q.TryEnqueue("wss://r1", "sub", payload(t, ev)))
	time.Sleep(50 * time.Millisecond)
	stop()

	ok, _ := store.HasEvent(ev.ID)
	require.False(t, ok)
	acc, rej, _ := health.counts("wss://r1")
	require.Zero(t, acc)
	require.Zero(t, rej)
	require.Empty(t, col.snapshot())
}

func TestPipelineDuplicateRecordsProvenance(t *testing.T) {
	openTestStore(t)
	sk := nostr.GeneratePrivateKey()
	ev := signedEvent(t, sk, models.KindMessage, "hello", nil, nostr.Now())

	q := NewQueue(16)
	health := newFakeHealth()
	var col collected
	stop := runPipeline(t, q, health, col.emit)

	require.NoError(t, q.TryEnqueue("wss://r1", "sub", payload(t, ev)))
	require.Eventually(t, func() bool {
		ok, _ := store.HasEvent(ev.ID)
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, q.TryEnqueue("wss://r2", "sub", payload(t, ev)))
	require.Eventually(t, func() bool {
		acc, _, _ := health.counts("wss://r2")
		return acc == 1
	}, time.Second, 5*time.Millisecond)
	stop()

	// One change for two deliveries.
	require.Len(t, col.snapshot(), 1)
	relays, err := store.RelaysSeen(ev.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"wss://r1", "wss://r2"}, relays)
}

func TestRunStopsPromptlyWhenStoreIsDown(t *testing.T) {
	// Open then break the store so commits and recovery probes keep
	// failing: the reopen path finds a plain file where the db dir was.
	dir := filepath.Join(t.TempDir(), "store")
	require.NoError(t, store.Open(dir))
	require.NoError(t, store.Close())
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o600))

	sk := nostr.GeneratePrivateKey()
	ev := signedEvent(t, sk, models.KindMessage, "doomed", nil, nostr.Now())

	q := NewQueue(4)
	p := NewPipeline(q, newFakeHealth(), nil, 128, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.NoError(t, q.TryEnqueue("wss://r1", "sub", payload(t, ev)))
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2*shutdownFlushWindow + time.Second):
		t.Fatal("pipeline did not stop after cancellation with the store down")
	}
	require.Empty(t, p.staged)
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.TryEnqueue("wss://r1", "sub", []byte("{}")))
	err := q.TryEnqueue("wss://r1", "sub", []byte("{}"))
	require.Error(t, err)
	q.Close()
}

func TestQueueCloseReleasesItems(t *testing.T) {
	q := NewQueue(4)
	require.NoError(t, q.TryEnqueue("wss://r1", "sub", []byte("{}")))
	q.Close()
	require.Error(t, q.TryEnqueue("wss://r1", "sub", []byte("{}")))
}
