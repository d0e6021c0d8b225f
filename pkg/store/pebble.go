package store

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"harbor/pkg/errs"
	"harbor/pkg/logger"
	"harbor/pkg/metrics"
	"harbor/pkg/models"
)

var (
	db     *pebble.DB
	dbPath string
	halted int32
)

// Open opens (or creates) the pebble database under dir and keeps a
// package handle. The directory is owned by the process.
func Open(dir string) error {
	var err error
	logger.Log.Info("opening_event_store", zap.String("path", dir))
	db, err = pebble.Open(dir, &pebble.Options{})
	if err != nil {
		logger.Log.Error("event_store_open_failed", zap.String("path", dir), zap.Error(err))
		return err
	}
	dbPath = dir
	atomic.StoreInt32(&halted, 0)
	metrics.StoreHalted.Set(0)
	return nil
}

// Close closes the store if open.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Log.Info("event_store_closed")
	return nil
}

// Ready reports whether the store is open and not halted.
func Ready() bool {
	return db != nil && atomic.LoadInt32(&halted) == 0
}

// Halted reports whether ingestion writes are suspended on a store failure.
func Halted() bool { return atomic.LoadInt32(&halted) == 1 }

// Recover probes the store after a failure. A successful probe write
// clears the halted state.
func Recover() error {
	if db == nil {
		if dbPath == "" {
			return errs.ErrStoreUnavailable
		}
		if err := Open(dbPath); err != nil {
			return fmt.Errorf("%w: reopen failed: %v", errs.ErrStoreUnavailable, err)
		}
	}
	probe := []byte(fmt.Sprintf("meta:probe:%d", time.Now().UnixNano()))
	if err := db.Set(probe, []byte{1}, pebble.Sync); err != nil {
		return fmt.Errorf("%w: probe failed: %v", errs.ErrStoreUnavailable, err)
	}
	_ = db.Delete(probe, pebble.NoSync)
	atomic.StoreInt32(&halted, 0)
	metrics.StoreHalted.Set(0)
	logger.Log.Info("event_store_recovered")
	return nil
}

func markHalted(err error) {
	atomic.StoreInt32(&halted, 1)
	metrics.StoreHalted.Set(1)
	logger.Log.Error("event_store_halted", zap.Error(err))
}

// HasEvent reports whether an event id is stored. Readable while halted.
func HasEvent(id string) (bool, error) {
	if db == nil {
		return false, errs.ErrStoreUnavailable
	}
	_, closer, err := db.Get(eventKey(id))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = closer.Close()
	return true, nil
}

// NoteProvenance records that relay delivered the (already stored) event.
// Provenance rows are advisory; failures are logged and swallowed.
func NoteProvenance(id, relay string) {
	if db == nil || relay == "" {
		return
	}
	v := fmt.Sprintf("%d", time.Now().Unix())
	if err := db.Set(provKey(id, relay), []byte(v), pebble.NoSync); err != nil {
		logger.Log.Debug("provenance_write_failed", zap.String("id", id), zap.Error(err))
	}
}

// RelaysSeen lists the relays that have delivered the event.
func RelaysSeen(id string) ([]string, error) {
	if db == nil {
		return nil, errs.ErrStoreUnavailable
	}
	prefix := []byte("prov:" + id + ":")
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.First(); iter.Valid(); iter.Next() {
		out = append(out, string(iter.Key()[len(prefix):]))
	}
	return out, iter.Error()
}

// CommitBatch durably writes the staged events and their index rows in one
// atomic batch, updating active address pointers for addressed kinds. A
// failed commit is retried once; a second failure halts the store and
// surfaces ErrStoreUnavailable.
func CommitBatch(events []*nostr.Event, relayByID map[string]string) error {
	if db == nil || Halted() {
		return errs.ErrStoreUnavailable
	}
	if len(events) == 0 {
		return nil
	}
	batch := db.NewBatch()
	defer batch.Close()

	// Best (created_at, id) per address within this batch, seeded from the
	// current pointers so older replaceable events never win.
	best := make(map[models.Address]struct {
		ts nostr.Timestamp
		id string
	})
	for _, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.ID, err)
		}
		if err := batch.Set(eventKey(ev.ID), raw, nil); err != nil {
			return err
		}
		if err := batch.Set(kindIndexKey(ev.Kind, ev.CreatedAt, ev.ID), nil, nil); err != nil {
			return err
		}
		if err := batch.Set(authorIndexKey(ev.PubKey, ev.CreatedAt, ev.ID), nil, nil); err != nil {
			return err
		}
		for letter, values := range indexedTagLetters(ev) {
			for _, v := range values {
				if err := batch.Set(tagIndexKey(letter, v, ev.CreatedAt, ev.ID), nil, nil); err != nil {
					return err
				}
			}
		}
		if relay := relayByID[ev.ID]; relay != "" {
			v := fmt.Sprintf("%d", time.Now().Unix())
			if err := batch.Set(provKey(ev.ID, relay), []byte(v), nil); err != nil {
				return err
			}
		}
		addr, ok := models.EventAddress(ev)
		if !ok {
			continue
		}
		if err := batch.Set(addrIndexKey(addr, ev.CreatedAt, ev.ID), nil, nil); err != nil {
			return err
		}
		cur, seen := best[addr]
		if !seen {
			if ts, id, ok := currentActive(addr); ok {
				cur.ts, cur.id = ts, id
				seen = true
			}
		}
		if !seen || ev.CreatedAt > cur.ts || (ev.CreatedAt == cur.ts && ev.ID > cur.id) {
			best[addr] = struct {
				ts nostr.Timestamp
				id string
			}{ev.CreatedAt, ev.ID}
		} else {
			best[addr] = cur
		}
	}
	for addr, b := range best {
		if err := batch.Set(addrKey(addr), encodeActive(b.ts, b.id), nil); err != nil {
			return err
		}
	}

	err := batch.Commit(pebble.Sync)
	if err != nil {
		logger.Log.Warn("commit_retry", zap.Int("events", len(events)), zap.Error(err))
		err = batch.Commit(pebble.Sync)
	}
	if err != nil {
		markHalted(err)
		return fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	metrics.CommitBatchSize.Observe(float64(len(events)))
	return nil
}

func currentActive(addr models.Address) (nostr.Timestamp, string, bool) {
	v, closer, err := db.Get(addrKey(addr))
	if err != nil {
		return 0, "", false
	}
	ts, id, ok := decodeActive(v)
	_ = closer.Close()
	return ts, id, ok
}

// DeleteEvent removes an event and all of its index rows. If the event is
// the active record for its address, the pointer is rewound to the next
// best stored event (or removed).
func DeleteEvent(id string) error {
	if db == nil {
		return errs.ErrStoreUnavailable
	}
	v, closer, err := db.Get(eventKey(id))
	if err == pebble.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	var ev nostr.Event
	uerr := json.Unmarshal(v, &ev)
	_ = closer.Close()
	if uerr != nil {
		return fmt.Errorf("%w: event %s: %v", errs.ErrCorruptIndex, id, uerr)
	}

	batch := db.NewBatch()
	defer batch.Close()
	_ = batch.Delete(eventKey(id), nil)
	_ = batch.Delete(kindIndexKey(ev.Kind, ev.CreatedAt, ev.ID), nil)
	_ = batch.Delete(authorIndexKey(ev.PubKey, ev.CreatedAt, ev.ID), nil)
	for letter, values := range indexedTagLetters(&ev) {
		for _, val := range values {
			_ = batch.Delete(tagIndexKey(letter, val, ev.CreatedAt, ev.ID), nil)
		}
	}
	if addr, ok := models.EventAddress(&ev); ok {
		_ = batch.Delete(addrIndexKey(addr, ev.CreatedAt, ev.ID), nil)
		if _, curID, ok := currentActive(addr); ok && curID == id {
			if ts, nid, found := nextActiveAfterDelete(addr, id); found {
				_ = batch.Set(addrKey(addr), encodeActive(ts, nid), nil)
			} else {
				_ = batch.Delete(addrKey(addr), nil)
			}
		}
	}
	provPrefix := []byte("prov:" + id + ":")
	_ = batch.DeleteRange(provPrefix, prefixUpperBound(provPrefix), nil)
	return batch.Commit(pebble.Sync)
}

// nextActiveAfterDelete finds the newest remaining event for addr other
// than excludeID.
func nextActiveAfterDelete(addr models.Address, excludeID string) (nostr.Timestamp, string, bool) {
	prefix := []byte(fmt.Sprintf("idx:addr:%d:%s:%s:", addr.Kind, addr.Pubkey, addr.D))
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return 0, "", false
	}
	defer iter.Close()
	for iter.Last(); iter.Valid(); iter.Prev() {
		id := idFromIndexKey(iter.Key())
		if id == "" || id == excludeID {
			continue
		}
		return tsFromIndexKey(iter.Key()), id, true
	}
	return 0, "", false
}
