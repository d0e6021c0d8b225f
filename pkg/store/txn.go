package store

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/pebble"
	"github.com/nbd-wtf/go-nostr"

	"harbor/pkg/errs"
	"harbor/pkg/models"
)

// reader is satisfied by both *pebble.DB and *pebble.Snapshot.
type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

// ReadTxn is a snapshot-consistent read transaction. It sees a fixed view
// of the store, unaffected by concurrent writers, until Close.
type ReadTxn struct {
	snap *pebble.Snapshot
}

// BeginRead opens a snapshot read transaction. Callers must Close it.
func BeginRead() (*ReadTxn, error) {
	if db == nil {
		return nil, errs.ErrStoreUnavailable
	}
	return &ReadTxn{snap: db.NewSnapshot()}, nil
}

// Close releases the snapshot.
func (t *ReadTxn) Close() error { return t.snap.Close() }

// GetByID returns the stored event with the given id.
func (t *ReadTxn) GetByID(id string) (*nostr.Event, error) {
	return getEvent(t.snap, id)
}

// GetActiveByAddress returns the active (newest) event for an address
// slot, applying the (created_at, id) ordering with id as tiebreaker.
func (t *ReadTxn) GetActiveByAddress(addr models.Address) (*nostr.Event, error) {
	v, closer, err := t.snap.Get(addrKey(addr))
	if err == pebble.ErrNotFound {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	_, id, ok := decodeActive(v)
	_ = closer.Close()
	if !ok {
		return nil, fmt.Errorf("%w: active pointer for %s", errs.ErrCorruptIndex, addr)
	}
	return getEvent(t.snap, id)
}

// ActiveAddresses iterates every active pointer of the given kind.
func (t *ReadTxn) ActiveAddresses(kind int) ([]models.Address, error) {
	prefix := []byte(fmt.Sprintf("addr:%d:", kind))
	iter, err := t.snap.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Address
	for iter.First(); iter.Valid(); iter.Next() {
		coord := string(iter.Key()[len("addr:"):])
		addr, perr := models.ParseAddress(coord)
		if perr != nil {
			continue
		}
		out = append(out, addr)
	}
	return out, iter.Error()
}

// IDsReferencing returns the ids of events carrying a tag (letter, value),
// newest first.
func (t *ReadTxn) IDsReferencing(letter, value string) ([]string, error) {
	prefix := []byte("idx:tag:" + letter + ":" + value + ":")
	return scanIndexDesc(t.snap, prefix, 0, 0, 0)
}

// IsRead reports whether user has marked the event read.
func (t *ReadTxn) IsRead(user, id string) bool {
	if user == "" {
		return false
	}
	_, closer, err := t.snap.Get(readKey(user, id))
	if err != nil {
		return false
	}
	_ = closer.Close()
	return true
}

func getEvent(r reader, id string) (*nostr.Event, error) {
	v, closer, err := r.Get(eventKey(id))
	if err == pebble.ErrNotFound {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var ev nostr.Event
	if err := json.Unmarshal(v, &ev); err != nil {
		return nil, fmt.Errorf("%w: event %s: %v", errs.ErrCorruptIndex, id, err)
	}
	return &ev, nil
}

// scanIndexDesc walks an index prefix newest-first, honoring since/until
// bounds (0 means unbounded) and limit (0 means unlimited).
func scanIndexDesc(r reader, prefix []byte, since, until nostr.Timestamp, limit int) ([]string, error) {
	lower := append([]byte(nil), prefix...)
	upper := prefixUpperBound(prefix)
	if since > 0 {
		lower = append(append([]byte(nil), prefix...), []byte(fmt.Sprintf("%010d:", int64(since)))...)
	}
	if until > 0 {
		upper = append(append([]byte(nil), prefix...), []byte(fmt.Sprintf("%010d:", int64(until)+1))...)
	}
	iter, err := r.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.Last(); iter.Valid(); iter.Prev() {
		if id := idFromIndexKey(iter.Key()); id != "" {
			out = append(out, id)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}
