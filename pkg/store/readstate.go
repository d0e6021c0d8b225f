package store

import (
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"harbor/pkg/errs"
)

// MarkRead records that user has read the event. Marking an id the store
// has not seen yet is allowed; the marker takes effect when the event
// arrives.
func MarkRead(user, id string) error {
	if db == nil {
		return errs.ErrStoreUnavailable
	}
	if user == "" || id == "" {
		return fmt.Errorf("mark read: empty user or id")
	}
	v := []byte(fmt.Sprintf("%d", time.Now().Unix()))
	return db.Set(readKey(user, id), v, pebble.NoSync)
}

// MarkUnread clears a read marker.
func MarkUnread(user, id string) error {
	if db == nil {
		return errs.ErrStoreUnavailable
	}
	return db.Delete(readKey(user, id), pebble.NoSync)
}
