package views

import (
	"time"

	"github.com/nbd-wtf/go-nostr"

	"harbor/pkg/models"
	"harbor/pkg/store"
)

// statusStaleAfter bounds how long a status snapshot counts as live.
// Backends republish well inside this window, so a snapshot older than it
// means the backend is gone, not quiet.
const statusStaleAfter = 5 * time.Minute

// GetProjectStatus returns the newest status snapshot referencing the
// project, or nil when none has been seen. Status events are ephemeral at
// the relay but persisted locally so a snapshot survives restarts until
// retention expires it.
func GetProjectStatus(txn *store.ReadTxn, projectAddr string) (*models.ProjectStatus, error) {
	events, err := txn.Query([]nostr.Filter{{
		Kinds: []int{models.KindStatus},
		Tags:  nostr.TagMap{"a": []string{projectAddr}},
		Limit: 1,
	}}, 1)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if st, ok := models.StatusFromEvent(ev); ok {
			return &st, nil
		}
	}
	return nil, nil
}

// StatusIsStale reports whether a snapshot is too old to describe a live
// backend.
func StatusIsStale(st *models.ProjectStatus, now time.Time) bool {
	return st == nil || now.Sub(st.CreatedAt.Time()) > statusStaleAfter
}

// GetOnlineAgents returns the agents listed in the project's latest
// status, PM first. A stale snapshot yields no agents; everyone it listed
// is presumed offline.
func GetOnlineAgents(txn *store.ReadTxn, projectAddr string, now time.Time) ([]models.StatusAgent, error) {
	st, err := GetProjectStatus(txn, projectAddr)
	if err != nil {
		return nil, err
	}
	if StatusIsStale(st, now) {
		return nil, nil
	}
	return st.Agents, nil
}
