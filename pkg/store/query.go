package store

import (
	"fmt"
	"sort"

	"github.com/nbd-wtf/go-nostr"
)

// Query evaluates the relay filter grammar against the transaction's
// snapshot. Multiple filters form a disjunction; results are deduped by id
// and returned in descending (created_at, id). limit 0 means unlimited.
func (t *ReadTxn) Query(filters []nostr.Filter, limit int) ([]*nostr.Event, error) {
	seen := make(map[string]struct{})
	var out []*nostr.Event
	for i := range filters {
		ids, err := t.candidateIDs(&filters[i])
		if err != nil {
			return nil, err
		}
		// Candidate ids are only descending per index value; merge every
		// value's matches before applying the filter's limit so the
		// newest-N selection is global, not per value.
		local := make(map[string]struct{}, len(ids))
		var matched []*nostr.Event
		for _, id := range ids {
			if _, dup := local[id]; dup {
				continue
			}
			local[id] = struct{}{}
			ev, err := t.GetByID(id)
			if err != nil {
				// Index rows may outlive a deleted event briefly; skip.
				continue
			}
			if !filters[i].Matches(ev) {
				continue
			}
			matched = append(matched, ev)
		}
		sortEventsDesc(matched)
		if filters[i].Limit > 0 && len(matched) > filters[i].Limit {
			matched = matched[:filters[i].Limit]
		}
		for _, ev := range matched {
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}
			out = append(out, ev)
		}
	}
	sortEventsDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortEventsDesc(events []*nostr.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID > events[j].ID
	})
}

// candidateIDs picks the most selective populated field of the filter and
// scans its index; the full filter is re-checked by Matches afterwards.
func (t *ReadTxn) candidateIDs(f *nostr.Filter) ([]string, error) {
	var since, until nostr.Timestamp
	if f.Since != nil {
		since = *f.Since
	}
	if f.Until != nil {
		until = *f.Until
	}

	if len(f.IDs) > 0 {
		return f.IDs, nil
	}
	if len(f.Tags) > 0 {
		for letter, values := range f.Tags {
			if len(letter) != 1 || len(values) == 0 {
				continue
			}
			var ids []string
			for _, v := range values {
				prefix := []byte("idx:tag:" + letter + ":" + v + ":")
				got, err := scanIndexDesc(t.snap, prefix, since, until, 0)
				if err != nil {
					return nil, err
				}
				ids = append(ids, got...)
			}
			return ids, nil
		}
	}
	if len(f.Authors) > 0 {
		var ids []string
		for _, a := range f.Authors {
			prefix := []byte("idx:author:" + a + ":")
			got, err := scanIndexDesc(t.snap, prefix, since, until, 0)
			if err != nil {
				return nil, err
			}
			ids = append(ids, got...)
		}
		return ids, nil
	}
	if len(f.Kinds) > 0 {
		var ids []string
		for _, k := range f.Kinds {
			prefix := []byte(fmt.Sprintf("idx:kind:%05d:", k))
			got, err := scanIndexDesc(t.snap, prefix, since, until, 0)
			if err != nil {
				return nil, err
			}
			ids = append(ids, got...)
		}
		return ids, nil
	}
	// Unselective filter: walk the primary namespace.
	return t.allIDs()
}

func (t *ReadTxn) allIDs() ([]string, error) {
	prefix := []byte("evt:")
	iter, err := t.snap.NewIter(nil)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		k := iter.Key()
		if len(k) < len(prefix) || string(k[:len(prefix)]) != "evt:" {
			break
		}
		out = append(out, string(k[len(prefix):]))
	}
	return out, iter.Error()
}
