package changes

import (
	"encoding/json"
	"sort"

	"harbor/pkg/models"
)

// ChangeSet is one coalesced batch of committed-event notifications. The
// Events slice preserves commit order; the touched sets tell consumers
// which views need recomputation without walking every event.
type ChangeSet struct {
	Events []models.DataChange

	Projects map[string]struct{}
	Threads  map[string]struct{}
	Authors  map[string]struct{}
	Kinds    map[int]struct{}
}

func newChangeSet() *ChangeSet {
	return &ChangeSet{
		Projects: make(map[string]struct{}),
		Threads:  make(map[string]struct{}),
		Authors:  make(map[string]struct{}),
		Kinds:    make(map[int]struct{}),
	}
}

func (cs *ChangeSet) add(dc models.DataChange) {
	cs.Events = append(cs.Events, dc)
	if dc.ProjectAddress != "" {
		cs.Projects[dc.ProjectAddress] = struct{}{}
	}
	if dc.Kind == models.KindProject && !dc.Address.IsZero() {
		cs.Projects[dc.Address.String()] = struct{}{}
	}
	if dc.ThreadID != "" {
		cs.Threads[dc.ThreadID] = struct{}{}
	}
	cs.Authors[dc.Author] = struct{}{}
	cs.Kinds[dc.Kind] = struct{}{}
}

// merge folds old into cs, keeping old's events first so commit order is
// preserved across a lossy merge.
func merge(old, cs *ChangeSet) *ChangeSet {
	out := newChangeSet()
	for _, dc := range old.Events {
		out.add(dc)
	}
	for _, dc := range cs.Events {
		out.add(dc)
	}
	return out
}

// Len returns the number of event notifications in the set.
func (cs *ChangeSet) Len() int { return len(cs.Events) }

// TouchesProject reports whether the set includes activity for the
// project address.
func (cs *ChangeSet) TouchesProject(addr string) bool {
	_, ok := cs.Projects[addr]
	return ok
}

// TouchesThread reports whether the set includes activity in the thread.
func (cs *ChangeSet) TouchesThread(threadID string) bool {
	_, ok := cs.Threads[threadID]
	return ok
}

// TouchesKind reports whether the set includes any event of the kind.
func (cs *ChangeSet) TouchesKind(kind int) bool {
	_, ok := cs.Kinds[kind]
	return ok
}

type changeSetWire struct {
	Events   []models.DataChange `json:"events"`
	Projects []string            `json:"projects,omitempty"`
	Threads  []string            `json:"threads,omitempty"`
	Authors  []string            `json:"authors,omitempty"`
	Kinds    []int               `json:"kinds,omitempty"`
}

// MarshalJSON renders the set for embedding callers, with touched sets as
// sorted arrays so output is deterministic.
func (cs *ChangeSet) MarshalJSON() ([]byte, error) {
	w := changeSetWire{
		Events:   cs.Events,
		Projects: sortedKeys(cs.Projects),
		Threads:  sortedKeys(cs.Threads),
		Authors:  sortedKeys(cs.Authors),
	}
	for k := range cs.Kinds {
		w.Kinds = append(w.Kinds, k)
	}
	sort.Ints(w.Kinds)
	return json.Marshal(w)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
