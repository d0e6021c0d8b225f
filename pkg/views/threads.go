package views

import (
	"sort"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"harbor/pkg/logger"
	"harbor/pkg/models"
	"harbor/pkg/store"
)

const threadTitleMax = 80

// GetThreadsForProject groups the project's messages into threads and
// returns them ordered by last activity, newest first. The time filter
// admits threads by last activity, so an old thread with a fresh reply
// stays visible.
func GetThreadsForProject(txn *store.ReadTxn, projectAddr string, tf models.TimeFilter, now time.Time) ([]models.Thread, error) {
	events, err := txn.Query([]nostr.Filter{{
		Kinds: []int{models.KindMessage, models.KindAgentChatter},
		Tags:  nostr.TagMap{"a": []string{projectAddr}},
	}}, 0)
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(events))
	byID := make(map[string]*models.Message, len(events))
	for _, ev := range events {
		m, ok := models.MessageFromEvent(ev)
		if !ok {
			continue
		}
		msgs = append(msgs, m)
	}
	for i := range msgs {
		byID[msgs[i].ID] = &msgs[i]
	}

	groups := make(map[string][]models.Message)
	for i := range msgs {
		root := resolveRoot(byID, msgs[i].ID)
		msgs[i].ThreadID = root
		groups[root] = append(groups[root], msgs[i])
	}

	var out []models.Thread
	for rootID, members := range groups {
		t := assembleThread(rootID, members, projectAddr)
		if !tf.Admits(t.LastActivity, now) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity != out[j].LastActivity {
			return out[i].LastActivity > out[j].LastActivity
		}
		return out[i].RootID < out[j].RootID
	})
	return out, nil
}

// resolveRoot chases a message's claimed root until it reaches a message
// that claims itself, or an id we have not observed. A reference cycle is
// broken at its smallest member id so every member of the cycle lands in
// the same thread deterministically.
func resolveRoot(byID map[string]*models.Message, id string) string {
	visited := make(map[string]int)
	order := []string{}
	cur := id
	for {
		m, ok := byID[cur]
		if !ok {
			// Root not (yet) observed; group under the referenced id.
			return cur
		}
		if m.ThreadID == cur {
			return cur
		}
		if at, seen := visited[cur]; seen {
			cycle := order[at:]
			min := cycle[0]
			for _, c := range cycle[1:] {
				if c < min {
					min = c
				}
			}
			logger.Log.Warn("thread_reference_cycle",
				zap.Strings("members", cycle),
				zap.String("root", min))
			return min
		}
		visited[cur] = len(order)
		order = append(order, cur)
		cur = m.ThreadID
	}
}

// assembleThread orders members parent-before-child and fills the display
// fields.
func assembleThread(rootID string, members []models.Message, projectAddr string) models.Thread {
	t := models.Thread{RootID: rootID, ProjectAddress: projectAddr}

	byID := make(map[string]*models.Message, len(members))
	for i := range members {
		byID[members[i].ID] = &members[i]
	}
	t.Messages = orderTopologically(rootID, members, byID)

	for i := range t.Messages {
		if t.Messages[i].CreatedAt > t.LastActivity {
			t.LastActivity = t.Messages[i].CreatedAt
		}
	}
	if root, ok := byID[rootID]; ok {
		t.Root = root
		t.Title = titleFor(root.Content)
	} else if len(t.Messages) > 0 {
		t.Title = titleFor(t.Messages[0].Content)
	}
	return t
}

// orderTopologically emits the root first, then children depth-first with
// siblings ordered by (created_at, id). Messages whose parent is missing
// from the set hang off the root; members unreachable from the root (a
// broken cycle's far side) append at the end in timestamp order.
func orderTopologically(rootID string, members []models.Message, byID map[string]*models.Message) []models.Message {
	children := make(map[string][]*models.Message)
	for i := range members {
		m := &members[i]
		if m.ID == rootID {
			continue
		}
		parent := m.ReplyTo
		if parent == "" || parent == m.ID {
			parent = rootID
		}
		if _, known := byID[parent]; !known && parent != rootID {
			parent = rootID
		}
		children[parent] = append(children[parent], m)
	}
	for _, kids := range children {
		sort.Slice(kids, func(i, j int) bool {
			if kids[i].CreatedAt != kids[j].CreatedAt {
				return kids[i].CreatedAt < kids[j].CreatedAt
			}
			return kids[i].ID < kids[j].ID
		})
	}

	out := make([]models.Message, 0, len(members))
	emitted := make(map[string]struct{}, len(members))
	var walk func(id string)
	walk = func(id string) {
		if m, ok := byID[id]; ok {
			if _, done := emitted[id]; done {
				return
			}
			emitted[id] = struct{}{}
			out = append(out, *m)
		}
		for _, kid := range children[id] {
			walk(kid.ID)
		}
	}
	walk(rootID)

	var rest []*models.Message
	for i := range members {
		if _, done := emitted[members[i].ID]; !done {
			rest = append(rest, &members[i])
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].CreatedAt != rest[j].CreatedAt {
			return rest[i].CreatedAt < rest[j].CreatedAt
		}
		return rest[i].ID < rest[j].ID
	})
	for _, m := range rest {
		out = append(out, *m)
	}
	return out
}

func titleFor(content string) string {
	line := content
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if len(line) > threadTitleMax {
		line = line[:threadTitleMax] + "…"
	}
	if line == "" {
		line = "(no content)"
	}
	return line
}
