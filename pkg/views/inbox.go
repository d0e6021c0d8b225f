package views

import (
	"sort"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"harbor/pkg/models"
	"harbor/pkg/store"
)

// GetInbox returns messages that concern the user, newest first. Every
// candidate gets exactly one classification, checked in priority order:
// an ask, then a direct reply to the user's message, then a mention, then
// a reply elsewhere under a message the user wrote.
func GetInbox(txn *store.ReadTxn, user string, tf models.TimeFilter, now time.Time) ([]models.InboxItem, error) {
	candidates, err := inboxCandidates(txn, user)
	if err != nil {
		return nil, err
	}

	var out []models.InboxItem
	for i := range candidates {
		m := &candidates[i]
		if m.Pubkey == user || !tf.Admits(m.CreatedAt, now) {
			continue
		}
		typ, ok := classify(txn, m, user)
		if !ok {
			continue
		}
		item := models.InboxItem{
			ID:             m.ID,
			Type:           typ,
			Title:          titleFor(m.Content),
			ProjectAddress: m.ProjectAddress,
			Author:         m.Pubkey,
			CreatedAt:      m.CreatedAt,
			Read:           txn.IsRead(user, m.ID),
			ThreadID:       m.ThreadID,
			Ask:            m.Ask,
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// inboxCandidates gathers messages that p-tag the user plus every message
// below one of the user's own in the reply graph, deduplicated by id. The
// walk follows e-references outward so a reply is found even when its
// user-authored ancestor is several hops up.
func inboxCandidates(txn *store.ReadTxn, user string) ([]models.Message, error) {
	events, err := txn.Query([]nostr.Filter{{
		Kinds: []int{models.KindMessage, models.KindAgentChatter},
		Tags:  nostr.TagMap{"p": []string{user}},
	}}, 0)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []models.Message
	for _, ev := range events {
		if m, ok := models.MessageFromEvent(ev); ok {
			seen[m.ID] = struct{}{}
			out = append(out, m)
		}
	}

	mine, err := txn.Query([]nostr.Filter{{
		Kinds:   []int{models.KindMessage, models.KindAgentChatter},
		Authors: []string{user},
	}}, 0)
	if err != nil {
		return nil, err
	}
	frontier := make([]string, 0, len(mine))
	visited := make(map[string]struct{}, len(mine))
	for _, own := range mine {
		frontier = append(frontier, own.ID)
		visited[own.ID] = struct{}{}
	}
	for len(frontier) > 0 {
		var next []string
		for _, id := range frontier {
			refs, err := txn.IDsReferencing("e", id)
			if err != nil {
				return nil, err
			}
			for _, ref := range refs {
				if _, dup := visited[ref]; dup {
					continue
				}
				visited[ref] = struct{}{}
				next = append(next, ref)
				if _, dup := seen[ref]; dup {
					continue
				}
				ev, err := txn.GetByID(ref)
				if err != nil {
					continue
				}
				if m, ok := models.MessageFromEvent(ev); ok {
					seen[m.ID] = struct{}{}
					out = append(out, m)
				}
			}
		}
		frontier = next
	}
	return out, nil
}

func classify(txn *store.ReadTxn, m *models.Message, user string) (models.InboxEventType, bool) {
	if m.Ask != nil {
		return models.InboxAsk, true
	}
	if m.ReplyTo != "" {
		if parent, err := txn.GetByID(m.ReplyTo); err == nil && parent.PubKey == user {
			return models.InboxReply, true
		}
	}
	if mentionsUser(m, user) {
		return models.InboxMention, true
	}
	if m.ThreadID != "" && m.ThreadID != m.ID {
		if root, err := txn.GetByID(m.ThreadID); err == nil && root.PubKey == user {
			return models.InboxThreadReply, true
		}
	}
	if ancestorAuthoredBy(txn, m, user) {
		return models.InboxThreadReply, true
	}
	return 0, false
}

// ancestorAuthoredBy walks the reply chain upward looking for a message
// the user wrote. The visited set bounds the walk against malformed
// chains that loop.
func ancestorAuthoredBy(txn *store.ReadTxn, m *models.Message, user string) bool {
	visited := map[string]struct{}{m.ID: {}}
	next := m.ReplyTo
	for next != "" {
		if _, dup := visited[next]; dup {
			return false
		}
		visited[next] = struct{}{}
		ev, err := txn.GetByID(next)
		if err != nil {
			return false
		}
		if ev.PubKey == user {
			return true
		}
		parent, ok := models.MessageFromEvent(ev)
		if !ok {
			return false
		}
		next = parent.ReplyTo
	}
	return false
}

func mentionsUser(m *models.Message, user string) bool {
	for _, pk := range m.Mentions {
		if pk == user {
			return true
		}
	}
	return false
}
