package views

import (
	"sort"

	"github.com/nbd-wtf/go-nostr"

	"harbor/pkg/models"
	"harbor/pkg/store"
)

// AskItem is an unanswered question awaiting the user, with enough
// context to render and answer it.
type AskItem struct {
	ID             string
	Question       string
	Choices        []string
	Author         string
	ProjectAddress string
	ThreadID       string
	CreatedAt      nostr.Timestamp
}

// GetActiveAsks returns asks aimed at the user that the user has not yet
// replied to, oldest first so the longest-waiting question surfaces on
// top.
func GetActiveAsks(txn *store.ReadTxn, user string) ([]AskItem, error) {
	events, err := txn.Query([]nostr.Filter{{
		Kinds: []int{models.KindMessage},
		Tags:  nostr.TagMap{"p": []string{user}},
	}}, 0)
	if err != nil {
		return nil, err
	}

	var out []AskItem
	for _, ev := range events {
		m, ok := models.MessageFromEvent(ev)
		if !ok || m.Ask == nil || m.Pubkey == user {
			continue
		}
		answered, err := answeredBy(txn, m.ID, user)
		if err != nil {
			return nil, err
		}
		if answered {
			continue
		}
		out = append(out, AskItem{
			ID:             m.ID,
			Question:       m.Ask.Question,
			Choices:        m.Ask.Choices,
			Author:         m.Pubkey,
			ProjectAddress: m.ProjectAddress,
			ThreadID:       m.ThreadID,
			CreatedAt:      m.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// answeredBy reports whether user has published a message referencing the
// ask event.
func answeredBy(txn *store.ReadTxn, askID, user string) (bool, error) {
	refs, err := txn.IDsReferencing("e", askID)
	if err != nil {
		return false, err
	}
	for _, id := range refs {
		ev, err := txn.GetByID(id)
		if err != nil {
			continue
		}
		if ev.PubKey == user {
			return true, nil
		}
	}
	return false, nil
}
