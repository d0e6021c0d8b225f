package views

import (
	"harbor/pkg/models"
	"harbor/pkg/store"
)

// GetMessagesForThread returns the thread's messages in topological order:
// root first, then replies parent-before-child, siblings by (created_at,
// id). Membership is collected by walking e-tag references outward from
// the root, which also picks up legacy replies that tag only their parent.
func GetMessagesForThread(txn *store.ReadTxn, rootID string) ([]models.Message, error) {
	members, err := collectThreadMembers(txn, rootID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Message, len(members))
	for i := range members {
		byID[members[i].ID] = &members[i]
	}
	return orderTopologically(rootID, members, byID), nil
}

func collectThreadMembers(txn *store.ReadTxn, rootID string) ([]models.Message, error) {
	var members []models.Message
	seen := make(map[string]struct{})

	add := func(id string) bool {
		if _, ok := seen[id]; ok {
			return false
		}
		seen[id] = struct{}{}
		ev, err := txn.GetByID(id)
		if err != nil {
			return false
		}
		m, ok := models.MessageFromEvent(ev)
		if !ok {
			return false
		}
		members = append(members, m)
		return true
	}

	add(rootID)
	frontier := []string{rootID}
	for len(frontier) > 0 {
		next := frontier[:0:0]
		for _, id := range frontier {
			refs, err := txn.IDsReferencing("e", id)
			if err != nil {
				return nil, err
			}
			for _, ref := range refs {
				if add(ref) {
					next = append(next, ref)
				}
			}
		}
		frontier = next
	}
	return members, nil
}
