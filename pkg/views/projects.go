package views

import (
	"sort"

	"harbor/pkg/models"
	"harbor/pkg/store"
)

// GetProjects returns the projects visible to user: ones the user authored
// plus ones that list the user as a member. Tombstoned slots are dropped.
// Ordered by created_at descending, address ascending on ties.
func GetProjects(txn *store.ReadTxn, user string) ([]models.Project, error) {
	addrs, err := txn.ActiveAddresses(models.KindProject)
	if err != nil {
		return nil, err
	}
	var out []models.Project
	for _, addr := range addrs {
		ev, err := txn.GetActiveByAddress(addr)
		if err != nil {
			continue
		}
		p, ok := models.ProjectFromEvent(ev)
		if !ok || p.Deleted {
			continue
		}
		if !projectVisibleTo(p, user) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].Address.String() < out[j].Address.String()
	})
	return out, nil
}

// GetProject returns the active project record at the given coordinate.
func GetProject(txn *store.ReadTxn, addr models.Address) (models.Project, bool, error) {
	ev, err := txn.GetActiveByAddress(addr)
	if err != nil {
		return models.Project{}, false, nil
	}
	p, ok := models.ProjectFromEvent(ev)
	if !ok || p.Deleted {
		return models.Project{}, false, nil
	}
	return p, true, nil
}

func projectVisibleTo(p models.Project, user string) bool {
	if user == "" || p.Pubkey == user {
		return true
	}
	for _, m := range p.Members {
		if m == user {
			return true
		}
	}
	return false
}
