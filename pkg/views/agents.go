package views

import (
	"sort"

	"harbor/pkg/models"
	"harbor/pkg/store"
)

// GetAgentDefinitions returns the active definition for every agent slot
// in the store, ordered by name then address for stable display.
func GetAgentDefinitions(txn *store.ReadTxn) ([]models.AgentDefinition, error) {
	addrs, err := txn.ActiveAddresses(models.KindAgentDefinition)
	if err != nil {
		return nil, err
	}
	var out []models.AgentDefinition
	for _, addr := range addrs {
		ev, err := txn.GetActiveByAddress(addr)
		if err != nil {
			continue
		}
		if a, ok := models.AgentFromEvent(ev); ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Address.String() < out[j].Address.String()
	})
	return out, nil
}

// GetAgentDefinition returns the active definition at the coordinate.
func GetAgentDefinition(txn *store.ReadTxn, addr models.Address) (models.AgentDefinition, bool) {
	ev, err := txn.GetActiveByAddress(addr)
	if err != nil {
		return models.AgentDefinition{}, false
	}
	return models.AgentFromEvent(ev)
}
