package views

import (
	"sort"

	"github.com/nbd-wtf/go-nostr"

	"harbor/pkg/models"
	"harbor/pkg/store"
)

// GetNudgesForAgent returns the nudges targeting the agent coordinate,
// newest first, with superseded entries filtered out. A nudge is
// superseded when any other returned-candidate names its id in a
// supersedes tag.
func GetNudgesForAgent(txn *store.ReadTxn, agentAddr string) ([]models.Nudge, error) {
	events, err := txn.Query([]nostr.Filter{{
		Kinds: []int{models.KindNudge},
		Tags:  nostr.TagMap{"a": []string{agentAddr}},
	}}, 0)
	if err != nil {
		return nil, err
	}

	superseded := make(map[string]struct{})
	var all []models.Nudge
	for _, ev := range events {
		n, ok := models.NudgeFromEvent(ev)
		if !ok {
			continue
		}
		if n.Supersedes != "" {
			superseded[n.Supersedes] = struct{}{}
		}
		all = append(all, n)
	}

	var out []models.Nudge
	for _, n := range all {
		if _, gone := superseded[n.ID]; gone {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// EffectiveTools applies the agent's nudges to its base tool set. OnlyTools
// on the newest nudge carrying one wins outright; otherwise allows extend
// and denies subtract, newest nudge first.
func EffectiveTools(base []string, nudges []models.Nudge) []string {
	for _, n := range nudges {
		if len(n.OnlyTools) > 0 {
			return append([]string(nil), n.OnlyTools...)
		}
	}
	set := make(map[string]struct{}, len(base))
	order := append([]string(nil), base...)
	for _, t := range base {
		set[t] = struct{}{}
	}
	for i := len(nudges) - 1; i >= 0; i-- {
		for _, t := range nudges[i].AllowedTools {
			if _, ok := set[t]; !ok {
				set[t] = struct{}{}
				order = append(order, t)
			}
		}
		for _, t := range nudges[i].DeniedTools {
			delete(set, t)
		}
	}
	out := make([]string, 0, len(set))
	for _, t := range order {
		if _, ok := set[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
