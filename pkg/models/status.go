package models

import "github.com/nbd-wtf/go-nostr"

// StatusAgent is an agent entry within a project status event.
type StatusAgent struct {
	Pubkey string
	Name   string
	// IsPM marks the first listed agent, which coordinates the others.
	IsPM  bool
	Model string
	Tools []string
}

// ProjectStatus is the typed projection of a kind-24010 event: the latest
// operational snapshot published by a project backend.
type ProjectStatus struct {
	// ProjectAddress is the first "a" coordinate on the event.
	ProjectAddress string
	Agents         []StatusAgent
	Branches       []string
	// Models and Tools list everything advertised, including entries not
	// assigned to any agent.
	Models        []string
	Tools         []string
	CreatedAt     nostr.Timestamp
	BackendPubkey string
}

// StatusFromEvent parses a kind-24010 event. Tag layout: ["agent", pubkey,
// name], ["model", name, agentName...], ["tool", name, agentName...],
// ["branch", name], ["a", coordinate].
func StatusFromEvent(ev *nostr.Event) (ProjectStatus, bool) {
	if ev.Kind != KindStatus {
		return ProjectStatus{}, false
	}
	st := ProjectStatus{CreatedAt: ev.CreatedAt, BackendPubkey: ev.PubKey}
	byName := make(map[string]int)
	// Agents must be known before model/tool assignment, so collect them
	// first regardless of tag order.
	for _, tag := range ev.Tags {
		if len(tag) < 1 {
			continue
		}
		switch tag[0] {
		case "a":
			if st.ProjectAddress == "" && len(tag) >= 2 {
				st.ProjectAddress = tag[1]
			}
		case "agent":
			if len(tag) >= 3 {
				byName[tag[2]] = len(st.Agents)
				st.Agents = append(st.Agents, StatusAgent{
					Pubkey: tag[1],
					Name:   tag[2],
					IsPM:   len(st.Agents) == 0,
				})
			}
		case "branch":
			if len(tag) >= 2 {
				st.Branches = append(st.Branches, tag[1])
			}
		}
	}
	for _, tag := range ev.Tags {
		if len(tag) < 1 {
			continue
		}
		switch tag[0] {
		case "model":
			if len(tag) >= 2 {
				st.Models = append(st.Models, tag[1])
				for _, name := range tag[2:] {
					if i, ok := byName[name]; ok {
						st.Agents[i].Model = tag[1]
					}
				}
			}
		case "tool":
			if len(tag) >= 2 {
				st.Tools = append(st.Tools, tag[1])
				for _, name := range tag[2:] {
					if i, ok := byName[name]; ok {
						st.Agents[i].Tools = append(st.Agents[i].Tools, tag[1])
					}
				}
			}
		}
	}
	if st.ProjectAddress == "" {
		return ProjectStatus{}, false
	}
	return st, true
}
