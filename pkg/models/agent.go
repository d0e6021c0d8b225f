package models

import "github.com/nbd-wtf/go-nostr"

// AgentDefinition is a kind-4199 addressed event describing an AI agent.
// The event content carries the agent's instructions.
type AgentDefinition struct {
	ID          string
	Pubkey      string
	Address     Address
	Name        string
	Description string
	Role        string
	Instructions string
	Picture     string
	Version     string
	Model       string
	Tools       []string
	MCPServers  []string
	UseCriteria []string
	CreatedAt   nostr.Timestamp
}

// AgentFromEvent parses a kind-4199 event.
func AgentFromEvent(ev *nostr.Event) (AgentDefinition, bool) {
	if ev.Kind != KindAgentDefinition {
		return AgentDefinition{}, false
	}
	a := AgentDefinition{
		ID:           ev.ID,
		Pubkey:       ev.PubKey,
		Instructions: ev.Content,
		CreatedAt:    ev.CreatedAt,
	}
	var d string
	for _, tag := range ev.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "d":
			d = tag[1]
		case "title":
			a.Name = tag[1]
		case "description":
			a.Description = tag[1]
		case "role":
			a.Role = tag[1]
		case "picture", "image":
			a.Picture = tag[1]
		case "version":
			a.Version = tag[1]
		case "model":
			a.Model = tag[1]
		case "tool":
			a.Tools = append(a.Tools, tag[1])
		case "mcp":
			a.MCPServers = append(a.MCPServers, tag[1])
		case "use-criteria":
			a.UseCriteria = append(a.UseCriteria, tag[1])
		}
	}
	if a.Name == "" {
		a.Name = d
	}
	a.Address = Address{Kind: KindAgentDefinition, Pubkey: ev.PubKey, D: d}
	return a, true
}
