package models

import "github.com/nbd-wtf/go-nostr"

// Nudge is a kind-4201 permission directive targeting an agent address.
type Nudge struct {
	ID          string
	Pubkey      string
	Address     Address
	Title       string
	Description string
	Content     string
	Hashtags    []string
	// TargetAgent is the a-tagged agent coordinate this nudge applies to.
	TargetAgent string
	// AllowedTools and DeniedTools adjust the agent's tool set additively;
	// mutually exclusive with OnlyTools.
	AllowedTools []string
	DeniedTools  []string
	// OnlyTools, when present, replaces the agent's tool set entirely.
	OnlyTools []string
	// Supersedes is the id of the nudge this one replaces, if any.
	Supersedes string
	CreatedAt  nostr.Timestamp
}

// NudgeFromEvent parses a kind-4201 event.
func NudgeFromEvent(ev *nostr.Event) (Nudge, bool) {
	if ev.Kind != KindNudge {
		return Nudge{}, false
	}
	n := Nudge{
		ID:        ev.ID,
		Pubkey:    ev.PubKey,
		Content:   ev.Content,
		CreatedAt: ev.CreatedAt,
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
			n.Title = tag[1]
		case "description":
			n.Description = tag[1]
		case "t":
			n.Hashtags = append(n.Hashtags, tag[1])
		case "a":
			if n.TargetAgent == "" {
				n.TargetAgent = tag[1]
			}
		case "allow-tool":
			n.AllowedTools = append(n.AllowedTools, tag[1])
		case "deny-tool":
			n.DeniedTools = append(n.DeniedTools, tag[1])
		case "only-tool":
			n.OnlyTools = append(n.OnlyTools, tag[1])
		case "supersedes":
			n.Supersedes = tag[1]
		}
	}
	if n.Title == "" {
		n.Title = "Untitled Nudge"
	}
	n.Address = Address{Kind: KindNudge, Pubkey: ev.PubKey, D: d}
	return n, true
}
