package models

import (
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// Project is the typed projection of a kind-31933 event.
type Project struct {
	// Address is the replaceable slot this project occupies.
	Address Address
	// ID is the d-tag value (the project's stable identifier).
	ID          string
	Pubkey      string
	Title       string
	Description string
	RepoURL     string
	PictureURL  string
	Deleted     bool
	// Members are p-tagged participant pubkeys.
	Members []string
	// AgentIDs are address coordinates or event ids of allowed agents.
	AgentIDs  []string
	CreatedAt nostr.Timestamp
	// EventID is the id of the active event backing this projection.
	EventID string
}

// ProjectFromEvent parses a kind-31933 event. Returns false for other kinds
// or events missing a d tag.
func ProjectFromEvent(ev *nostr.Event) (Project, bool) {
	if ev.Kind != KindProject {
		return Project{}, false
	}
	p := Project{
		Pubkey:      ev.PubKey,
		Description: strings.TrimSpace(ev.Content),
		CreatedAt:   ev.CreatedAt,
		EventID:     ev.ID,
	}
	var title, name string
	for _, tag := range ev.Tags {
		if len(tag) < 1 {
			continue
		}
		switch tag[0] {
		case "d":
			if len(tag) >= 2 {
				p.ID = tag[1]
			}
		case "title":
			if len(tag) >= 2 {
				title = tag[1]
			}
		case "name":
			if len(tag) >= 2 {
				name = tag[1]
			}
		case "repo":
			if len(tag) >= 2 {
				p.RepoURL = tag[1]
			}
		case "picture", "image":
			if len(tag) >= 2 {
				p.PictureURL = tag[1]
			}
		case "deleted":
			p.Deleted = true
		case "p":
			if len(tag) >= 2 {
				p.Members = append(p.Members, tag[1])
			}
		case "agent":
			if len(tag) >= 2 {
				p.AgentIDs = append(p.AgentIDs, tag[1])
			}
		}
	}
	if p.ID == "" {
		return Project{}, false
	}
	// Display name precedence: title, then name, then the d tag.
	switch {
	case title != "":
		p.Title = title
	case name != "":
		p.Title = name
	default:
		p.Title = p.ID
	}
	// A content body marking deletion tombstones the slot as well.
	if strings.EqualFold(strings.TrimSpace(ev.Content), "deleted") {
		p.Deleted = true
	}
	p.Address = Address{Kind: KindProject, Pubkey: ev.PubKey, D: p.ID}
	return p, true
}
