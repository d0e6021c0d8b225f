package models

import (
	"encoding/json"

	"github.com/nbd-wtf/go-nostr"
)

// Profile is the kind-0 metadata for a pubkey. All fields are optional on
// the wire; missing fields stay empty.
type Profile struct {
	Pubkey      string
	Name        string
	DisplayName string
	Picture     string
	About       string
	CreatedAt   nostr.Timestamp
}

// ProfileFromEvent parses a kind-0 event. Malformed content yields an
// empty-but-valid profile rather than an error; profile content in the
// wild is unreliable.
func ProfileFromEvent(ev *nostr.Event) (Profile, bool) {
	if ev.Kind != KindProfile {
		return Profile{}, false
	}
	p := Profile{Pubkey: ev.PubKey, CreatedAt: ev.CreatedAt}
	var raw struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
		Picture     string `json:"picture"`
		About       string `json:"about"`
	}
	if err := json.Unmarshal([]byte(ev.Content), &raw); err == nil {
		p.Name = raw.Name
		p.DisplayName = raw.DisplayName
		p.Picture = raw.Picture
		p.About = raw.About
	}
	return p, true
}

// BestName returns the preferred display string for the profile.
func (p Profile) BestName() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Name != "" {
		return p.Name
	}
	return shortPubkey(p.Pubkey)
}

func shortPubkey(pk string) string {
	if len(pk) > 12 {
		return pk[:8] + "…" + pk[len(pk)-4:]
	}
	return pk
}
