package models

import (
	"github.com/nbd-wtf/go-nostr"
)

// TagValue returns the second element of the first tag named name, or "".
func TagValue(ev *nostr.Event, name string) string {
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// TagValues returns the second element of every tag named name.
func TagValues(ev *nostr.Event, name string) []string {
	var out []string
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == name {
			out = append(out, tag[1])
		}
	}
	return out
}

// HasTag reports whether the event carries a tag named name.
func HasTag(ev *nostr.Event, name string) bool {
	for _, tag := range ev.Tags {
		if len(tag) >= 1 && tag[0] == name {
			return true
		}
	}
	return false
}

// RootRef returns the thread-root event id referenced by NIP-10 e tags.
// Empty for events that are themselves roots.
func RootRef(ev *nostr.Event) string {
	var firstUnmarked string
	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[0] != "e" {
			continue
		}
		if len(tag) >= 4 && tag[3] == "root" {
			return tag[1]
		}
		if firstUnmarked == "" && (len(tag) < 4 || tag[3] == "") {
			firstUnmarked = tag[1]
		}
	}
	return firstUnmarked
}

// ReplyParent returns the direct parent id for a reply event. Marked
// "reply" e tags win; for legacy events the last unmarked e tag is the
// parent, and an event carrying only a root marker replies to the root.
func ReplyParent(ev *nostr.Event) string {
	var root, lastUnmarked string
	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[0] != "e" {
			continue
		}
		if len(tag) >= 4 {
			switch tag[3] {
			case "reply":
				return tag[1]
			case "root":
				root = tag[1]
				continue
			case "mention":
				continue
			}
		}
		lastUnmarked = tag[1]
	}
	if lastUnmarked != "" {
		return lastUnmarked
	}
	return root
}

// ProjectATag returns the first "a" tag value (the project coordinate) or "".
func ProjectATag(ev *nostr.Event) string { return TagValue(ev, "a") }

// Mentions returns the pubkeys p-tagged by the event.
func Mentions(ev *nostr.Event) []string { return TagValues(ev, "p") }

// MentionsPubkey reports whether the event p-tags the given pubkey.
func MentionsPubkey(ev *nostr.Event, pubkey string) bool {
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == "p" && tag[1] == pubkey {
			return true
		}
	}
	return false
}

// DataChange is the per-event token emitted by the ingestion pipeline after
// a commit. Optional fields are empty when not applicable.
type DataChange struct {
	Kind    int     `json:"kind"`
	ID      string  `json:"id"`
	Address Address `json:"address,omitempty"`
	// ThreadID is the owning thread root for message kinds.
	ThreadID string `json:"thread_id,omitempty"`
	// ProjectAddress is the "a" coordinate the event references, if any.
	ProjectAddress string `json:"project,omitempty"`
	// Author is the event pubkey, used for profile change routing.
	Author string `json:"author"`
}
