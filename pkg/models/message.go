package models

import (
	"github.com/nbd-wtf/go-nostr"
)

// AskEvent is a question an agent poses to the user, carried on an "ask"
// tag: ["ask", question, choice...].
type AskEvent struct {
	Question string
	Choices  []string
}

// AskFromEvent extracts the ask question from a kind-1 event, if present.
func AskFromEvent(ev *nostr.Event) (AskEvent, bool) {
	if ev.Kind != KindMessage {
		return AskEvent{}, false
	}
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == "ask" {
			ask := AskEvent{Question: tag[1]}
			if len(tag) > 2 {
				ask.Choices = append(ask.Choices, tag[2:]...)
			}
			return ask, true
		}
	}
	return AskEvent{}, false
}

// Message is the typed projection of a kind-1 or kind-1111 event.
type Message struct {
	ID        string
	Pubkey    string
	Content   string
	Kind      int
	CreatedAt nostr.Timestamp
	// ThreadID is the root event id of the owning thread. For roots it
	// equals ID.
	ThreadID string
	// ReplyTo is the direct parent id; empty for thread roots.
	ReplyTo string
	// ProjectAddress is the "a" coordinate of the owning project, if tagged.
	ProjectAddress string
	Mentions       []string
	Ask            *AskEvent
	IsReasoning    bool
	Tool           string
	Branch         string
}

// MessageFromEvent parses a message-kind event. ThreadID is provisional:
// it reflects the event's own NIP-10 references and is finalized by the
// thread grouping in the view layer.
func MessageFromEvent(ev *nostr.Event) (Message, bool) {
	if !IsMessageKind(ev.Kind) {
		return Message{}, false
	}
	m := Message{
		ID:             ev.ID,
		Pubkey:         ev.PubKey,
		Content:        ev.Content,
		Kind:           ev.Kind,
		CreatedAt:      ev.CreatedAt,
		ReplyTo:        ReplyParent(ev),
		ProjectAddress: ProjectATag(ev),
		Mentions:       Mentions(ev),
		IsReasoning:    HasTag(ev, "reasoning"),
		Tool:           TagValue(ev, "tool"),
		Branch:         TagValue(ev, "branch"),
	}
	if root := RootRef(ev); root != "" {
		m.ThreadID = root
	} else {
		m.ThreadID = ev.ID
	}
	if ask, ok := AskFromEvent(ev); ok {
		m.Ask = &ask
	}
	return m, true
}

// Thread is a reply-connected set of messages identified by its root id.
type Thread struct {
	// RootID is the thread id.
	RootID string
	// Root is the root message when it has been observed; grouping
	// tolerates missing roots.
	Root *Message
	// Messages holds every member including the root, in topological
	// order.
	Messages []Message
	// LastActivity is the max created_at across members.
	LastActivity nostr.Timestamp
	// ProjectAddress is the project coordinate claimed by the thread's
	// members, when consistent.
	ProjectAddress string
	// Title is the root content's first line, truncated for display.
	Title string
}

// Participants returns the distinct author pubkeys across the thread.
func (t *Thread) Participants() []string {
	seen := make(map[string]struct{}, len(t.Messages))
	var out []string
	for i := range t.Messages {
		pk := t.Messages[i].Pubkey
		if _, ok := seen[pk]; ok {
			continue
		}
		seen[pk] = struct{}{}
		out = append(out, pk)
	}
	return out
}
