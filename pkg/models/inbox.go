package models

import "github.com/nbd-wtf/go-nostr"

// InboxEventType classifies an inbox item. Classification is ordered:
// Ask, then Reply, then Mention, then ThreadReply.
type InboxEventType int

const (
	InboxAsk InboxEventType = iota
	InboxMention
	InboxReply
	InboxThreadReply
)

func (t InboxEventType) String() string {
	switch t {
	case InboxAsk:
		return "ask"
	case InboxMention:
		return "mention"
	case InboxReply:
		return "reply"
	case InboxThreadReply:
		return "thread-reply"
	}
	return "unknown"
}

// InboxItem is a lightweight projection of an event that concerns the user.
type InboxItem struct {
	ID             string
	Type           InboxEventType
	Title          string
	ProjectAddress string
	Author         string
	CreatedAt      nostr.Timestamp
	Read           bool
	ThreadID       string
	Ask            *AskEvent
}
