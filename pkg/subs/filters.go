package subs

import (
	"github.com/nbd-wtf/go-nostr"

	"harbor/pkg/models"
)

// Subscription name and filter builders for the standard view
// subscriptions. Names are stable so independent acquirers of the same
// logical data share one relay subscription.

// UserProjectsName identifies the subscription covering a user's project
// records.
func UserProjectsName(pubkey string) string { return "projects:" + pubkey }

// UserProjectsFilters matches project records authored by the user plus
// ones that tag the user as a participant.
func UserProjectsFilters(pubkey string) []nostr.Filter {
	return []nostr.Filter{
		{Kinds: []int{models.KindProject}, Authors: []string{pubkey}},
		{Kinds: []int{models.KindProject}, Tags: nostr.TagMap{"p": []string{pubkey}}},
	}
}

// ProjectName identifies the subscription covering one project's
// conversation and agent activity.
func ProjectName(addr string) string { return "project:" + addr }

// ProjectFilters matches messages, statuses, and nudges that reference the
// project address.
func ProjectFilters(addr string) []nostr.Filter {
	return []nostr.Filter{
		{
			Kinds: []int{models.KindMessage, models.KindAgentChatter},
			Tags:  nostr.TagMap{"a": []string{addr}},
		},
		{
			Kinds: []int{models.KindStatus, models.KindNudge},
			Tags:  nostr.TagMap{"a": []string{addr}},
		},
	}
}

// InboxName identifies the subscription covering events addressed to the
// user.
func InboxName(pubkey string) string { return "inbox:" + pubkey }

// InboxFilters matches messages that p-tag the user.
func InboxFilters(pubkey string) []nostr.Filter {
	return []nostr.Filter{
		{
			Kinds: []int{models.KindMessage, models.KindAgentChatter},
			Tags:  nostr.TagMap{"p": []string{pubkey}},
		},
	}
}

// ProfilesName identifies a profile-metadata subscription; the name is
// derived from the requesting view so refreshes stay scoped to it.
func ProfilesName(scope string) string { return "profiles:" + scope }

// ProfilesFilters matches kind-0 metadata for the given authors.
func ProfilesFilters(pubkeys []string) []nostr.Filter {
	return []nostr.Filter{
		{Kinds: []int{models.KindProfile}, Authors: pubkeys},
	}
}

// AgentsName identifies the subscription covering agent definitions and
// lessons published by the given agents.
func AgentsName(scope string) string { return "agents:" + scope }

// AgentsFilters matches agent definitions and lessons by author.
func AgentsFilters(pubkeys []string) []nostr.Filter {
	return []nostr.Filter{
		{Kinds: []int{models.KindAgentDefinition, models.KindLesson}, Authors: pubkeys},
	}
}

// NudgesForAgentName identifies the subscription covering nudges aimed at
// one agent definition.
func NudgesForAgentName(agentAddr string) string { return "nudges:" + agentAddr }

// NudgesForAgentFilters matches nudge records whose a tag targets the
// agent's coordinate.
func NudgesForAgentFilters(agentAddr string) []nostr.Filter {
	return []nostr.Filter{
		{Kinds: []int{models.KindNudge}, Tags: nostr.TagMap{"a": []string{agentAddr}}},
	}
}

// LessonsName identifies a standalone lessons subscription, used when
// lessons are browsed without the full agent roster.
func LessonsName(scope string) string { return "lessons:" + scope }

// LessonsFilters matches lessons by author, optionally narrowed to one
// category via the t tag.
func LessonsFilters(pubkeys []string, category string) []nostr.Filter {
	f := nostr.Filter{Kinds: []int{models.KindLesson}, Authors: pubkeys}
	if category != "" {
		f.Tags = nostr.TagMap{"t": []string{category}}
	}
	return []nostr.Filter{f}
}
