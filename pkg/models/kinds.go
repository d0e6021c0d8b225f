package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// Event kinds understood by the engine.
const (
	KindProfile         = 0
	KindMessage         = 1
	KindAgentChatter    = 1111
	KindLesson          = 4129
	KindAgentDefinition = 4199
	KindNudge           = 4201
	KindStatus          = 24010
	KindProject         = 31933
)

// IsAddressed reports whether a kind is keyed by address tag rather than
// event id. Kind 0 behaves like an addressed kind with an empty d tag.
func IsAddressed(kind int) bool {
	switch kind {
	case KindProfile, KindAgentDefinition, KindNudge, KindStatus, KindProject:
		return true
	}
	return false
}

// IsMessageKind reports whether a kind participates in threads.
func IsMessageKind(kind int) bool {
	return kind == KindMessage || kind == KindAgentChatter
}

// Address identifies a replaceable event slot: (kind, author, d-tag).
type Address struct {
	Kind   int    `json:"kind"`
	Pubkey string `json:"pubkey"`
	D      string `json:"d"`
}

// String renders the canonical "kind:pubkey:d" coordinate.
func (a Address) String() string {
	return fmt.Sprintf("%d:%s:%s", a.Kind, a.Pubkey, a.D)
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a.Kind == 0 && a.Pubkey == "" && a.D == "" }

// ParseAddress parses a "kind:pubkey:d" coordinate. The d part may contain
// colons.
func ParseAddress(s string) (Address, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return Address{}, fmt.Errorf("invalid address coordinate: %q", s)
	}
	kind, err := strconv.Atoi(parts[0])
	if err != nil {
		return Address{}, fmt.Errorf("invalid address kind in %q: %w", s, err)
	}
	a := Address{Kind: kind, Pubkey: parts[1]}
	if len(parts) == 3 {
		a.D = parts[2]
	}
	return a, nil
}

// EventAddress returns the address slot an event occupies, if its kind is
// addressed.
func EventAddress(ev *nostr.Event) (Address, bool) {
	if !IsAddressed(ev.Kind) {
		return Address{}, false
	}
	return Address{Kind: ev.Kind, Pubkey: ev.PubKey, D: TagValue(ev, "d")}, true
}
