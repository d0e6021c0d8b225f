package store

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"

	"harbor/pkg/models"
)

// Key layout. Index rows are keys-only: the payload lives once under evt:.
//
//	evt:<id>                                   event JSON
//	addr:<kind>:<pubkey>:<d>                   active pointer "<ts10>:<id>"
//	idx:kind:<kind5>:<ts10>:<id>
//	idx:author:<pubkey>:<ts10>:<id>
//	idx:tag:<letter>:<value>:<ts10>:<id>
//	idx:addr:<kind>:<pubkey>:<d>:<ts10>:<id>
//	prov:<id>:<relay>                          first-seen unix seconds
//	read:<user>:<id>                           read marker, unix seconds
//
// Timestamps are zero-padded to 10 digits and ids are fixed 64 hex chars,
// so the trailing "<ts10>:<id>" suffix parses unambiguously even when tag
// values or d tags contain colons. New index namespaces may be added; old
// ones stay readable.
const (
	idLen = 64
	tsLen = 10
)

func eventKey(id string) []byte { return []byte("evt:" + id) }

func addrKey(a models.Address) []byte {
	return []byte(fmt.Sprintf("addr:%d:%s:%s", a.Kind, a.Pubkey, a.D))
}

func tsSuffix(ts nostr.Timestamp, id string) string {
	return fmt.Sprintf("%010d:%s", int64(ts), id)
}

func kindIndexKey(kind int, ts nostr.Timestamp, id string) []byte {
	return []byte(fmt.Sprintf("idx:kind:%05d:%s", kind, tsSuffix(ts, id)))
}

func authorIndexKey(pubkey string, ts nostr.Timestamp, id string) []byte {
	return []byte("idx:author:" + pubkey + ":" + tsSuffix(ts, id))
}

func tagIndexKey(letter, value string, ts nostr.Timestamp, id string) []byte {
	return []byte("idx:tag:" + letter + ":" + value + ":" + tsSuffix(ts, id))
}

func addrIndexKey(a models.Address, ts nostr.Timestamp, id string) []byte {
	return []byte(fmt.Sprintf("idx:addr:%d:%s:%s:%s", a.Kind, a.Pubkey, a.D, tsSuffix(ts, id)))
}

func provKey(id, relay string) []byte { return []byte("prov:" + id + ":" + relay) }

func readKey(user, id string) []byte { return []byte("read:" + user + ":" + id) }

// idFromIndexKey extracts the event id from any idx: row.
func idFromIndexKey(key []byte) string {
	if len(key) < idLen {
		return ""
	}
	return string(key[len(key)-idLen:])
}

// tsFromIndexKey extracts the timestamp from any idx: row.
func tsFromIndexKey(key []byte) nostr.Timestamp {
	// layout: ...:<ts10>:<id64>
	if len(key) < idLen+1+tsLen {
		return 0
	}
	var ts int64
	_, err := fmt.Sscanf(string(key[len(key)-idLen-1-tsLen:len(key)-idLen-1]), "%d", &ts)
	if err != nil {
		return 0
	}
	return nostr.Timestamp(ts)
}

// indexedTagLetters reports which tag names of an event are indexed:
// single-letter names only, matching the relay filter grammar.
func indexedTagLetters(ev *nostr.Event) map[string][]string {
	out := make(map[string][]string)
	for _, tag := range ev.Tags {
		if len(tag) < 2 || len(tag[0]) != 1 {
			continue
		}
		c := tag[0][0]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			out[tag[0]] = append(out[tag[0]], tag[1])
		}
	}
	return out
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// activePointer encodes/decodes the addr: value.
func encodeActive(ts nostr.Timestamp, id string) []byte {
	return []byte(tsSuffix(ts, id))
}

func decodeActive(v []byte) (nostr.Timestamp, string, bool) {
	s := string(v)
	i := strings.IndexByte(s, ':')
	if i < 0 || len(s) != i+1+idLen {
		return 0, "", false
	}
	var ts int64
	if _, err := fmt.Sscanf(s[:i], "%d", &ts); err != nil {
		return 0, "", false
	}
	return nostr.Timestamp(ts), s[i+1:], true
}
