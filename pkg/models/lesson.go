package models

import "github.com/nbd-wtf/go-nostr"

// Lesson is a kind-4129 event: immutable tutorial content filed under a
// category.
type Lesson struct {
	ID            string
	Pubkey        string
	Title         string
	Content       string
	Detailed      string
	Reasoning     string
	Metacognition string
	Reflection    string
	Category      string
	CreatedAt     nostr.Timestamp
}

// LessonFromEvent parses a kind-4129 event.
func LessonFromEvent(ev *nostr.Event) (Lesson, bool) {
	if ev.Kind != KindLesson {
		return Lesson{}, false
	}
	l := Lesson{
		ID:        ev.ID,
		Pubkey:    ev.PubKey,
		Content:   ev.Content,
		CreatedAt: ev.CreatedAt,
	}
	for _, tag := range ev.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "title":
			l.Title = tag[1]
		case "detailed":
			l.Detailed = tag[1]
		case "reasoning":
			l.Reasoning = tag[1]
		case "metacognition":
			l.Metacognition = tag[1]
		case "reflection":
			l.Reflection = tag[1]
		case "category":
			l.Category = tag[1]
		}
	}
	if l.Title == "" {
		l.Title = "Untitled Lesson"
	}
	return l, true
}
