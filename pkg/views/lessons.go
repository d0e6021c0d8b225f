package views

import (
	"sort"

	"github.com/nbd-wtf/go-nostr"

	"harbor/pkg/models"
	"harbor/pkg/store"
)

// GetLessons returns lessons authored by the given pubkeys, newest first.
// An empty category matches everything.
func GetLessons(txn *store.ReadTxn, authors []string, category string) ([]models.Lesson, error) {
	f := nostr.Filter{Kinds: []int{models.KindLesson}}
	if len(authors) > 0 {
		f.Authors = authors
	}
	events, err := txn.Query([]nostr.Filter{f}, 0)
	if err != nil {
		return nil, err
	}

	var out []models.Lesson
	for _, ev := range events {
		l, ok := models.LessonFromEvent(ev)
		if !ok {
			continue
		}
		if category != "" && l.Category != category {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// LessonCategories returns the distinct categories across the lessons, in
// alphabetical order.
func LessonCategories(lessons []models.Lesson) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range lessons {
		if l.Category == "" {
			continue
		}
		if _, ok := seen[l.Category]; ok {
			continue
		}
		seen[l.Category] = struct{}{}
		out = append(out, l.Category)
	}
	sort.Strings(out)
	return out
}
