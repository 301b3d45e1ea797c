package checker

import (
	"sort"

	"seatwatch/lib/models"
	"seatwatch/lib/vacancy"
)

// Key is the unit of upstream deduplication: one (course, index) pair,
// however many subscriptions point at it.
type Key struct {
	CourseCode  string
	IndexNumber string
}

func (k Key) String() string {
	return k.CourseCode + "/" + k.IndexNumber
}

// KeyFor derives the tracked key of a subscription, normalizing course code
// case and whitespace so equal interests collapse onto one key.
func KeyFor(sub models.Subscription) Key {
	return Key{
		CourseCode:  vacancy.NormalizeCourseCode(sub.CourseCode),
		IndexNumber: vacancy.NormalizeIndexNumber(sub.IndexNumber),
	}
}

// BuildIndex groups the active subset of subscriptions by tracked key. Pure:
// the result depends only on the input, and the key count equals the number
// of distinct active (course, index) pairs regardless of subscriber count.
func BuildIndex(subs models.Subscriptions) map[Key]models.Subscriptions {
	index := make(map[Key]models.Subscriptions)
	for _, sub := range subs {
		if !sub.Active {
			continue
		}
		key := KeyFor(sub)
		index[key] = append(index[key], sub)
	}
	return index
}

// sortedKeys fixes the order keys are checked in so cycles are deterministic.
func sortedKeys(index map[Key]models.Subscriptions) []Key {
	keys := make([]Key, 0, len(index))
	for key := range index {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
