package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxGroupNameLength   = 100
	MaxDescriptionLength = 255
	MaxSearchQueryLength = 200
	MinSearchQueryLength = 2
)

var entityTypeRe = regexp.MustCompile(`^[a-z][a-z0-9_]{1,39}$`)
var entityIDRe = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)

// TrimAndLimit trims whitespace and cuts s to at most max runes.
func TrimAndLimit(s string, max int) string {
	s = strings.TrimSpace(s)
	if max > 0 && utf8.RuneCountInString(s) > max {
		return string([]rune(s)[:max])
	}
	return s
}

// ExceedsLength reports whether the trimmed text is longer than max runes.
func ExceedsLength(s string, max int) bool {
	return max > 0 && utf8.RuneCountInString(strings.TrimSpace(s)) > max
}

func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

func ValidateGroupName(name string) bool {
	name = NormalizeName(name)
	return name != "" && utf8.RuneCountInString(name) <= MaxGroupNameLength
}

func ValidateEntityType(entityType string) bool {
	return entityTypeRe.MatchString(entityType)
}

func ValidateEntityID(entityID string) bool {
	return entityIDRe.MatchString(entityID)
}

// NormalizeSearchQuery collapses whitespace; ok is false when the query is
// too short to search.
func NormalizeSearchQuery(q string) (string, bool) {
	q = TrimAndLimit(strings.Join(strings.Fields(q), " "), MaxSearchQueryLength)
	return q, utf8.RuneCountInString(q) >= MinSearchQueryLength
}

// DedupeIDs drops zeros, duplicates and the excluded ids, keeping order.
func DedupeIDs(ids []uint, exclude ...uint) []uint {
	seen := make(map[uint]bool, len(ids)+len(exclude))
	for _, id := range exclude {
		seen[id] = true
	}
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
