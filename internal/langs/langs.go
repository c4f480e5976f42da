// Package langs normalizes post language tags and tracks which languages the
// stream actually carries.
package langs

import "strings"

// Untagged is the sentinel for "no language tag present". Normalization cuts
// tags at the first hyphen, so this value can never collide with a stored
// language code.
const Untagged = "-"

// Normalize lower-cases each tag and keeps only the primary subtag ("en"
// from "en-US"), deduplicating while preserving order. An empty or absent
// input yields an empty slice.
func Normalize(tags []string) []string {
	normalized := []string{}
	seen := map[string]bool{}
	for _, tag := range tags {
		primary, _, _ := strings.Cut(tag, "-")
		k := strings.ToLower(primary)
		if k == "" {
			continue
		}
		if !seen[k] {
			normalized = append(normalized, k)
			seen[k] = true
		}
	}
	return normalized
}

// First returns the first language of a post, or Untagged when it has none.
// Used for metric labels, where one language is enough.
func First(codes []string) string {
	if len(codes) == 0 {
		return Untagged
	}
	return codes[0]
}
