package analyzer

import (
	"strings"

	"github.com/FranksOps/rankwatch/internal/serp"
)

// Match scans items in order and returns the 1-based position of the first
// item whose haystack contains any of the patterns (case-insensitive substring).
// It returns (0, nil) when nothing matches. Empty patterns are ignored, so an
// all-empty pattern set never matches.
//
// Match is pure: the returned item points into a copy, never into items.
func Match(items []serp.SearchItem, patterns []string) (int, *serp.SearchItem) {
	needles := normalizePatterns(patterns)
	if len(needles) == 0 {
		return 0, nil
	}

	for i := range items {
		hay := Haystack(items[i])
		for _, n := range needles {
			if strings.Contains(hay, n) {
				hit := items[i]
				return i + 1, &hit
			}
		}
	}
	return 0, nil
}

// Haystack builds the lowercase match target for one listing: title (markup
// removed), link, joined address and telephone.
func Haystack(it serp.SearchItem) string {
	return strings.ToLower(strings.Join([]string{
		serp.StripTags(it.Title),
		it.Link,
		JoinAddress(it),
		it.Telephone,
	}, " "))
}

// JoinAddress joins the road address and the lot address with a space.
func JoinAddress(it serp.SearchItem) string {
	return strings.TrimSpace(it.RoadAddress + " " + it.Address)
}

func normalizePatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
