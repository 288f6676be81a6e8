// Package filter accepts or rejects items against hashtag, date-window, and
// duration criteria.
package filter

import (
	"regexp"
	"strings"
)

// Both the ASCII '#' and the fullwidth '＃' mark hashtags in the wild.
var hashtagPattern = regexp.MustCompile(`#([0-9A-Za-z_\p{L}]+)`)

// ExtractHashtags returns every hashtag in text, lowercased and without the
// marker, in order of appearance.
func ExtractHashtags(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "＃", "#")
	var tags []string
	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		tag := strings.ToLower(m[1])
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// MatchMode selects how many of the required tags must be present.
type MatchMode string

const (
	MatchAny MatchMode = "any"
	MatchAll MatchMode = "all"
)

// ContainsRequiredHashtags tests found tags against a required set. An empty
// required set always passes.
func ContainsRequiredHashtags(found []string, required []string, mode MatchMode) bool {
	req := normalizeTags(required)
	if len(req) == 0 {
		return true
	}
	set := make(map[string]bool, len(found))
	for _, t := range normalizeTags(found) {
		set[t] = true
	}
	if mode == MatchAny {
		for _, t := range req {
			if set[t] {
				return true
			}
		}
		return false
	}
	for _, t := range req {
		if !set[t] {
			return false
		}
	}
	return true
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.ReplaceAll(t, "＃", "#"), "#")))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
