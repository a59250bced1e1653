package textutil

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	nonAlphanumericPattern = regexp.MustCompile(`[^a-z0-9 ]+`)
	whitespacePattern      = regexp.MustCompile(`\s+`)

	lowerCaser = cases.Lower(language.AmericanEnglish)
	titleCaser = cases.Title(language.AmericanEnglish)
)

// venueSuffixWords are generic venue descriptors stripped when normalizing a
// name for fingerprinting, so "Polar Ice Arena" and "Polar Skating Rink"
// reduce toward the distinguishing tokens. Order matters: longer phrases
// are removed before their sub-phrases.
var venueSuffixWords = []string{
	"ice skating rink",
	"skating rink",
	"ice arena",
	"ice center",
	"ice centre",
	"ice complex",
	"ice house",
	"ice rink",
	"iceplex",
	"sportsplex",
	"arena",
	"rink",
}

// Normalize lowercases text, strips punctuation, and collapses whitespace.
// It is the shared canonical form for all fuzzy comparison.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	lowered := lowerCaser.String(strings.TrimSpace(text))
	lowered = nonAlphanumericPattern.ReplaceAllString(lowered, "")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(lowered, " "))
}

// NormalizeVenueName normalizes a venue name and strips generic venue
// descriptors. The result may be empty when a name consists solely of
// descriptors ("The Ice Rink"); callers fall back to Normalize then.
func NormalizeVenueName(name string) string {
	normalized := Normalize(name)
	if normalized == "" {
		return ""
	}
	for _, suffix := range venueSuffixWords {
		normalized = strings.ReplaceAll(normalized, suffix, " ")
	}
	normalized = strings.TrimSpace(whitespacePattern.ReplaceAllString(normalized, " "))
	if normalized == "" {
		return Normalize(name)
	}
	return normalized
}

// TitleCase renders a display-friendly title-cased form of a raw name.
func TitleCase(text string) string {
	return titleCaser.String(strings.TrimSpace(text))
}
