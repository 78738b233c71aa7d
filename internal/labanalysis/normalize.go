package labanalysis

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldText lowercases s and strips diacritics so that "Glycémie", "GLYCEMIE"
// and "glycemie" compare equal.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	// Casers carry state, so each call gets its own.
	return cases.Fold().String(stripped)
}

// containsFolded reports whether needle occurs in haystack ignoring case and accents.
func containsFolded(haystack, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	return strings.Contains(foldText(haystack), foldText(needle))
}

// containsFold reports whether needle occurs in haystack ignoring case only.
// The sanitizer uses this stricter check so that kept names are literally present.
func containsFold(haystack, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// mentionsAnyMarker reports whether the text mentions at least one word of the
// fixed lab marker vocabulary.
func mentionsAnyMarker(text string) bool {
	folded := foldText(text)
	for _, marker := range markerVocabulary {
		if containsWord(folded, marker) {
			return true
		}
	}
	for _, re := range acronymMarkers {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// containsWord reports whether word occurs in s bounded by non-alphanumerics.
// Both arguments are expected to be folded already.
func containsWord(s, word string) bool {
	for start := 0; ; {
		idx := strings.Index(s[start:], word)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(word)
		if isBoundary(s, idx-1) && isBoundary(s, end) {
			return true
		}
		start = idx + 1
	}
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c >= 0x80)
}
