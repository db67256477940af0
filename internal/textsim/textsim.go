// Package textsim normalises free-text job fields and compares them.
package textsim

import (
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var companySuffixes = map[string]bool{
	"inc": true, "incorporated": true, "llc": true, "ltd": true, "limited": true,
	"corp": true, "corporation": true, "co": true, "company": true, "gmbh": true,
	"plc": true, "sa": true, "ag": true, "bv": true, "oy": true, "ab": true,
}

var titleAbbreviations = map[string]string{
	"swe":  "software engineer",
	"sde":  "software development engineer",
	"sr":   "senior",
	"snr":  "senior",
	"jr":   "junior",
	"eng":  "engineer",
	"engr": "engineer",
	"dev":  "developer",
	"mgr":  "manager",
	"mts":  "member of technical staff",
	"ml":   "machine learning",
	"qa":   "quality assurance",
	"sre":  "site reliability engineer",
	"ops":  "operations",
}

var remoteMarkers = []string{"remote", "anywhere", "work from home", "wfh", "virtual", "distributed"}

// Fold lower-cases s, strips accents, turns punctuation into spaces and
// collapses whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' || r == '#':
			// c++ and c# survive folding.
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Company returns the identity key of a company name: folded, without a
// leading "the" and without legal-form suffixes.
func Company(name string) string {
	words := strings.Fields(Fold(name))
	if len(words) > 1 && words[0] == "the" {
		words = words[1:]
	}
	for len(words) > 1 && companySuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// Title folds a job title and expands the usual abbreviations so that
// "Sr. SWE II" and "Senior Software Engineer II" compare equal.
func Title(title string) string {
	words := strings.Fields(Fold(title))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if full, ok := titleAbbreviations[w]; ok {
			out = append(out, full)
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

// Location folds a location string.
func Location(location string) string {
	return Fold(location)
}

// IsRemote reports whether a free-text location describes remote work.
func IsRemote(location string) bool {
	folded := Fold(location)
	if folded == "" {
		return false
	}
	for _, marker := range remoteMarkers {
		if strings.Contains(folded, marker) {
			return true
		}
	}
	return false
}

// Ratio is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
// Both inputs are compared as given; callers normalise first.
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// TitleSimilarity normalises both titles and returns their Ratio.
func TitleSimilarity(a, b string) float64 {
	return Ratio(Title(a), Title(b))
}

// LocationSimilarity is the Ratio of the folded locations, except that a
// location whose words are all contained in the other counts as a full match
// ("Seattle" against "Seattle, WA").
func LocationSimilarity(a, b string) float64 {
	fa, fb := Location(a), Location(b)
	if fa == "" || fb == "" {
		return 0
	}
	if containsWords(fa, fb) || containsWords(fb, fa) {
		return 1
	}
	return Ratio(fa, fb)
}

// Words splits folded text into a set of words.
func Words(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(Fold(s)) {
		set[w] = true
	}
	return set
}

func containsWords(haystack, needle string) bool {
	words := Words(haystack)
	for _, w := range strings.Fields(needle) {
		if !words[w] {
			return false
		}
	}
	return true
}
