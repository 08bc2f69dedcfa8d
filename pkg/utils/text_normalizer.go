package utils

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters that do not decompose into a base letter plus a combining mark
var letterFolds = strings.NewReplacer(
	"đ", "d",
	"ð", "d",
	"ø", "o",
	"ł", "l",
	"ß", "ss",
	"æ", "ae",
	"œ", "oe",
)

// FoldText lowercases, strips diacritics and collapses whitespace.
// "Hà Nội" and "ha noi" fold to the same string.
func FoldText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	s = letterFolds.Replace(s)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(folded), " ")
}

// CompactKey folds s and drops everything but letters and digits, so "Hà Nội",
// "ha-noi" and "Hanoi" share one key
func CompactKey(s string) string {
	return strings.Join(FoldAndTokenize(s), "")
}

// Tokenize splits folded text on anything that is not a letter or digit
func Tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// FoldAndTokenize folds text and splits it into tokens
func FoldAndTokenize(s string) []string {
	return Tokenize(FoldText(s))
}

// HasSpecialCharacters reports whether s contains anything other than letters, digits and spaces
func HasSpecialCharacters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

// EdgeNGrams returns the prefixes of s with rune length in [min, max]
func EdgeNGrams(s string, min, max int) []string {
	runesOf := []rune(s)
	if min < 1 {
		min = 1
	}
	if max > len(runesOf) {
		max = len(runesOf)
	}
	if min > max {
		return nil
	}
	grams := make([]string, 0, max-min+1)
	for n := min; n <= max; n++ {
		grams = append(grams, string(runesOf[:n]))
	}
	return grams
}

// FuzzinessFor returns the edit distance allowed for a token, scaled with its rune length
func FuzzinessFor(token string) int {
	switch n := len([]rune(token)); {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

// DedupeSorted lowercases, trims and de-duplicates values, returning them sorted
func DedupeSorted(values []string, fold bool) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if fold {
			v = FoldText(v)
		} else {
			v = strings.ToLower(strings.TrimSpace(v))
		}
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
