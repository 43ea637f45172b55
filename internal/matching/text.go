// Package matching provides the text, fuzzy, and pattern matching
// primitives used by the categorization engine and conflict detector.
package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ledgerline/categorizer/internal/model"
)

// stripMarks removes combining diacritical marks after NFD decomposition.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, trims, and strips diacritics from s, producing
// the canonical form used for case/diacritic-insensitive comparison.
func Normalize(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// TextSource is implemented by domain objects that expose a
// merchant-like text field for matching.
type TextSource interface {
	SearchText() string
}

// ExtractText produces a text representation from any supported record
// shape: raw strings, key-value maps, and domain objects. Unrecognized
// shapes yield an empty string rather than an error.
func ExtractText(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	case TextSource:
		return r.SearchText()
	case model.Transaction:
		return r.SearchText()
	case map[string]string:
		for _, key := range textKeys {
			if s, ok := r[key]; ok && s != "" {
				return s
			}
		}
	case map[string]any:
		for _, key := range textKeys {
			if raw, ok := r[key]; ok {
				if s, ok := raw.(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// textKeys are checked in priority order when extracting from maps.
var textKeys = []string{"merchant_name", "merchant", "description", "name"}
