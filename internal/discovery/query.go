package discovery

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacriticFolder strips combining marks so accented business names match
// their ASCII renderings in search results.
var diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// BuildQuery assembles the search query from name, city, and state. The whole
// query is folded; accented city names mismatch as easily as accented names.
func BuildQuery(identity Identity) string {
	parts := []string{identity.Name}
	if identity.City != "" {
		parts = append(parts, identity.City)
	}
	if identity.State != "" {
		parts = append(parts, identity.State)
	}
	return FoldName(strings.Join(parts, " "))
}

// FoldName folds diacritics and collapses whitespace in a business name.
func FoldName(name string) string {
	folded, _, err := transform.String(diacriticFolder, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(folded), " ")
}
