package resolver

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/siherrmann/biograph/model"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer strips combining marks so that "Curie" and "Curié" produce
// the same key.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeKey folds a name into its match key form: lowercased, diacritics
// removed, punctuation dropped and whitespace collapsed.
func NormalizeKey(name string) string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		folded = name
	}

	var builder strings.Builder
	builder.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			builder.WriteRune(unicode.ToLower(r))
		default:
			builder.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(builder.String()), " ")
}

// nameYearKey combines the normalized name with the birth year. It is the
// strongest match signal, two mentions sharing it are near certainly the same
// person.
func nameYearKey(name string, year int) string {
	return NormalizeKey(name) + "|" + strconv.Itoa(year)
}

// matchKeys returns all match keys of the attributes: the normalized name,
// each normalized alias and, when the birth year is known, the name plus year
// key. Keys are deduplicated, empty names produce no keys.
func matchKeys(attrs *model.StructuredAttributes) []string {
	seen := map[string]bool{}
	keys := make([]string, 0, len(attrs.Aliases)+2)

	add := func(key string) {
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		keys = append(keys, key)
	}

	add(NormalizeKey(attrs.Name))
	for _, alias := range attrs.Aliases {
		add(NormalizeKey(alias))
	}
	if attrs.Born != nil && attrs.Name != "" {
		add(nameYearKey(attrs.Name, attrs.Born.Year))
	}

	return keys
}

// entityKeys returns the match keys an entity currently owns, derived from
// its canonical name, aliases and known birth year.
func entityKeys(entity *model.Entity) []string {
	attrs := &model.StructuredAttributes{
		Name:    entity.Name,
		Aliases: entity.Aliases,
		Born:    entity.Attributes.Born,
	}
	return matchKeys(attrs)
}
