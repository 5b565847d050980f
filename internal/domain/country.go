package domain

import (
	"strings"
	"unicode"
)

// The historical dataset, the artifact directories and the dashboard have
// all used different spellings for the same country ("United_Kingdom",
// "united kingdom", "UK"). Every boundary normalizes through this table so a
// spelling mismatch can no longer silently degrade a lookup to synthetic
// data.
var countryAliases = map[string]string{
	"uk":                       "United Kingdom",
	"us":                       "US",
	"usa":                      "US",
	"united states":            "US",
	"united states of america": "US",
}

// CanonicalCountry normalizes a free-form country name: underscores become
// spaces, runs of whitespace collapse, known aliases resolve to the dataset
// spelling and everything else is title-cased for display. Use CountryKey
// for map lookups.
func CanonicalCountry(raw string) string {
	s := strings.ReplaceAll(raw, "_", " ")
	s = strings.Join(strings.Fields(s), " ")
	if alias, ok := countryAliases[strings.ToLower(s)]; ok {
		return alias
	}
	return titleCase(s)
}

// CountryKey is the case-insensitive lookup key for a country.
func CountryKey(raw string) string {
	return strings.ToLower(CanonicalCountry(raw))
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
