package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalCountry(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"France", "France"},
		{"france", "France"},
		{"united_kingdom", "United Kingdom"},
		{"UK", "United Kingdom"},
		{"usa", "US"},
		{"United States", "US"},
		{"united states of america", "US"},
		{"  south   korea ", "South Korea"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalCountry(tt.in), "input %q", tt.in)
	}
}

func TestCountryKey_AliasesCollapse(t *testing.T) {
	// Every spelling of the same country must hit the same store entry.
	assert.Equal(t, CountryKey("USA"), CountryKey("us"))
	assert.Equal(t, CountryKey("united_states"), CountryKey("US"))
	assert.Equal(t, CountryKey("UK"), CountryKey("United Kingdom"))
	assert.NotEqual(t, CountryKey("France"), CountryKey("Germany"))
}
