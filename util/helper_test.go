package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIetfToIsoLangCode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "with region", input: "pt-BR", expected: "pt_BR"},
		{name: "without region", input: "en", expected: "en_US"},
		{name: "russian", input: "ru", expected: "ru_RU"},
		{name: "invalid", input: "!!", expected: "en_US"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IetfToIsoLangCode(tt.input))
		})
	}
}

func TestPreferredLanguage(t *testing.T) {
	assert.Equal(t, "pt-BR", PreferredLanguage("", "pt-BR"))
	assert.Equal(t, "en-US", PreferredLanguage("en-US,en;q=0.9,pt;q=0.8", "pt-BR"))
	assert.Equal(t, "pt", PreferredLanguage("en;q=0.5,pt;q=0.9", "en"))
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		name         string
		total, limit int64
		expected     int64
	}{
		{name: "empty", total: 0, limit: 9, expected: 0},
		{name: "exact", total: 18, limit: 9, expected: 2},
		{name: "remainder", total: 19, limit: 9, expected: 3},
		{name: "zero limit", total: 5, limit: 0, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TotalPages(tt.total, tt.limit))
		})
	}
}

func TestContainsRegex(t *testing.T) {
	assert.Equal(t, `(?i)a\.b`, ContainsRegex(" a.b "))
}

func TestTrimAll(t *testing.T) {
	assert.Equal(t, []string{"one", "two"}, TrimAll([]string{" one ", "", "  ", "two"}))
}
