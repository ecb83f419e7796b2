package util

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
)

// IetfToIsoLangCode converts an IETF tag such as "pt-BR" or "en" into the
// underscore form lctime expects ("pt_BR", "en_US").
func IetfToIsoLangCode(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return "en_US"
	}
	base, _ := tag.Base()
	region, _ := tag.Region()
	return base.String() + "_" + region.String()
}

// PreferredLanguage picks the highest weighted tag from an Accept-Language
// header, falling back to fallback when the header is empty or invalid.
func PreferredLanguage(acceptLanguage, fallback string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	return tags[0].String()
}

// TotalPages returns how many pages of size limit are needed for total items.
func TotalPages(total, limit int64) int64 {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// ContainsRegex builds a case insensitive "contains" pattern from user input.
func ContainsRegex(s string) string {
	return "(?i)" + regexp.QuoteMeta(strings.TrimSpace(s))
}

func TrimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
