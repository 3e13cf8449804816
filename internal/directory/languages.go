package directory

import (
	"strings"

	"github.com/samber/lo"
	"github.com/tournevent/uadirectory/pkg/carrier"
)

// DefaultLanguages is the label priority used when none is configured.
var DefaultLanguages = Languages{carrier.LangUK, carrier.LangEN, carrier.LangRU}

// fallbackOrder is tried after the configured priority is exhausted.
var fallbackOrder = []string{carrier.LangUK, carrier.LangEN, carrier.LangRU}

// Languages is an ordered label priority list.
type Languages []string

// ParseLanguages parses a comma separated priority such as "en,uk".
// Codes are trimmed, lower-cased and deduplicated; an empty list yields the default.
func ParseLanguages(s string) Languages {
	codes := lo.FilterMap(strings.Split(s, ","), func(code string, _ int) (string, bool) {
		code = strings.ToLower(strings.TrimSpace(code))
		return code, code != ""
	})
	codes = lo.Uniq(codes)
	if len(codes) == 0 {
		return append(Languages(nil), DefaultLanguages...)
	}
	return codes
}

// Label returns the first non-empty name in priority order, then in the
// fixed uk, en, ru fallback order, or "" when every name is empty.
func (l Languages) Label(names carrier.Names) string {
	for _, lang := range l {
		if v := names.Get(lang); v != "" {
			return v
		}
	}
	for _, lang := range fallbackOrder {
		if v := names.Get(lang); v != "" {
			return v
		}
	}
	return ""
}

// Primary returns the first supported language, used for ordering.
func (l Languages) Primary() string {
	for _, lang := range l {
		if lo.Contains(fallbackOrder, lang) {
			return lang
		}
	}
	return carrier.LangUK
}

// String renders the list in its configuration form.
func (l Languages) String() string {
	return strings.Join(l, ",")
}
