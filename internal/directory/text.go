package directory

import (
	"strings"

	"github.com/tournevent/uadirectory/pkg/carrier"
)

// searchText is the lower-cased haystack matched by LIKE queries.
// Lower-casing happens here because SQLite's LOWER only folds ASCII.
func searchText(names carrier.Names, extra ...string) string {
	parts := make([]string, 0, 3+len(extra))
	for _, v := range []string{names.UK, names.EN, names.RU} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	for _, v := range extra {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.ToLower(strings.Join(parts, "\n"))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a case-insensitive substring pattern for term.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}

// numberSort returns the leading integer of a warehouse number, or 0.
func numberSort(number string) int64 {
	number = strings.TrimSpace(number)
	var n int64
	for i, r := range number {
		if r < '0' || r > '9' || i >= 18 {
			break
		}
		n = n*10 + int64(r-'0')
	}
	return n
}
