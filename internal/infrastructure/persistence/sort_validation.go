package persistence

import (
	"strings"

	"github.com/feedsync/backend/internal/domain/shared"
)

// orderClause builds an ORDER BY clause from a list filter. Columns outside
// allowed fall back to defaultField; any direction other than asc is DESC.
func orderClause(filter shared.Filter, allowed map[string]bool, defaultField string) string {
	field := strings.TrimSpace(filter.OrderBy)
	if !allowed[field] {
		field = defaultField
	}
	dir := "DESC"
	if strings.EqualFold(strings.TrimSpace(filter.OrderDir), "asc") {
		dir = "ASC"
	}
	return field + " " + dir
}
