package dbutil

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var mysqlLimitRegex = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

// Finalize turns a gendry generated statement into its postgres form:
// `LIMIT ?,?` (offset first) becomes `LIMIT ? OFFSET ?` with the arguments
// swapped, and placeholders are rebound to $N.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	if loc := mysqlLimitRegex.FindStringIndex(query); loc != nil {
		pos := strings.Count(query[:loc[0]], "?")
		if pos+1 < len(args) {
			args[pos], args[pos+1] = args[pos+1], args[pos]
			query = query[:loc[0]] + "LIMIT ? OFFSET ?" + query[loc[1]:]
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

// IsConflict reports a postgres unique_violation.
func IsConflict(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
