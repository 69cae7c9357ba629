package db

import (
	"strconv"
	"strings"
)

// Args accumulates positional arguments and hands out $N placeholders, which
// both pgx and modernc sqlite accept.
type Args []any

// Add appends v and returns its placeholder.
func (a *Args) Add(v any) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

// In returns a parenthesised placeholder list for vals, for use with IN.
// vals must not be empty.
func (a *Args) In(vals []string) string {
	ph := make([]string, len(vals))
	for i, v := range vals {
		ph[i] = a.Add(v)
	}
	return "(" + strings.Join(ph, ",") + ")"
}

// Where joins conditions with AND, or returns "" when there are none.
func Where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// Page appends a LIMIT/OFFSET clause. limit <= 0 means no limit.
func (a *Args) Page(offset, limit int) string {
	if limit <= 0 {
		return ""
	}
	if offset < 0 {
		offset = 0
	}
	return " LIMIT " + a.Add(limit) + " OFFSET " + a.Add(offset)
}

// NullStr maps "" to NULL for optional foreign keys.
func NullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
