package storage

import (
	"strconv"
	"strings"
)

// query accumulates positional arguments and WHERE conditions for the
// dynamic list and update statements.
type query struct {
	args  []any
	conds []string
}

// arg binds v and returns its placeholder.
func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

// where adds a condition; each "?" in cond binds the next value of vals.
func (q *query) where(cond string, vals ...any) {
	var b strings.Builder
	i := 0
	for _, r := range cond {
		if r == '?' && i < len(vals) {
			b.WriteString(q.arg(vals[i]))
			i++
			continue
		}
		b.WriteRune(r)
	}
	q.conds = append(q.conds, b.String())
}

func (q *query) whereClause() string {
	if len(q.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conds, " AND ")
}

// setList collects "column = $n" assignments for UPDATE statements.
type setList struct {
	q    *query
	sets []string
}

func (s *setList) set(column string, v any) {
	s.sets = append(s.sets, column+" = "+s.q.arg(v))
}

func (s *setList) setExpr(column, expr string, v any) {
	s.sets = append(s.sets, column+" = "+strings.Replace(expr, "?", s.q.arg(v), 1))
}

func (s *setList) String() string {
	return strings.Join(s.sets, ", ")
}
