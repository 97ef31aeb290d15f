package db

import (
	"strconv"
	"strings"
)

// Filter is one conjunct of a Query's WHERE clause.
type Filter struct {
	Column string
	Value  any
	// IsNull selects rows where Column IS NULL; Value is ignored.
	IsNull bool
	// Never selects no rows at all.
	Never bool
}

// Query is a minimal SELECT builder. It exists so that predicates such as
// the tenant scope are attached as data rather than spliced into SQL text,
// which lets callers and tests inspect exactly what a read will filter on.
type Query struct {
	table   string
	columns []string
	filters []Filter
	orderBy string
	limit   int
}

// Select starts a query over table.
func Select(table string, columns ...string) *Query {
	return &Query{table: table, columns: columns}
}

// Where adds an equality filter.
func (q *Query) Where(column string, value any) *Query {
	q.filters = append(q.filters, Filter{Column: column, Value: value})
	return q
}

// WhereNull adds an IS NULL filter.
func (q *Query) WhereNull(column string) *Query {
	q.filters = append(q.filters, Filter{Column: column, IsNull: true})
	return q
}

// Never makes the query match nothing.
func (q *Query) Never() *Query {
	q.filters = append(q.filters, Filter{Never: true})
	return q
}

// OrderBy sets the ORDER BY expression.
func (q *Query) OrderBy(expr string) *Query {
	q.orderBy = expr
	return q
}

// Limit caps the number of rows; n <= 0 removes the cap.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Table returns the target table.
func (q *Query) Table() string { return q.table }

// Filters returns a copy of the WHERE conjuncts.
func (q *Query) Filters() []Filter {
	out := make([]Filter, len(q.filters))
	copy(out, q.filters)
	return out
}

// SQL renders the statement with PostgreSQL positional placeholders.
func (q *Query) SQL() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(q.columns) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(q.columns, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(q.table)

	args := make([]any, 0, len(q.filters))
	for i, f := range q.filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		switch {
		case f.Never:
			b.WriteString("FALSE")
		case f.IsNull:
			b.WriteString(f.Column + " IS NULL")
		default:
			args = append(args, f.Value)
			b.WriteString(f.Column + " = $" + strconv.Itoa(len(args)))
		}
	}
	if q.orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.orderBy)
	}
	if q.limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.limit))
	}
	return b.String(), args
}
