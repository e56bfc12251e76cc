package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// listQuery appends ListOpts filtering, newest-first ordering and
// pagination to a SELECT that already has a WHERE clause.
type listQuery struct {
	sb   strings.Builder
	args []any
}

func newListQuery(base string, args ...any) *listQuery {
	q := &listQuery{args: args}
	q.sb.WriteString(base)
	return q
}

func (q *listQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *listQuery) where(cond string, v any) {
	q.sb.WriteString(" AND ")
	q.sb.WriteString(fmt.Sprintf(cond, q.arg(v)))
}

func (q *listQuery) apply(opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		q.where("created_at >= %s", *opts.Since)
	}
	if opts.Until != nil {
		q.where("created_at <= %s", *opts.Until)
	}
	q.sb.WriteString(" ORDER BY created_at DESC")
	if opts.Limit > 0 {
		q.sb.WriteString(" LIMIT " + q.arg(opts.Limit))
	}
	if opts.Offset > 0 {
		q.sb.WriteString(" OFFSET " + q.arg(opts.Offset))
	}
	return q.sb.String(), q.args
}
