package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
)

const jobColumns = "id, account_id, platform, status, title, content, retries, created_at, updated_at"

// whereClause translates filters into a WHERE clause. Keys the store does
// not know are ignored.
type whereClause struct {
	d     dialect
	conds []string
	args  []any
}

func (w *whereClause) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", w.d.placeholder(len(w.args))))
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func buildWhere(d dialect, f domain.FilterState) *whereClause {
	w := &whereClause{d: d}
	if v, ok := f.Get(domain.KeyAccountID); ok {
		w.add("account_id = ?", v)
	}
	if v, ok := f.Get(domain.KeyPlatform); ok {
		w.add("platform = ?", v)
	}
	if v, ok := f.Get(domain.KeyStatus); ok {
		w.add("status = ?", v)
	}
	if v, ok := f.Get(domain.KeyMinRetries); ok {
		n, _ := strconv.Atoi(v)
		w.add("retries >= ?", n)
	}
	if v, ok := f.Get(domain.KeyQuery); ok {
		pattern := "%" + escapeLike(v) + "%"
		w.args = append(w.args, pattern, pattern)
		n := len(w.args)
		w.conds = append(w.conds, fmt.Sprintf(`(title %[1]s %[2]s ESCAPE '\' OR content %[1]s %[3]s ESCAPE '\')`,
			d.like, d.placeholder(n-1), d.placeholder(n)))
	}
	from, to := f.Range()
	if !from.IsZero() {
		w.add("created_at >= ?", from.UTC().Format(timeLayout))
	}
	if !to.IsZero() {
		w.add("created_at <= ?", to.UTC().Format(timeLayout))
	}
	return w
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func countQuery(w *whereClause) string {
	return "SELECT COUNT(*) FROM " + jobsTable + w.String()
}

func listQuery(w *whereClause, p domain.Pagination) (string, []any) {
	args := append([]any(nil), w.args...)
	args = append(args, p.Limit(), p.Offset())
	q := "SELECT " + jobColumns + " FROM " + jobsTable + w.String() +
		" ORDER BY created_at DESC, id DESC LIMIT " + w.d.placeholder(len(args)-1) +
		" OFFSET " + w.d.placeholder(len(args))
	return q, args
}
