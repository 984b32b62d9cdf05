package repository

import (
	"fmt"
	"strings"

	"barrel-market-api/internal/model"
)

// placeholder renders the n-th bind parameter of a dialect.
type placeholder func(n int) string

func dollar(n int) string { return fmt.Sprintf("$%d", n) }
func question(int) string { return "?" }

type queryBuilder struct {
	ph         placeholder
	conditions []string
	args       []interface{}
}

func newQueryBuilder(ph placeholder) *queryBuilder {
	return &queryBuilder{ph: ph}
}

// arg binds v and returns its placeholder.
func (qb *queryBuilder) arg(v interface{}) string {
	qb.args = append(qb.args, v)
	return qb.ph(len(qb.args))
}

// where adds a condition; %s verbs are filled with placeholders for args.
func (qb *queryBuilder) where(cond string, args ...interface{}) {
	phs := make([]interface{}, len(args))
	for i, a := range args {
		phs[i] = qb.arg(a)
	}
	qb.conditions = append(qb.conditions, fmt.Sprintf(cond, phs...))
}

// whereRaw adds a condition verbatim, for SQL that contains a literal %.
func (qb *queryBuilder) whereRaw(cond string) {
	qb.conditions = append(qb.conditions, cond)
}

func (qb *queryBuilder) whereClause() string {
	if len(qb.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(qb.conditions, " AND ")
}

// escapeLike escapes LIKE wildcards using backslash.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// orderFor returns the ORDER BY clause for sort modes without a name filter.
func orderFor(mode model.SortMode) string {
	switch mode {
	case model.SortName:
		return " ORDER BY name ASC, created_at DESC, id DESC"
	case model.SortBenefit:
		return " ORDER BY benefit_ratio DESC, created_at DESC, id DESC"
	default:
		return " ORDER BY created_at DESC, id DESC"
	}
}

const listingColumns = `id, name, price, quantity, seller, seller_uuid, minecraft_id, type_id, type_ru,
	benefit_ratio, x, y, z`
