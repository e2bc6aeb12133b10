package repository

import (
	"fmt"
	"strings"
)

// predicate is one (column, operator, value) filter condition. Predicates
// are collected in order and compiled once into a parameterized WHERE
// clause; user-supplied values only ever travel as bind arguments.
type predicate struct {
	column string
	op     string
	value  interface{}
}

type predicateList struct {
	preds []predicate
	raw   []string // pre-rendered fragments with %d placeholder indices
	args  []interface{}
}

func newPredicateList() *predicateList {
	return &predicateList{}
}

func (p *predicateList) Add(column, op string, value interface{}) {
	p.preds = append(p.preds, predicate{column: column, op: op, value: value})
}

// AddRaw appends a fragment that needs more than "column op $n", e.g. an IN
// list or a nested OR group. The fragment must contain one %d verb per
// argument, numbered during compilation.
func (p *predicateList) AddRaw(fragment string, values ...interface{}) {
	p.preds = append(p.preds, predicate{})
	p.raw = append(p.raw, fragment)
	p.args = append(p.args, values)
	// marker: a predicate with empty column consumes the next raw fragment
}

// Compile renders the WHERE clause (without the leading WHERE) and the bind
// arguments in placeholder order. startIdx is the first $n index to use.
func (p *predicateList) Compile(startIdx int) (string, []interface{}, int) {
	clauses := make([]string, 0, len(p.preds))
	args := make([]interface{}, 0, len(p.preds))
	idx := startIdx
	rawPos := 0

	for _, pred := range p.preds {
		if pred.column == "" {
			fragment := p.raw[rawPos]
			values := p.args[rawPos].([]interface{})
			rawPos++

			indices := make([]interface{}, len(values))
			for i := range values {
				indices[i] = idx
				idx++
			}
			clauses = append(clauses, fmt.Sprintf(fragment, indices...))
			args = append(args, values...)
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s %s $%d", pred.column, pred.op, idx))
		args = append(args, pred.value)
		idx++
	}

	return strings.Join(clauses, " AND "), args, idx
}

// Empty reports whether no predicates were added.
func (p *predicateList) Empty() bool {
	return len(p.preds) == 0
}

// WhereClause returns " WHERE ..." or "" when empty.
func (p *predicateList) WhereClause(startIdx int) (string, []interface{}, int) {
	if p.Empty() {
		return "", nil, startIdx
	}
	clause, args, next := p.Compile(startIdx)
	return " WHERE " + clause, args, next
}

// inPlaceholders renders "$n,$n+1,..." fragments for IN lists built via
// AddRaw, e.g. AddRaw("action_type IN ("+inPlaceholders(len(xs))+")", vals...).
func inPlaceholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$%d"
	}
	return strings.Join(parts, ",")
}
