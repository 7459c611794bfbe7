// Package query provides a chainable builder of filter, sort and paging
// queries that are run in memory over the complete contents of a source. No
// backend is asked to evaluate anything; the source only needs to be able to
// return everything it holds.
//
// Execution always applies every filter clause first, then the sort, then the
// limit and offset window:
//
//	adults, err := query.New[jelstore.User](repo).
//		Where("age", ">=", 18).
//		OrderBy("name", query.Asc).
//		Limit(10).
//		Execute(ctx)
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/dekarrin/jelstore/internal/jelsort"
	"github.com/dekarrin/jelstore/serr"
)

// Fielder is a record whose fields can be looked up by name.
type Fielder interface {
	// FieldValue returns the value of the named field, and false if there is
	// no such field.
	FieldValue(name string) (any, bool)
}

// Source gives the complete set of records a query runs over.
type Source[E any] interface {
	GetAll(ctx context.Context) ([]E, error)
}

// Direction is the direction of a sort.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

type sortSpec struct {
	field string
	dir   Direction
}

// Builder accumulates filter clauses, a sort and a paging window, and runs
// them against its Source when Execute is called. Every method other than
// Execute returns the same Builder so calls can be chained.
//
// A Builder is single-use; calling Execute a second time returns an error.
// Builders are not safe for use from multiple goroutines.
type Builder[E Fielder] struct {
	src      Source[E]
	where    []Clause
	order    *sortSpec
	limit    int
	offset   int
	executed bool
}

// New returns a Builder that runs over the records of src.
func New[E Fielder](src Source[E]) *Builder[E] {
	return &Builder[E]{src: src}
}

// Where adds a filter clause. A record must match every clause to be
// included. The operator is checked when the query is executed.
func (b *Builder[E]) Where(field string, op string, value any) *Builder[E] {
	b.where = append(b.where, Clause{Field: field, Op: Op(op), Value: value})
	return b
}

// OrderBy sets the field to sort on. If no direction is given, Asc is used.
// Only one sort field is kept; a later call replaces an earlier one. Records
// whose field is missing, or holds something other than text or a number, sort
// after all others in either direction. Numbers sort before text that is not a
// number.
func (b *Builder[E]) OrderBy(field string, dir ...Direction) *Builder[E] {
	d := Asc
	if len(dir) > 0 {
		d = dir[0]
	}
	b.order = &sortSpec{field: field, dir: d}
	return b
}

// Limit sets the maximum number of records returned. A limit of 0 means no
// limit.
func (b *Builder[E]) Limit(n int) *Builder[E] {
	b.limit = n
	return b
}

// Offset sets the number of matching records skipped before the first one
// returned.
func (b *Builder[E]) Offset(n int) *Builder[E] {
	b.offset = n
	return b
}

// Clauses returns the filter clauses added so far.
func (b *Builder[E]) Clauses() []Clause {
	out := make([]Clause, len(b.where))
	copy(out, b.where)
	return out
}

// String returns a human-readable representation of the query.
func (b *Builder[E]) String() string {
	var sb strings.Builder
	sb.WriteString("SELECT *")

	for i := range b.where {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(b.where[i].String())
	}

	if b.order != nil {
		sb.WriteString(fmt.Sprintf(" ORDER BY %s %s", b.order.field, strings.ToUpper(string(b.order.dir))))
	}
	if b.limit != 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", b.limit))
	}
	if b.offset != 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", b.offset))
	}

	return sb.String()
}

func (b *Builder[E]) validate() error {
	for _, c := range b.where {
		if !c.Op.Valid() {
			return serr.NewValidation("operator", string(c.Op), serr.ErrUnsupportedOperator.Error()+": "+string(c.Op)).
				With(serr.CtxOperation, "query")
		}
	}

	if b.order != nil && b.order.dir != Asc && b.order.dir != Desc {
		return serr.NewValidation("direction", string(b.order.dir), "sort direction must be 'asc' or 'desc'").
			With(serr.CtxOperation, "query")
	}
	if b.limit < 0 {
		return serr.NewValidation("limit", b.limit, "limit must not be negative").With(serr.CtxOperation, "query")
	}
	if b.offset < 0 {
		return serr.NewValidation("offset", b.offset, "offset must not be negative").With(serr.CtxOperation, "query")
	}

	return nil
}

// Execute checks the query, pulls every record from the source, and returns
// the records that match all clauses, sorted and then cut down to the paging
// window. An invalid query is rejected before the source is read. If the
// source fails, the returned error is a Storage-kind error wrapping it.
//
// The source is never modified.
func (b *Builder[E]) Execute(ctx context.Context) ([]E, error) {
	if b.executed {
		return nil, serr.NewValidation("query", b.String(), "query has already been executed")
	}
	b.executed = true

	if err := b.validate(); err != nil {
		return nil, err
	}

	all, err := b.src.GetAll(ctx)
	if err != nil {
		return nil, serr.New(serr.KindStorage, "execute query", err).With(serr.CtxOperation, "query")
	}

	matched := filter(all, b.where)
	sorted := b.sort(matched)
	return paginate(sorted, b.offset, b.limit), nil
}

func filter[E Fielder](records []E, clauses []Clause) []E {
	out := make([]E, 0, len(records))
	for _, rec := range records {
		ok := true
		for _, c := range clauses {
			if !c.Matches(rec) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out
}

func (b *Builder[E]) sort(records []E) []E {
	if b.order == nil {
		return records
	}

	field := b.order.field
	desc := b.order.dir == Desc

	// records without an orderable value go last in either direction
	return jelsort.By(records, func(left, right E) bool {
		lv, lok := left.FieldValue(field)
		rv, rok := right.FieldValue(field)
		lok = lok && orderable(lv)
		rok = rok && orderable(rv)
		if !lok || !rok {
			return lok && !rok
		}

		if desc {
			lv, rv = rv, lv
		}
		return orderedBefore(lv, rv)
	})
}

func paginate[E any](records []E, offset, limit int) []E {
	if offset >= len(records) {
		return []E{}
	}
	end := len(records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return records[offset:end]
}
