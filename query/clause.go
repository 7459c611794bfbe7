package query

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Op is a comparison operator used in a filter clause.
type Op string

const (
	OpEq       Op = "="
	OpEqEq     Op = "=="
	OpStrictEq Op = "==="
	OpNe       Op = "!="
	OpStrictNe Op = "!=="
	OpGt       Op = ">"
	OpLt       Op = "<"
	OpGe       Op = ">="
	OpLe       Op = "<="
	OpIncludes Op = "includes"
)

// Valid returns whether op is a supported operator.
func (op Op) Valid() bool {
	switch op {
	case OpEq, OpEqEq, OpStrictEq, OpNe, OpStrictNe, OpGt, OpLt, OpGe, OpLe, OpIncludes:
		return true
	default:
		return false
	}
}

// Clause is a single filter condition on one field.
type Clause struct {
	Field string
	Op    Op
	Value any
}

func (c Clause) String() string {
	return fmt.Sprintf("%s %s %#v", c.Field, c.Op, c.Value)
}

// Matches returns whether rec satisfies c. A record without the field only
// matches the not-equal operators. Unsupported operators never match.
func (c Clause) Matches(rec Fielder) bool {
	fv, _ := rec.FieldValue(c.Field)
	return evaluate(fv, c.Op, c.Value)
}

func evaluate(fv any, op Op, value any) bool {
	switch op {
	case OpEq, OpEqEq, OpStrictEq:
		return equal(fv, value)
	case OpNe, OpStrictNe:
		return !equal(fv, value)
	case OpGt:
		c, ok := compare(fv, value)
		return ok && c > 0
	case OpLt:
		c, ok := compare(fv, value)
		return ok && c < 0
	case OpGe:
		c, ok := compare(fv, value)
		return ok && c >= 0
	case OpLe:
		c, ok := compare(fv, value)
		return ok && c <= 0
	case OpIncludes:
		return includes(fv, value)
	default:
		return false
	}
}

// includes is a case-insensitive substring check for text fields and a
// membership check for slice and array fields. Any other field never matches.
func includes(fv any, value any) bool {
	if s, ok := fv.(string); ok {
		sub, ok := value.(string)
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
	}

	rv := reflect.ValueOf(fv)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if equal(rv.Index(i).Interface(), value) {
			return true
		}
	}
	return false
}

// equal is a strict equality check. Numbers of any Go numeric type are equal
// if they hold the same value; otherwise both sides must be of the same kind.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	an, aNum := number(a)
	bn, bNum := number(b)
	if aNum || bNum {
		return aNum && bNum && an == bn
	}

	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

// compare orders a against b. Two strings compare by bytes; anything else is
// converted to a number first, where text is parsed and booleans count as 0
// or 1. The second return value is false if the two cannot be ordered.
func compare(a, b any) (int, bool) {
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(as, bs), true
	}

	an, ok := coerceNumber(a)
	if !ok {
		return 0, false
	}
	bn, ok := coerceNumber(b)
	if !ok {
		return 0, false
	}

	switch {
	case an < bn:
		return -1, true
	case an > bn:
		return 1, true
	default:
		return 0, true
	}
}

// orderable returns whether v can be placed in a sort order at all: it must be
// text or convertible to a number.
func orderable(v any) bool {
	if _, ok := v.(string); ok {
		return true
	}
	_, ok := coerceNumber(v)
	return ok
}

// orderedBefore returns whether orderable value a sorts before orderable value
// b. Values that compare cannot order are text that is not a number against a
// number; the number comes first.
func orderedBefore(a, b any) bool {
	if c, ok := compare(a, b); ok {
		return c < 0
	}
	_, aNum := coerceNumber(a)
	_, bNum := coerceNumber(b)
	return aNum && !bNum
}

// number returns v as a float64 if it is of a Go numeric type.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n)
	default:
		return 0, false
	}
}

func coerceNumber(v any) (float64, bool) {
	if n, ok := number(v); ok {
		return n, true
	}

	switch t := v.(type) {
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, true
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(n) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
