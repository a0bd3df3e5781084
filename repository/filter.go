package repository

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Operator is the comparison applied by a Condition.
type Operator string

const (
	OpEq       Operator = "="
	OpNe       Operator = "<>"
	OpGt       Operator = ">"
	OpGte      Operator = ">="
	OpLt       Operator = "<"
	OpLte      Operator = "<="
	OpIn       Operator = "IN"
	OpContains Operator = "LIKE"
)

// Condition compares one field of an entity with a value. Field matches
// the Go field name, its json tag or its snake_case form.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func Where(field string, op Operator, value any) Condition {
	return Condition{Field: field, Operator: op, Value: value}
}

func Eq(field string, value any) Condition {
	return Where(field, OpEq, value)
}

// Filter selects entities. All conditions must hold and, when set, so must
// Predicate. Data sources that translate conditions to a query language
// apply Predicate in process.
type Filter[T any] struct {
	Conditions []Condition
	Predicate  func(T) bool
}

// NewFilter builds a filter from conditions.
func NewFilter[T any](conditions ...Condition) Filter[T] {
	return Filter[T]{Conditions: conditions}
}

// FilterFunc builds a filter from a predicate.
func FilterFunc[T any](predicate func(T) bool) Filter[T] {
	return Filter[T]{Predicate: predicate}
}

// Matches reports whether entity satisfies the filter. A nil filter matches everything.
func (f *Filter[T]) Matches(entity T) bool {
	if f == nil {
		return true
	}
	for _, cond := range f.Conditions {
		if !cond.Matches(entity) {
			return false
		}
	}
	if f.Predicate != nil && !f.Predicate(entity) {
		return false
	}
	return true
}

// Apply returns the entities matching f, in their original order.
func (f *Filter[T]) Apply(entities []T) []T {
	out := make([]T, 0, len(entities))
	for _, e := range entities {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Matches reports whether the condition holds for entity. Unknown fields
// and incomparable values never match.
func (c Condition) Matches(entity any) bool {
	field, ok := FieldValue(entity, c.Field)
	if !ok {
		return false
	}

	switch c.Operator {
	case OpEq, "":
		cmp, ok := compareValues(field, c.Value)
		return ok && cmp == 0
	case OpNe:
		cmp, ok := compareValues(field, c.Value)
		return !ok || cmp != 0
	case OpGt:
		cmp, ok := compareValues(field, c.Value)
		return ok && cmp > 0
	case OpGte:
		cmp, ok := compareValues(field, c.Value)
		return ok && cmp >= 0
	case OpLt:
		cmp, ok := compareValues(field, c.Value)
		return ok && cmp < 0
	case OpLte:
		cmp, ok := compareValues(field, c.Value)
		return ok && cmp <= 0
	case OpIn:
		rv := reflect.ValueOf(c.Value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return false
		}
		for i := 0; i < rv.Len(); i++ {
			if cmp, ok := compareValues(field, rv.Index(i).Interface()); ok && cmp == 0 {
				return true
			}
		}
		return false
	case OpContains:
		return strings.Contains(
			strings.ToLower(fmt.Sprint(field)),
			strings.ToLower(fmt.Sprint(c.Value)),
		)
	default:
		return false
	}
}

// FieldValue reads the named field from a struct or pointer to struct.
func FieldValue(entity any, name string) (any, bool) {
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		if fieldMatches(sf, name) {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}

func fieldMatches(sf reflect.StructField, name string) bool {
	if strings.EqualFold(sf.Name, name) || SnakeCase(sf.Name) == name {
		return true
	}
	for _, tag := range []string{"json", "bun", "msgpack"} {
		tagName, _, _ := strings.Cut(sf.Tag.Get(tag), ",")
		if tagName != "" && tagName == name {
			return true
		}
	}
	return false
}

// compareValues orders a and b. ok is false when the values cannot be compared.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, a == nil && b == nil
	}

	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return at.Compare(bt), true
	}

	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	for av.Kind() == reflect.Pointer {
		if av.IsNil() {
			return 0, false
		}
		av = av.Elem()
	}

	switch {
	case isNumber(av.Kind()) && isNumber(bv.Kind()):
		af, bf := toFloat(av), toFloat(bv)
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	case av.Kind() == reflect.String && bv.Kind() == reflect.String:
		return strings.Compare(av.String(), bv.String()), true
	case av.Kind() == reflect.Bool && bv.Kind() == reflect.Bool:
		if av.Bool() == bv.Bool() {
			return 0, true
		}
		if !av.Bool() {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func toFloat(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	default:
		return v.Float()
	}
}
