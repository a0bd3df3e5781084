package repository

import (
	"slices"
)

// Sort orders query results. Less, when set, takes precedence over Field.
type Sort[T any] struct {
	Field      string
	Descending bool
	Less       func(a, b T) bool
}

func OrderBy[T any](field string) Sort[T] {
	return Sort[T]{Field: field}
}

func OrderByDesc[T any](field string) Sort[T] {
	return Sort[T]{Field: field, Descending: true}
}

// SortFunc orders by a comparison function.
func SortFunc[T any](less func(a, b T) bool) Sort[T] {
	return Sort[T]{Less: less}
}

// Apply sorts entities in place and keeps equal elements in their
// original order. A nil sort leaves the slice untouched.
func (s *Sort[T]) Apply(entities []T) {
	if s == nil || (s.Less == nil && s.Field == "") {
		return
	}
	slices.SortStableFunc(entities, func(a, b T) int {
		cmp := s.compare(a, b)
		if s.Descending {
			return -cmp
		}
		return cmp
	})
}

func (s *Sort[T]) compare(a, b T) int {
	if s.Less != nil {
		switch {
		case s.Less(a, b):
			return -1
		case s.Less(b, a):
			return 1
		}
		return 0
	}

	av, aok := FieldValue(a, s.Field)
	bv, bok := FieldValue(b, s.Field)
	if !aok || !bok {
		return 0
	}
	cmp, _ := compareValues(av, bv)
	return cmp
}
