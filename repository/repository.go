// Package repository defines the data source contract shared by every tier
// (remote, local) and the query value objects passed through them.
package repository

import (
	"context"
	"math"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-repository-tiered/outcome"
)

// Repository is the contract implemented by remote and local data sources
// and by the tiered orchestrator itself. Every operation reports expected
// failures through outcome.Outcome; WatchAll streams list snapshots until
// ctx is done.
type Repository[T any, ID comparable] interface {
	GetByID(ctx context.Context, id ID) outcome.Outcome[T]
	GetAll(ctx context.Context, query Query[T]) outcome.Outcome[PaginatedList[T]]
	Create(ctx context.Context, entity T) outcome.Outcome[T]
	Update(ctx context.Context, entity T) outcome.Outcome[T]
	Delete(ctx context.Context, id ID) outcome.Outcome[outcome.Unit]
	CreateMany(ctx context.Context, entities []T) outcome.Outcome[[]T]
	DeleteMany(ctx context.Context, ids []ID) outcome.Outcome[outcome.Unit]
	WatchAll(ctx context.Context) <-chan []T
	Exists(ctx context.Context, id ID) outcome.Outcome[bool]
	Count(ctx context.Context, filter *Filter[T]) outcome.Outcome[int]
	FindFirst(ctx context.Context, filter Filter[T]) outcome.Outcome[T]
}

const (
	DefaultPage     = 1
	DefaultPageSize = 20
)

// Query describes a page request. Filter and Sort are optional.
type Query[T any] struct {
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	Filter   *Filter[T] `json:"-"`
	Sort     *Sort[T]   `json:"-"`
}

// NewQuery builds a query for the given page.
func NewQuery[T any](page, pageSize int) Query[T] {
	return Query[T]{Page: page, PageSize: pageSize}
}

// WithFilter returns a copy of q filtered by f.
func (q Query[T]) WithFilter(f Filter[T]) Query[T] {
	q.Filter = &f
	return q
}

// WithSort returns a copy of q ordered by s.
func (q Query[T]) WithSort(s Sort[T]) Query[T] {
	q.Sort = &s
	return q
}

// Normalized fills a zero page or page size with the defaults.
func (q Query[T]) Normalized() Query[T] {
	if q.Page == 0 {
		q.Page = DefaultPage
	}
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}
	return q
}

// Validate checks page >= 1 and pageSize >= 1. Call it after Normalized
// to accept zero values as defaults.
func (q Query[T]) Validate() error {
	err := validation.ValidateStruct(&q,
		validation.Field(&q.Page, validation.Required, validation.Min(1)),
		validation.Field(&q.PageSize, validation.Required, validation.Min(1)),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid query")
	}
	return nil
}

// Offset is the index of the first item of the page. It saturates at
// math.MaxInt instead of overflowing for very large pages.
func (q Query[T]) Offset() int {
	if q.Page < 1 || q.PageSize < 1 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.PageSize {
		return math.MaxInt
	}
	return (q.Page - 1) * q.PageSize
}
