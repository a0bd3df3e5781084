package repository

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// PaginatedList is one page of items plus the metadata needed to page
// through the full result set.
type PaginatedList[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
}

// NewPaginatedList validates the page metadata and builds the list.
func NewPaginatedList[T any](items []T, page, pageSize, totalItems int) (PaginatedList[T], error) {
	list := PaginatedList[T]{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
	}
	if err := list.Validate(); err != nil {
		return PaginatedList[T]{}, err
	}
	if list.Items == nil {
		list.Items = []T{}
	}
	return list, nil
}

// Validate checks page >= 1, pageSize >= 1 and totalItems >= 0.
func (p PaginatedList[T]) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Page, validation.Required, validation.Min(1)),
		validation.Field(&p.PageSize, validation.Required, validation.Min(1)),
		validation.Field(&p.TotalItems, validation.Min(0)),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid paginated list")
	}
	return nil
}

// TotalPages is ceil(TotalItems / PageSize).
func (p PaginatedList[T]) TotalPages() int {
	if p.PageSize <= 0 || p.TotalItems <= 0 {
		return 0
	}
	pages := p.TotalItems / p.PageSize
	if p.TotalItems%p.PageSize != 0 {
		pages++
	}
	return pages
}

// HasMore reports whether a page exists after this one, which is the case
// when Page*PageSize < TotalItems. It is computed as Page < TotalPages so
// large pages cannot overflow.
func (p PaginatedList[T]) HasMore() bool {
	return p.Page < p.TotalPages()
}

// Paginate filters, sorts and slices an in-memory result set according to
// query. The input slice is not modified. A negative page or page size is
// a validation error.
func Paginate[T any](all []T, query Query[T]) (PaginatedList[T], error) {
	query = query.Normalized()
	if err := query.Validate(); err != nil {
		return PaginatedList[T]{}, err
	}

	items := query.Filter.Apply(all)
	query.Sort.Apply(items)

	total := len(items)
	start := min(query.Offset(), total)
	end := start + min(query.PageSize, total-start)

	return NewPaginatedList(items[start:end:end], query.Page, query.PageSize, total)
}
