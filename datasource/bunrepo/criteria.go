package bunrepo

import (
	"fmt"
	"strings"

	bunrepository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-tiered/repository"
)

// whereCriteria translates filter conditions to bun select criteria.
// Field names are converted to snake_case column names.
func whereCriteria[T any](filter *repository.Filter[T]) []bunrepository.SelectCriteria {
	if filter == nil {
		return nil
	}

	criteria := make([]bunrepository.SelectCriteria, 0, len(filter.Conditions))
	for _, cond := range filter.Conditions {
		criteria = append(criteria, conditionCriteria(cond))
	}
	return criteria
}

func conditionCriteria(cond repository.Condition) bunrepository.SelectCriteria {
	column := bun.Ident(columnName(cond.Field))
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		switch cond.Operator {
		case repository.OpIn:
			return q.Where("? IN (?)", column, bun.In(cond.Value))
		case repository.OpContains:
			return q.Where("? LIKE ?", column, "%"+toString(cond.Value)+"%")
		case repository.OpNe, repository.OpGt, repository.OpGte, repository.OpLt, repository.OpLte:
			return q.Where("? "+string(cond.Operator)+" ?", column, cond.Value)
		default:
			return q.Where("? = ?", column, cond.Value)
		}
	}
}

func sortCriteria[T any](sort *repository.Sort[T]) []bunrepository.SelectCriteria {
	if sort == nil || sort.Field == "" {
		return nil
	}

	column := bun.Ident(columnName(sort.Field))
	direction := "ASC"
	if sort.Descending {
		direction = "DESC"
	}
	return []bunrepository.SelectCriteria{
		func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("? "+direction, column)
		},
	}
}

func pageCriteria(limit, offset int) bunrepository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Limit(limit).Offset(offset)
	}
}

func columnName(field string) string {
	if strings.ToLower(field) == field {
		return field
	}
	return repository.SnakeCase(field)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
