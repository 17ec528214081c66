// Package option builds gorm queries from declarative conditions:
// equality, range, not-equal, prefix, and set-membership predicates plus
// ordering and pagination.
package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type Operator string

const (
	EQ         Operator = "="
	NEQ        Operator = "<>"
	GT         Operator = ">"
	GTE        Operator = ">="
	LT         Operator = "<"
	LTE        Operator = "<="
	IN         Operator = "IN"
	StartsWith Operator = "STARTS_WITH"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

type conditionOption struct {
	cond Condition
}

func ApplyOperator(cond Condition) QueryOption {
	return conditionOption{cond: cond}
}

func (o conditionOption) Apply(db *gorm.DB) *gorm.DB {
	field := strings.TrimSpace(o.cond.Field)
	if field == "" {
		return db
	}
	switch o.cond.Operator {
	case IN:
		return db.Where(fmt.Sprintf("%s IN ?", field), o.cond.Value)
	case StartsWith:
		prefix, _ := o.cond.Value.(string)
		return db.Where(fmt.Sprintf("%s LIKE ?", field), prefix+"%")
	case EQ, NEQ, GT, GTE, LT, LTE:
		return db.Where(fmt.Sprintf("%s %s ?", field, o.cond.Operator), o.cond.Value)
	default:
		return db
	}
}

type QuerySortBy struct {
	Allow map[string]bool
	Field string
	Desc  bool
}

type sortOption struct {
	sort QuerySortBy
}

// WithSortBy orders results by an allow-listed column. Unknown fields
// fall back to created_at descending.
func WithSortBy(sort QuerySortBy) QueryOption {
	return sortOption{sort: sort}
}

func (o sortOption) Apply(db *gorm.DB) *gorm.DB {
	field := strings.TrimSpace(o.sort.Field)
	if field == "" || !o.sort.Allow[field] {
		field = "created_at"
		if len(o.sort.Allow) > 0 && !o.sort.Allow[field] {
			return db
		}
	}
	direction := "asc"
	if o.sort.Desc {
		direction = "desc"
	}
	return db.Order(fmt.Sprintf("%s %s", field, direction))
}

type limitOption struct {
	limit int
}

func WithLimit(limit int) QueryOption {
	return limitOption{limit: limit}
}

func (o limitOption) Apply(db *gorm.DB) *gorm.DB {
	if o.limit <= 0 {
		return db
	}
	return db.Limit(o.limit)
}

type offsetOption struct {
	offset int
}

func WithOffset(offset int) QueryOption {
	return offsetOption{offset: offset}
}

func (o offsetOption) Apply(db *gorm.DB) *gorm.DB {
	if o.offset <= 0 {
		return db
	}
	return db.Offset(o.offset)
}
