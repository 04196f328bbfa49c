// Package option holds composable gorm query modifiers used by the generic
// repository.
package option

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/invoicekit/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type QueryOptionFunc func(db *gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

type Operator string

const (
	EQ   Operator = "="
	NEQ  Operator = "<>"
	GT   Operator = ">"
	GTE  Operator = ">="
	LT   Operator = "<"
	LTE  Operator = "<="
	LIKE Operator = "LIKE"
	IN   Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// ApplyOperator adds one WHERE condition. Conditions on fields that are not
// plain identifiers are dropped.
func ApplyOperator(c Condition) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if !identRe.MatchString(c.Field) {
			return db
		}
		switch c.Operator {
		case EQ, NEQ, GT, GTE, LT, LTE, LIKE:
			return db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
		case IN:
			return db.Where(fmt.Sprintf("%s IN ?", c.Field), c.Value)
		default:
			return db
		}
	})
}

// QuerySortBy orders by Column when it is allowed, otherwise by
// created_at desc. The id is always the tie breaker.
type QuerySortBy struct {
	Allow  map[string]bool
	Column string
	Asc    bool
}

func WithSortBy(s QuerySortBy) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		column := strings.TrimSpace(s.Column)
		dir := "desc"
		if s.Asc {
			dir = "asc"
		}
		if column == "" || !s.Allow[column] || !identRe.MatchString(column) {
			column, dir = "created_at", "desc"
		}
		return db.Order(column + " " + dir).Order("id " + dir)
	})
}

func WithLimit(limit int) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

// ApplyPagination applies keyset pagination on (created_at, id) descending
// and fetches one extra row so callers can tell whether more exist.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if token := strings.TrimSpace(page.PageToken); token != "" {
			cursor, err := pagination.DecodeCursor(token)
			if err != nil {
				_ = db.AddError(ErrInvalidPageToken)
				return db
			}
			createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
			if err != nil {
				_ = db.AddError(ErrInvalidPageToken)
				return db
			}
			lastID, err := strconv.ParseInt(cursor.ID, 10, 64)
			if err != nil {
				_ = db.AddError(ErrInvalidPageToken)
				return db
			}
			db = db.Where("(created_at < ? OR (created_at = ? AND id < ?))", createdAt, createdAt, lastID)
		}
		return db.Order("created_at desc").Order("id desc").Limit(page.Limit() + 1)
	})
}
