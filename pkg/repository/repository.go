package repository

import (
	"context"

	"github.com/smallbiznis/invoicekit/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic gorm store. Query structs act as equality filters
// on their non-zero fields, so scoping by owner is part of every call.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, query *T, fields map[string]any) (int64, error)
	Delete(ctx context.Context, query *T) (int64, error)
	Count(ctx context.Context, query *T) (int64, error)
	BatchCreate(ctx context.Context, resources []*T) error
}
