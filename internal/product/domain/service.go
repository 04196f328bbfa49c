package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicekit/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Product, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Get(ctx context.Context, id snowflake.ID) (*Product, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateRequest) (*Product, error)
	Delete(ctx context.Context, id snowflake.ID) error
}

type ListRequest struct {
	pagination.Pagination
	Name     string
	Type     ProductType
	Category string
	Active   *bool
}

type ListResponse struct {
	pagination.PageInfo
	Products []Product `json:"products"`
}

type CreateRequest struct {
	Type        ProductType      `json:"type"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	SKU         string           `json:"sku"`
	Price       decimal.Decimal  `json:"price"`
	TaxRate     *decimal.Decimal `json:"tax_rate"`
	Unit        string           `json:"unit"`
	Category    string           `json:"category"`
	Active      *bool            `json:"is_active"`
	Metadata    map[string]any   `json:"metadata"`
}

// UpdateRequest changes only the fields that are set.
type UpdateRequest struct {
	Type        *ProductType     `json:"type"`
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	SKU         *string          `json:"sku"`
	Price       *decimal.Decimal `json:"price"`
	TaxRate     *decimal.Decimal `json:"tax_rate"`
	Unit        *string          `json:"unit"`
	Category    *string          `json:"category"`
	Active      *bool            `json:"is_active"`
	Metadata    map[string]any   `json:"metadata"`
}

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidType      = errors.New("invalid_type")
	ErrInvalidPrice     = errors.New("invalid_price")
	ErrInvalidTaxRate   = errors.New("invalid_tax_rate")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrNotFound         = errors.New("product_not_found")
)
