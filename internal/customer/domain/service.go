package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicekit/pkg/db/pagination"
)

type ListCustomerRequest struct {
	pagination.Pagination
	Search string
	Type   CustomerType
}

type ListCustomerFilter struct {
	Search string
	Type   CustomerType
}

type ListCustomerResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"customers"`
}

type CustomerInput struct {
	Type        CustomerType `json:"type"`
	CompanyName string       `json:"company_name"`
	FirstName   string       `json:"first_name"`
	LastName    string       `json:"last_name"`
	Email       string       `json:"email"`
	Phone       string       `json:"phone"`
	Address     string       `json:"address"`
	City        string       `json:"city"`
	PostalCode  string       `json:"postal_code"`
	Country     string       `json:"country"`
	TaxID       string       `json:"tax_id"`
	Notes       string       `json:"notes"`
}

type Service interface {
	Create(ctx context.Context, req CustomerInput) (Customer, error)
	List(ctx context.Context, req ListCustomerRequest) (ListCustomerResponse, error)
	GetByID(ctx context.Context, id snowflake.ID) (Customer, error)
	Update(ctx context.Context, id snowflake.ID, req CustomerInput) (Customer, error)
	Delete(ctx context.Context, id snowflake.ID) error
}

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidType      = errors.New("invalid_type")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrNotFound         = errors.New("customer_not_found")
	ErrInUse            = errors.New("customer_in_use")
)
