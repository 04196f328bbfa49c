package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicekit/pkg/db/pagination"
)

// InvoiceInput is the full desired state of an invoice for create and
// update. Zero dates and empty strings take configured defaults.
type InvoiceInput struct {
	CustomerID    snowflake.ID    `json:"customer_id"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   time.Time       `json:"invoice_date"`
	DueDate       time.Time       `json:"due_date"`
	Status        InvoiceStatus   `json:"status"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	Notes         string          `json:"notes"`
	PaymentTerms  string          `json:"payment_terms"`
	Language      string          `json:"language"`
	Items         []ItemInput     `json:"items"`
}

type ItemInput struct {
	ProductID   *snowflake.ID   `json:"product_id,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

type PaymentInput struct {
	InvoiceID     snowflake.ID    `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   time.Time       `json:"payment_date"`
	PaymentMethod string          `json:"payment_method"`
	Reference     string          `json:"reference"`
	Notes         string          `json:"notes"`
}

type PaymentResult struct {
	Payment Payment         `json:"payment"`
	Status  InvoiceStatus   `json:"status"`
	Paid    decimal.Decimal `json:"paid"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	Status     InvoiceStatus
	CustomerID snowflake.ID
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type Service interface {
	Create(ctx context.Context, req InvoiceInput) (*Invoice, error)
	Update(ctx context.Context, id snowflake.ID, req InvoiceInput) (*Invoice, error)
	Delete(ctx context.Context, id snowflake.ID) error
	Get(ctx context.Context, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	UpdateStatus(ctx context.Context, id snowflake.ID, status InvoiceStatus) (*Invoice, error)
	ListReminders(ctx context.Context) ([]Invoice, error)
	NextNumber(ctx context.Context) (string, error)

	RecordPayment(ctx context.Context, req PaymentInput) (*PaymentResult, error)
	ListPayments(ctx context.Context, invoiceID snowflake.ID) ([]Payment, error)
}
