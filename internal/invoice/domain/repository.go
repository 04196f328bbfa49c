package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Status     InvoiceStatus
	CustomerID snowflake.ID
	// keyset cursor; both set or both zero
	AfterCreatedAt time.Time
	AfterID        snowflake.ID
	Limit          int
}

// Repository is the invoice store. Every method runs on the handle it is
// given so callers can compose them inside one transaction.
type Repository interface {
	CustomerName(ctx context.Context, db *gorm.DB, userID, customerID snowflake.ID) (string, bool, error)
	ProductExists(ctx context.Context, db *gorm.DB, userID, productID snowflake.ID) (bool, error)

	NumberTaken(ctx context.Context, db *gorm.DB, number string, excludeID snowflake.ID) (bool, error)
	NumbersWithPrefix(ctx context.Context, db *gorm.DB, prefix string) ([]string, error)

	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	Update(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	UpdateStatus(ctx context.Context, db *gorm.DB, userID, id snowflake.ID, status InvoiceStatus, at time.Time) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID, forUpdate bool) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, userID snowflake.ID, filter ListFilter) ([]*Invoice, error)
	ListOverdue(ctx context.Context, db *gorm.DB, userID snowflake.ID, before time.Time) ([]*Invoice, error)
	DeleteInvoice(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (int64, error)

	InsertItems(ctx context.Context, db *gorm.DB, items []InvoiceItem) error
	DeleteItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) error
	ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceItem, error)

	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	ListPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Payment, error)
	SumPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (decimal.Decimal, error)
	DeletePayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) error
}
