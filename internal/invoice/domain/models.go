// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	default:
		return false
	}
}

// Invoice is the header row. Items and CustomerName are filled on reads.
type Invoice struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	UserID        snowflake.ID    `gorm:"not null;index" json:"user_id"`
	CustomerID    snowflake.ID    `gorm:"not null;index" json:"customer_id"`
	InvoiceNumber string          `gorm:"type:varchar(64);not null;uniqueIndex" json:"invoice_number"`
	InvoiceDate   time.Time       `gorm:"not null" json:"invoice_date"`
	DueDate       time.Time       `gorm:"not null;index" json:"due_date"`
	Status        InvoiceStatus   `gorm:"type:varchar(16);not null;default:'draft';index" json:"status"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	TaxAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tax_amount"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Currency      string          `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	Notes         string          `gorm:"type:text" json:"notes"`
	PaymentTerms  string          `gorm:"type:text" json:"payment_terms"`
	Language      string          `gorm:"type:varchar(8);not null;default:'de'" json:"language"`
	CreatedAt     time.Time       `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`

	CustomerName string        `gorm:"-" json:"customer_name,omitempty"`
	Items        []InvoiceItem `gorm:"-" json:"items,omitempty"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceItem is one line of an invoice. Position is 1-based and dense per
// invoice.
type InvoiceItem struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID    `gorm:"not null;uniqueIndex:ux_invoice_items_position,priority:1" json:"invoice_id"`
	ProductID   *snowflake.ID   `gorm:"index" json:"product_id,omitempty"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	TaxRate     decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"tax_rate"`
	Discount    decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"discount"`
	Total       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Position    int             `gorm:"not null;uniqueIndex:ux_invoice_items_position,priority:2" json:"position"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// Payment is money received against an invoice.
type Payment struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID     snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	PaymentDate   time.Time       `gorm:"not null" json:"payment_date"`
	PaymentMethod string          `gorm:"type:varchar(32)" json:"payment_method"`
	Reference     string          `gorm:"type:text" json:"reference"`
	Notes         string          `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }
