package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Validate checks an input whose defaults have already been applied.
func (in InvoiceInput) Validate() error {
	if in.CustomerID == 0 {
		return Invalid("customer_id", "is required")
	}
	if len(in.Items) == 0 {
		return Invalid("items", "must not be empty")
	}
	for i, item := range in.Items {
		if err := item.validate(fmt.Sprintf("items[%d]", i)); err != nil {
			return err
		}
	}

	if in.Subtotal.IsNegative() {
		return Invalid("subtotal", "must not be negative")
	}
	if in.TaxAmount.IsNegative() {
		return Invalid("tax_amount", "must not be negative")
	}
	if in.Total.IsNegative() {
		return Invalid("total", "must not be negative")
	}
	if !in.Total.Round(2).Equal(in.Subtotal.Add(in.TaxAmount).Round(2)) {
		return Invalid("total", "must equal subtotal plus tax_amount")
	}

	if !in.Status.Valid() {
		return Invalid("status", "is not a known invoice status")
	}
	if in.InvoiceDate.IsZero() {
		return Invalid("invoice_date", "is required")
	}
	if in.DueDate.Before(in.InvoiceDate) {
		return Invalid("due_date", "must not be before invoice_date")
	}
	if len(strings.TrimSpace(in.Currency)) != 3 {
		return Invalid("currency", "must be a three letter code")
	}
	return nil
}

func (it ItemInput) validate(field string) error {
	switch {
	case !it.Quantity.IsPositive():
		return Invalid(field+".quantity", "must be greater than zero")
	case it.UnitPrice.IsNegative():
		return Invalid(field+".unit_price", "must not be negative")
	case it.TaxRate.IsNegative() || it.TaxRate.GreaterThan(hundred):
		return Invalid(field+".tax_rate", "must be between 0 and 100")
	case it.Discount.IsNegative() || it.Discount.GreaterThan(hundred):
		return Invalid(field+".discount", "must be between 0 and 100")
	case it.Total.IsNegative():
		return Invalid(field+".total", "must not be negative")
	}
	return nil
}

// Validate checks a payment request.
func (p PaymentInput) Validate() error {
	if p.InvoiceID == 0 {
		return Invalid("invoice_id", "is required")
	}
	if !p.Amount.IsPositive() {
		return Invalid("amount", "must be greater than zero")
	}
	if p.PaymentDate.IsZero() {
		return Invalid("payment_date", "is required")
	}
	return nil
}
