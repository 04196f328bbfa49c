// Package calc implements invoice arithmetic on decimals. Amounts are
// rounded half away from zero to cents, which for non-negative values is
// round half up.
package calc

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Line is the input of one invoice line.
type Line struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	TaxRate   decimal.Decimal
	Discount  decimal.Decimal
}

type Totals struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// Net is quantity × unit price less the percentage discount, unrounded.
func Net(l Line) decimal.Decimal {
	gross := l.Quantity.Mul(l.UnitPrice)
	return gross.Mul(hundred.Sub(l.Discount)).Div(hundred)
}

// Tax is the tax on the discounted net amount, unrounded.
func Tax(l Line) decimal.Decimal {
	return Net(l).Mul(l.TaxRate).Div(hundred)
}

// ItemTotal is qty × unitPrice × (1 + tax/100) × (1 − discount/100) in cents.
func ItemTotal(l Line) decimal.Decimal {
	return Net(l).Add(Tax(l)).Round(2)
}

// Aggregate sums net and tax over lines; total is subtotal + taxAmount.
func Aggregate(lines []Line) Totals {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(Net(l))
		tax = tax.Add(Tax(l))
	}
	subtotal = subtotal.Round(2)
	tax = tax.Round(2)
	return Totals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal.Add(tax),
	}
}

// Money rounds an amount to cents.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
