package calc

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAggregateGermanVAT(t *testing.T) {
	lines := []Line{
		{Quantity: d("2"), UnitPrice: d("10"), TaxRate: d("19")},
		{Quantity: d("1"), UnitPrice: d("5"), TaxRate: d("19")},
	}
	totals := Aggregate(lines)
	assert.Equal(t, "25.00", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "4.75", totals.TaxAmount.StringFixed(2))
	assert.Equal(t, "29.75", totals.Total.StringFixed(2))

	assert.Equal(t, "23.80", ItemTotal(lines[0]).StringFixed(2))
	assert.Equal(t, "5.95", ItemTotal(lines[1]).StringFixed(2))
}

func TestItemTotalWithDiscount(t *testing.T) {
	l := Line{Quantity: d("3"), UnitPrice: d("19.99"), TaxRate: d("7"), Discount: d("10")}
	// 3 × 19.99 = 59.97; −10% = 53.973; +7% = 57.75111
	assert.Equal(t, "57.75", ItemTotal(l).StringFixed(2))
}

func TestRoundHalfUp(t *testing.T) {
	l := Line{Quantity: d("1"), UnitPrice: d("0.125"), TaxRate: d("0")}
	assert.Equal(t, "0.13", ItemTotal(l).StringFixed(2))
	assert.Equal(t, "0.13", Money(d("0.125")).StringFixed(2))
}

func TestAggregateEmpty(t *testing.T) {
	totals := Aggregate(nil)
	assert.True(t, totals.Total.IsZero())
}
