package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	admindomain "github.com/smallbiznis/invoicekit/internal/admin/domain"
	authdomain "github.com/smallbiznis/invoicekit/internal/auth/domain"
	customerdomain "github.com/smallbiznis/invoicekit/internal/customer/domain"
	"github.com/smallbiznis/invoicekit/internal/dashboard/domain"
	invoicedomain "github.com/smallbiznis/invoicekit/internal/invoice/domain"
	productdomain "github.com/smallbiznis/invoicekit/internal/product/domain"
	"github.com/smallbiznis/invoicekit/pkg/db"
	"github.com/smallbiznis/invoicekit/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var now = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func setup(t *testing.T) (domain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&authdomain.User{},
		&admindomain.Admin{},
		&customerdomain.Customer{},
		&productdomain.Product{},
		&invoicedomain.Invoice{},
	))
	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	return NewService(Params{DB: conn, Log: zap.NewNop()}), conn, node
}

func seedInvoice(t *testing.T, conn *gorm.DB, node *snowflake.Node, userID snowflake.ID, status invoicedomain.InvoiceStatus, total string) {
	t.Helper()
	amount := decimal.RequireFromString(total)
	require.NoError(t, conn.Create(&invoicedomain.Invoice{
		ID:            node.Generate(),
		UserID:        userID,
		CustomerID:    node.Generate(),
		InvoiceNumber: node.Generate().String(),
		InvoiceDate:   now,
		DueDate:       now,
		Status:        status,
		Subtotal:      amount,
		TaxAmount:     decimal.Zero,
		Total:         amount,
		Currency:      "EUR",
		Language:      "de",
		CreatedAt:     now,
		UpdatedAt:     now,
	}).Error)
}

func TestUserStats(t *testing.T) {
	svc, conn, node := setup(t)
	alice, bob := snowflake.ID(1), snowflake.ID(2)

	seedInvoice(t, conn, node, alice, invoicedomain.InvoiceStatusPaid, "29.75")
	seedInvoice(t, conn, node, alice, invoicedomain.InvoiceStatusPaid, "0.25")
	seedInvoice(t, conn, node, alice, invoicedomain.InvoiceStatusSent, "10.10")
	seedInvoice(t, conn, node, alice, invoicedomain.InvoiceStatusOverdue, "0.20")
	seedInvoice(t, conn, node, alice, invoicedomain.InvoiceStatusDraft, "99")
	seedInvoice(t, conn, node, bob, invoicedomain.InvoiceStatusPaid, "1000")
	require.NoError(t, conn.Create(&customerdomain.Customer{
		ID: node.Generate(), UserID: alice, Type: customerdomain.CustomerTypeBusiness,
		CompanyName: "ACME", CreatedAt: now, UpdatedAt: now,
	}).Error)

	stats, err := svc.UserStats(tenantctx.WithUserID(context.Background(), alice))
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Invoices)
	assert.Equal(t, int64(2), stats.PaidInvoices)
	assert.Equal(t, int64(2), stats.PendingInvoices)
	assert.Equal(t, int64(1), stats.Customers)
	assert.Zero(t, stats.Products)
	assert.Equal(t, "30.00", stats.Revenue.StringFixed(2))
	assert.Equal(t, "10.30", stats.Pending.StringFixed(2))

	_, err = svc.UserStats(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
}

func TestAdminStats(t *testing.T) {
	svc, conn, node := setup(t)

	for i, sub := range []string{authdomain.SubscriptionTrial, authdomain.SubscriptionTrial, authdomain.SubscriptionPro} {
		require.NoError(t, conn.Create(&authdomain.User{
			ID:               node.Generate(),
			Email:            string(rune('a'+i)) + "@example.com",
			PasswordHash:     "x",
			Language:         "de",
			SubscriptionType: sub,
			IsActive:         i != 2,
			CreatedAt:        now,
			UpdatedAt:        now,
		}).Error)
	}
	seedInvoice(t, conn, node, 1, invoicedomain.InvoiceStatusPaid, "5")
	seedInvoice(t, conn, node, 2, invoicedomain.InvoiceStatusSent, "7.5")

	stats, err := svc.AdminStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Users)
	assert.Equal(t, int64(2), stats.ActiveUsers)
	assert.Equal(t, int64(2), stats.Invoices)
	assert.Equal(t, int64(2), stats.UsersBySubscription[authdomain.SubscriptionTrial])
	assert.Equal(t, int64(1), stats.UsersBySubscription[authdomain.SubscriptionPro])
	assert.Equal(t, "5.00", stats.Revenue.StringFixed(2))
	assert.Equal(t, "7.50", stats.Pending.StringFixed(2))
}
