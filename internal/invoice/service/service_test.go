package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicekit/internal/clock"
	"github.com/smallbiznis/invoicekit/internal/config"
	customerdomain "github.com/smallbiznis/invoicekit/internal/customer/domain"
	"github.com/smallbiznis/invoicekit/internal/invoice/calc"
	"github.com/smallbiznis/invoicekit/internal/invoice/domain"
	"github.com/smallbiznis/invoicekit/internal/invoice/repository"
	productdomain "github.com/smallbiznis/invoicekit/internal/product/domain"
	"github.com/smallbiznis/invoicekit/pkg/db"
	"github.com/smallbiznis/invoicekit/pkg/db/pagination"
	"github.com/smallbiznis/invoicekit/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var epoch = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

type fixture struct {
	svc   domain.Service
	conn  *gorm.DB
	clock *clock.FakeClock
	node  *snowflake.Node
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&customerdomain.Customer{},
		&productdomain.Product{},
		&domain.Invoice{},
		&domain.InvoiceItem{},
		&domain.Payment{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	fc := clock.NewFakeClock(epoch)

	svc := NewService(ServiceParam{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fc,
		Repo:     repository.Provide(),
		Defaults: config.NewStaticInvoicingDefaults(config.DefaultInvoicingDefaults()),
	})
	return fixture{svc: svc, conn: conn, clock: fc, node: node}
}

func (f fixture) seedCustomer(t *testing.T, userID snowflake.ID, company string) snowflake.ID {
	t.Helper()
	c := customerdomain.Customer{
		ID:          f.node.Generate(),
		UserID:      userID,
		Type:        customerdomain.CustomerTypeBusiness,
		CompanyName: company,
		CreatedAt:   f.clock.Now(),
		UpdatedAt:   f.clock.Now(),
	}
	require.NoError(t, f.conn.Create(&c).Error)
	return c.ID
}

func (f fixture) seedProduct(t *testing.T, userID snowflake.ID) snowflake.ID {
	t.Helper()
	p := productdomain.Product{
		ID:        f.node.Generate(),
		UserID:    userID,
		Type:      productdomain.ProductTypeService,
		Name:      "Beratung",
		Price:     decimal.NewFromInt(25),
		TaxRate:   decimal.NewFromInt(19),
		Unit:      productdomain.DefaultUnit,
		IsActive:  true,
		CreatedAt: f.clock.Now(),
		UpdatedAt: f.clock.Now(),
	}
	require.NoError(t, f.conn.Create(&p).Error)
	return p.ID
}

func (f fixture) count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Table(table).Count(&n).Error)
	return n
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// item builds a line and its computed total.
func item(desc, qty, price, tax string) domain.ItemInput {
	line := calc.Line{Quantity: dec(qty), UnitPrice: dec(price), TaxRate: dec(tax)}
	return domain.ItemInput{
		Description: desc,
		Quantity:    line.Quantity,
		UnitPrice:   line.UnitPrice,
		TaxRate:     line.TaxRate,
		Total:       calc.ItemTotal(line),
	}
}

func input(customerID snowflake.ID, items ...domain.ItemInput) domain.InvoiceInput {
	lines := make([]calc.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, calc.Line{Quantity: it.Quantity, UnitPrice: it.UnitPrice, TaxRate: it.TaxRate, Discount: it.Discount})
	}
	totals := calc.Aggregate(lines)
	return domain.InvoiceInput{
		CustomerID: customerID,
		Subtotal:   totals.Subtotal,
		TaxAmount:  totals.TaxAmount,
		Total:      totals.Total,
		Items:      items,
	}
}

func TestCreateAssignsPositionsAndNumber(t *testing.T) {
	f := newFixture(t)
	userID := snowflake.ID(1)
	ctx := tenantctx.WithUserID(context.Background(), userID)
	customerID := f.seedCustomer(t, userID, "ACME GmbH")

	inv, err := f.svc.Create(ctx, input(customerID,
		item("Design", "2", "100", "19"),
		item("Hosting", "1", "10", "7"),
		item("Support", "3", "5", "19"),
	))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-0001", inv.InvoiceNumber)
	assert.Equal(t, domain.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, "EUR", inv.Currency)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), inv.InvoiceDate)
	assert.Equal(t, time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC), inv.DueDate)

	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACME GmbH", got.CustomerName)
	require.Len(t, got.Items, 3)
	for i, it := range got.Items {
		assert.Equal(t, i+1, it.Position)
	}
	assert.Equal(t, "Design", got.Items[0].Description)
	assert.Equal(t, "Support", got.Items[2].Description)

	second, err := f.svc.Create(ctx, input(customerID, item("More", "1", "1", "0")))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-0002", second.InvoiceNumber)
}

func TestNextNumberIsYearWideAndGlobal(t *testing.T) {
	f := newFixture(t)
	alice := tenantctx.WithUserID(context.Background(), snowflake.ID(1))
	bob := tenantctx.WithUserID(context.Background(), snowflake.ID(2))
	aliceCustomer := f.seedCustomer(t, 1, "A")
	bobCustomer := f.seedCustomer(t, 2, "B")

	req := input(aliceCustomer, item("x", "1", "1", "0"))
	req.InvoiceNumber = "2024-01-0007"
	_, err := f.svc.Create(alice, req)
	require.NoError(t, err)

	next, err := f.svc.NextNumber(bob)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-0008", next)

	inv, err := f.svc.Create(bob, input(bobCustomer, item("y", "1", "1", "0")))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-0008", inv.InvoiceNumber)

	f.clock.Set(time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC))
	next, err = f.svc.NextNumber(bob)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-0001", next)
}

func TestDuplicateNumberLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t)
	alice := tenantctx.WithUserID(context.Background(), snowflake.ID(1))
	bob := tenantctx.WithUserID(context.Background(), snowflake.ID(2))

	req := input(f.seedCustomer(t, 1, "A"), item("x", "1", "1", "0"))
	req.InvoiceNumber = "RE-1"
	_, err := f.svc.Create(alice, req)
	require.NoError(t, err)

	invoices, items := f.count(t, "invoices"), f.count(t, "invoice_items")

	dup := input(f.seedCustomer(t, 2, "B"), item("a", "1", "1", "0"), item("b", "1", "1", "0"))
	dup.InvoiceNumber = "RE-1"
	_, err = f.svc.Create(bob, dup)
	assert.ErrorIs(t, err, domain.ErrDuplicateInvoiceNumber)

	assert.Equal(t, invoices, f.count(t, "invoices"))
	assert.Equal(t, items, f.count(t, "invoice_items"))
}

func TestCreateRollsBackOnMissingProduct(t *testing.T) {
	f := newFixture(t)
	userID := snowflake.ID(1)
	ctx := tenantctx.WithUserID(context.Background(), userID)
	customerID := f.seedCustomer(t, userID, "ACME")
	productID := f.seedProduct(t, userID)
	missing := f.node.Generate()

	good := item("ok", "1", "25", "19")
	good.ProductID = &productID
	bad := item("gone", "1", "1", "0")
	bad.ProductID = &missing

	_, err := f.svc.Create(ctx, input(customerID, good, bad))
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Zero(t, f.count(t, "invoices"))
	assert.Zero(t, f.count(t, "invoice_items"))

	// another user's product is just as missing
	otherProduct := f.seedProduct(t, snowflake.ID(2))
	bad.ProductID = &otherProduct
	_, err = f.svc.Create(ctx, input(customerID, bad))
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	inv, err := f.svc.Create(ctx, input(customerID, good))
	require.NoError(t, err)
	require.NotNil(t, inv.Items[0].ProductID)
	assert.Equal(t, productID, *inv.Items[0].ProductID)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))
	customerID := f.seedCustomer(t, 1, "ACME")

	_, err := f.svc.Create(context.Background(), input(customerID, item("x", "1", "1", "0")))
	assert.ErrorIs(t, err, domain.ErrInvalidUser)

	_, err = f.svc.Create(ctx, input(customerID))
	assert.ErrorIs(t, err, domain.ErrValidation)

	req := input(customerID, item("x", "0", "1", "0"))
	_, err = f.svc.Create(ctx, req)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items[0].quantity", verr.Field)

	req = input(customerID, item("x", "1", "1", "0"))
	req.Total = dec("99")
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Create(ctx, input(f.seedCustomer(t, 2, "Not yours"), item("x", "1", "1", "0")))
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)
	assert.Zero(t, f.count(t, "invoices"))
}

func TestUpdateReplacesItems(t *testing.T) {
	f := newFixture(t)
	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))
	customerID := f.seedCustomer(t, 1, "ACME")

	inv, err := f.svc.Create(ctx, input(customerID,
		item("a", "1", "1", "0"),
		item("b", "1", "1", "0"),
		item("c", "1", "1", "0"),
	))
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, inv.ID, domain.InvoiceStatusSent)
	require.NoError(t, err)

	req := input(customerID, item("z", "2", "5", "19"), item("y", "1", "1", "0"))
	req.InvoiceNumber = inv.InvoiceNumber
	updated, err := f.svc.Update(ctx, inv.ID, req)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusSent, updated.Status)

	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "z", got.Items[0].Description)
	assert.Equal(t, 1, got.Items[0].Position)
	assert.Equal(t, "y", got.Items[1].Description)
	assert.Equal(t, 2, got.Items[1].Position)
	assert.Equal(t, int64(2), f.count(t, "invoice_items"))
	assert.Equal(t, "12.90", got.Total.StringFixed(2))
}

func TestUpdateDuplicateNumberKeepsPreviousState(t *testing.T) {
	f := newFixture(t)
	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))
	customerID := f.seedCustomer(t, 1, "ACME")

	first, err := f.svc.Create(ctx, input(customerID, item("a", "1", "1", "0")))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, input(customerID, item("b", "1", "1", "0"), item("c", "1", "1", "0")))
	require.NoError(t, err)

	req := input(customerID, item("new", "1", "1", "0"))
	req.InvoiceNumber = first.InvoiceNumber
	_, err = f.svc.Update(ctx, second.ID, req)
	assert.ErrorIs(t, err, domain.ErrDuplicateInvoiceNumber)

	got, err := f.svc.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.InvoiceNumber, got.InvoiceNumber)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "b", got.Items[0].Description)

	_, err = f.svc.Update(ctx, f.node.Generate(), req)
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))
	customerID := f.seedCustomer(t, 1, "ACME")

	inv, err := f.svc.Create(ctx, input(customerID, item("a", "1", "10", "0")))
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, domain.PaymentInput{InvoiceID: inv.ID, Amount: dec("5")})
	require.NoError(t, err)

	other := tenantctx.WithUserID(context.Background(), snowflake.ID(2))
	require.NoError(t, f.svc.Delete(other, inv.ID))
	assert.Equal(t, int64(1), f.count(t, "invoices"))

	require.NoError(t, f.svc.Delete(ctx, inv.ID))
	require.NoError(t, f.svc.Delete(ctx, inv.ID))
	assert.Zero(t, f.count(t, "invoices"))
	assert.Zero(t, f.count(t, "invoice_items"))
	assert.Zero(t, f.count(t, "payments"))

	_, err = f.svc.Get(ctx, inv.ID)
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
}

func TestRecordPaymentMarksPaid(t *testing.T) {
	f := newFixture(t)
	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))
	customerID := f.seedCustomer(t, 1, "ACME")

	req := input(customerID, item("Widget", "1", "25.00", "19"))
	assert.Equal(t, "25.00", req.Subtotal.StringFixed(2))
	assert.Equal(t, "4.75", req.TaxAmount.StringFixed(2))
	assert.Equal(t, "29.75", req.Total.StringFixed(2))

	inv, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, inv.ID, domain.InvoiceStatusSent)
	require.NoError(t, err)

	res, err := f.svc.RecordPayment(ctx, domain.PaymentInput{InvoiceID: inv.ID, Amount: dec("20.00"), PaymentMethod: "transfer"})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusSent, res.Status)
	assert.Equal(t, "20.00", res.Paid.StringFixed(2))

	res, err = f.svc.RecordPayment(ctx, domain.PaymentInput{InvoiceID: inv.ID, Amount: dec("9.75")})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, res.Status)
	assert.Equal(t, "29.75", res.Paid.StringFixed(2))

	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, got.Status)

	payments, err := f.svc.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestRecordPaymentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))

	_, err := f.svc.RecordPayment(ctx, domain.PaymentInput{InvoiceID: f.node.Generate(), Amount: decimal.Zero})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.RecordPayment(ctx, domain.PaymentInput{InvoiceID: f.node.Generate(), Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
	assert.Zero(t, f.count(t, "payments"))
}

func TestConcurrentPaymentsAreAllCounted(t *testing.T) {
	f := newFixture(t)
	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))
	customerID := f.seedCustomer(t, 1, "ACME")

	inv, err := f.svc.Create(ctx, input(customerID, item("a", "1", "10", "0")))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordPayment(ctx, domain.PaymentInput{InvoiceID: inv.ID, Amount: dec("2.50")})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, got.Status)
	assert.Equal(t, int64(4), f.count(t, "payments"))
}

func TestListScopesAndPaginates(t *testing.T) {
	f := newFixture(t)
	alice := tenantctx.WithUserID(context.Background(), snowflake.ID(1))
	bob := tenantctx.WithUserID(context.Background(), snowflake.ID(2))
	customerID := f.seedCustomer(t, 1, "ACME")

	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(alice, input(customerID, item("a", "1", "1", "0")))
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	resp, err := f.svc.List(bob, domain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.Invoices)

	first, err := f.svc.List(alice, domain.ListInvoiceRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.Invoices, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "2024-03-0003", first.Invoices[0].InvoiceNumber)
	assert.Equal(t, "ACME", first.Invoices[0].CustomerName)

	second, err := f.svc.List(alice, domain.ListInvoiceRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.Invoices, 1)
	assert.Equal(t, "2024-03-0001", second.Invoices[0].InvoiceNumber)

	drafts, err := f.svc.List(alice, domain.ListInvoiceRequest{Status: domain.InvoiceStatusSent})
	require.NoError(t, err)
	assert.Empty(t, drafts.Invoices)

	_, err = f.svc.List(alice, domain.ListInvoiceRequest{Pagination: pagination.Pagination{PageToken: "bogus"}})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func TestListReminders(t *testing.T) {
	f := newFixture(t)
	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))
	customerID := f.seedCustomer(t, 1, "ACME")

	mk := func(status domain.InvoiceStatus, due time.Time) snowflake.ID {
		req := input(customerID, item("a", "1", "1", "0"))
		req.InvoiceDate = due.AddDate(0, 0, -14)
		req.DueDate = due
		req.Status = status
		inv, err := f.svc.Create(ctx, req)
		require.NoError(t, err)
		return inv.ID
	}
	overdueSent := mk(domain.InvoiceStatusSent, epoch.AddDate(0, 0, -3))
	olderOverdue := mk(domain.InvoiceStatusOverdue, epoch.AddDate(0, 0, -10))
	mk(domain.InvoiceStatusDraft, epoch.AddDate(0, 0, -5))
	mk(domain.InvoiceStatusSent, epoch)
	mk(domain.InvoiceStatusPaid, epoch.AddDate(0, 0, -20))

	reminders, err := f.svc.ListReminders(ctx)
	require.NoError(t, err)
	require.Len(t, reminders, 2)
	assert.Equal(t, olderOverdue, reminders[0].ID)
	assert.Equal(t, overdueSent, reminders[1].ID)
}

func TestUpdateStatusRejectsUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))

	_, err := f.svc.UpdateStatus(ctx, f.node.Generate(), "archived")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.UpdateStatus(ctx, f.node.Generate(), domain.InvoiceStatusSent)
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
}

func TestCreateKeepsCalendarDayOfOffsetDates(t *testing.T) {
	f := newFixture(t)
	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))
	customerID := f.seedCustomer(t, 1, "ACME")

	berlin := time.FixedZone("CEST", 2*60*60)
	req := input(customerID, item("a", "1", "10", "0"))
	req.InvoiceDate = time.Date(2024, 3, 20, 0, 30, 0, 0, berlin)
	req.DueDate = time.Date(2024, 4, 3, 0, 30, 0, 0, berlin)

	inv, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), inv.InvoiceDate)
	assert.Equal(t, time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC), inv.DueDate)

	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.InvoiceDate.Equal(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)), got.InvoiceDate.String())
}

func TestOnlyHeaderWritesReportDuplicateNumber(t *testing.T) {
	svc := &Service{log: zap.NewNop()}

	assert.ErrorIs(t, svc.headerErr(gorm.ErrDuplicatedKey), domain.ErrDuplicateInvoiceNumber)

	err := svc.storeErr(gorm.ErrDuplicatedKey)
	assert.NotErrorIs(t, err, domain.ErrDuplicateInvoiceNumber)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}
