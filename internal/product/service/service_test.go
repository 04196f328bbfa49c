package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicekit/internal/clock"
	"github.com/smallbiznis/invoicekit/internal/product/domain"
	"github.com/smallbiznis/invoicekit/pkg/db"
	"github.com/smallbiznis/invoicekit/pkg/db/pagination"
	"github.com/smallbiznis/invoicekit/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Product{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	return New(Params{DB: conn, Log: zap.NewNop(), GenID: node, Clock: fc}), fc
}

func TestCreateAppliesDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))

	p, err := svc.Create(ctx, domain.CreateRequest{Name: "Beratung", Price: decimal.RequireFromString("95.00")})
	require.NoError(t, err)
	assert.Equal(t, domain.ProductTypeProduct, p.Type)
	assert.Equal(t, domain.DefaultUnit, p.Unit)
	assert.True(t, p.TaxRate.Equal(decimal.NewFromInt(19)))
	assert.True(t, p.IsActive)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "95.00", got.Price.StringFixed(2))
	assert.Equal(t, "Stück", got.Unit)
}

func TestCreateValidates(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), domain.CreateRequest{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidUser)

	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))
	_, err = svc.Create(ctx, domain.CreateRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, domain.CreateRequest{Name: "x", Type: "gadget"})
	assert.ErrorIs(t, err, domain.ErrInvalidType)

	_, err = svc.Create(ctx, domain.CreateRequest{Name: "x", Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	rate := decimal.NewFromInt(101)
	_, err = svc.Create(ctx, domain.CreateRequest{Name: "x", TaxRate: &rate})
	assert.ErrorIs(t, err, domain.ErrInvalidTaxRate)
}

func TestUpdatePartialAndScoped(t *testing.T) {
	svc, _ := newTestService(t)
	alice := tenantctx.WithUserID(context.Background(), snowflake.ID(1))
	bob := tenantctx.WithUserID(context.Background(), snowflake.ID(2))

	p, err := svc.Create(alice, domain.CreateRequest{Name: "Widget", Price: decimal.NewFromInt(10)})
	require.NoError(t, err)

	name := "Hijack"
	_, err = svc.Update(bob, p.ID, domain.UpdateRequest{Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	inactive := false
	price := decimal.RequireFromString("12.50")
	updated, err := svc.Update(alice, p.ID, domain.UpdateRequest{Active: &inactive, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "Widget", updated.Name)
	assert.False(t, updated.IsActive)

	got, err := svc.Get(alice, p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, "12.50", got.Price.StringFixed(2))
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, fc := newTestService(t)
	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))
	inactive := false

	for _, name := range []string{"Alpha", "Beta", "Gamma"} {
		_, err := svc.Create(ctx, domain.CreateRequest{Name: name})
		require.NoError(t, err)
		fc.Advance(time.Minute)
	}
	_, err := svc.Create(ctx, domain.CreateRequest{Name: "Retired", Active: &inactive, Type: domain.ProductTypeService})
	require.NoError(t, err)

	active := true
	first, err := svc.List(ctx, domain.ListRequest{Active: &active, Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.Products, 2)
	assert.Equal(t, "Gamma", first.Products[0].Name)
	assert.True(t, first.HasMore)

	second, err := svc.List(ctx, domain.ListRequest{Active: &active, Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.Products, 1)
	assert.Equal(t, "Alpha", second.Products[0].Name)

	services, err := svc.List(ctx, domain.ListRequest{Type: domain.ProductTypeService})
	require.NoError(t, err)
	require.Len(t, services.Products, 1)
	assert.Equal(t, "Retired", services.Products[0].Name)

	_, err = svc.List(ctx, domain.ListRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func TestDeleteIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))

	p, err := svc.Create(ctx, domain.CreateRequest{Name: "Widget"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, p.ID))
	require.NoError(t, svc.Delete(ctx, p.ID))
	_, err = svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
