package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicekit/internal/dashboard/domain"
	"github.com/smallbiznis/invoicekit/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) domain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("dashboard.service"),
	}
}

type invoiceTotalRow struct {
	Status string          `gorm:"column:status"`
	Total  decimal.Decimal `gorm:"column:total"`
}

type subscriptionRow struct {
	SubscriptionType string `gorm:"column:subscription_type"`
	Count            int64  `gorm:"column:count"`
}

// amounts accumulates invoice totals in decimal. SQL SUM over decimal
// columns goes through floating point on SQLite.
type amounts struct {
	paid, pending           decimal.Decimal
	paidCount, pendingCount int64
}

func sumByStatus(rows []invoiceTotalRow) amounts {
	out := amounts{paid: decimal.Zero, pending: decimal.Zero}
	for _, row := range rows {
		switch row.Status {
		case "paid":
			out.paid = out.paid.Add(row.Total.Round(2))
			out.paidCount++
		case "sent", "overdue":
			out.pending = out.pending.Add(row.Total.Round(2))
			out.pendingCount++
		}
	}
	return out
}

func (s *Service) UserStats(ctx context.Context) (domain.UserStats, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return domain.UserStats{}, domain.ErrInvalidUser
	}

	var stats domain.UserStats
	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(1) FROM invoices WHERE user_id = ?`, &stats.Invoices},
		{`SELECT COUNT(1) FROM customers WHERE user_id = ?`, &stats.Customers},
		{`SELECT COUNT(1) FROM products WHERE user_id = ?`, &stats.Products},
	}
	for _, c := range counts {
		if err := s.db.WithContext(ctx).Raw(c.query, userID).Scan(c.dest).Error; err != nil {
			return domain.UserStats{}, err
		}
	}

	var rows []invoiceTotalRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT status, total FROM invoices WHERE user_id = ? AND status IN ('paid', 'sent', 'overdue')`,
		userID,
	).Scan(&rows).Error
	if err != nil {
		return domain.UserStats{}, err
	}

	sums := sumByStatus(rows)
	stats.Revenue = sums.paid
	stats.Pending = sums.pending
	stats.PaidInvoices = sums.paidCount
	stats.PendingInvoices = sums.pendingCount
	return stats, nil
}

func (s *Service) AdminStats(ctx context.Context) (domain.AdminStats, error) {
	stats := domain.AdminStats{UsersBySubscription: map[string]int64{}}
	counts := []struct {
		query string
		args  []any
		dest  *int64
	}{
		{`SELECT COUNT(1) FROM users`, nil, &stats.Users},
		{`SELECT COUNT(1) FROM users WHERE is_active = ?`, []any{true}, &stats.ActiveUsers},
		{`SELECT COUNT(1) FROM admins`, nil, &stats.Admins},
		{`SELECT COUNT(1) FROM invoices`, nil, &stats.Invoices},
		{`SELECT COUNT(1) FROM customers`, nil, &stats.Customers},
		{`SELECT COUNT(1) FROM products`, nil, &stats.Products},
	}
	for _, c := range counts {
		if err := s.db.WithContext(ctx).Raw(c.query, c.args...).Scan(c.dest).Error; err != nil {
			return domain.AdminStats{}, err
		}
	}

	var subs []subscriptionRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT subscription_type, COUNT(1) AS count FROM users GROUP BY subscription_type`,
	).Scan(&subs).Error
	if err != nil {
		return domain.AdminStats{}, err
	}
	for _, row := range subs {
		stats.UsersBySubscription[row.SubscriptionType] = row.Count
	}

	var rows []invoiceTotalRow
	err = s.db.WithContext(ctx).Raw(
		`SELECT status, total FROM invoices WHERE status IN ('paid', 'sent', 'overdue')`,
	).Scan(&rows).Error
	if err != nil {
		return domain.AdminStats{}, err
	}
	sums := sumByStatus(rows)
	stats.Revenue = sums.paid
	stats.Pending = sums.pending

	s.log.Debug("admin stats computed", zap.Int64("users", stats.Users))
	return stats, nil
}
