package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// UserStats summarizes the calling user's book of business.
type UserStats struct {
	Invoices        int64           `json:"invoices"`
	PaidInvoices    int64           `json:"paid_invoices"`
	PendingInvoices int64           `json:"pending_invoices"`
	Customers       int64           `json:"customers"`
	Products        int64           `json:"products"`
	Revenue         decimal.Decimal `json:"revenue"`
	Pending         decimal.Decimal `json:"pending"`
}

type AdminStats struct {
	Users               int64            `json:"users"`
	ActiveUsers         int64            `json:"active_users"`
	Admins              int64            `json:"admins"`
	Invoices            int64            `json:"invoices"`
	Customers           int64            `json:"customers"`
	Products            int64            `json:"products"`
	UsersBySubscription map[string]int64 `json:"users_by_subscription"`
	Revenue             decimal.Decimal  `json:"revenue"`
	Pending             decimal.Decimal  `json:"pending"`
}

type Service interface {
	UserStats(ctx context.Context) (UserStats, error)
	AdminStats(ctx context.Context) (AdminStats, error)
}

var ErrInvalidUser = errors.New("invalid_user")
