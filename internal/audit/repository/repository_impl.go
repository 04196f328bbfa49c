package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/invoicekit/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.Activity) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO admin_activities (
			id, admin_id, action, details, ip_address, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.AdminID,
		entry.Action,
		entry.Details,
		entry.IPAddress,
		entry.Metadata,
		entry.CreatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]domain.ActivityView, error) {
	var rows []domain.ActivityView
	stmt := db.WithContext(ctx).
		Table("admin_activities AS a").
		Select("a.id, a.admin_id, a.action, a.details, a.ip_address, a.metadata, a.created_at, COALESCE(ad.email, '') AS admin_email").
		Joins("LEFT JOIN admins ad ON ad.id = a.admin_id")

	if action := strings.TrimSpace(req.Action); action != "" {
		stmt = stmt.Where("a.action = ?", action)
	}
	if req.AdminID != 0 {
		stmt = stmt.Where("a.admin_id = ?", req.AdminID)
	}

	err := stmt.
		Order("a.created_at DESC").
		Order("a.id DESC").
		Limit(req.Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
