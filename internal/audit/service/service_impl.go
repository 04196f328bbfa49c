package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/invoicekit/internal/audit/domain"
	"github.com/smallbiznis/invoicekit/internal/audit/masking"
	"github.com/smallbiznis/invoicekit/internal/clock"
	obscontext "github.com/smallbiznis/invoicekit/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	if entry.AdminID == 0 {
		return auditdomain.ErrInvalidAdmin
	}
	if tx == nil {
		tx = s.db
	}

	payload := masking.Sanitize(entry.Metadata)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		if payload == nil {
			payload = map[string]any{}
		}
		payload["request_id"] = requestID
	}

	activity := auditdomain.Activity{
		ID:        s.genID.Generate(),
		AdminID:   entry.AdminID,
		Action:    action,
		Details:   strings.TrimSpace(entry.Details),
		CreatedAt: s.clock.Now(),
	}
	if payload != nil {
		activity.Metadata = datatypes.JSONMap(payload)
	}
	if ip := obscontext.ClientIPFromContext(ctx); ip != "" {
		activity.IPAddress = &ip
	}

	if err := s.repo.Insert(ctx, tx, &activity); err != nil {
		s.log.Warn("failed to write admin activity", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) ([]auditdomain.ActivityView, error) {
	switch {
	case req.Limit <= 0:
		req.Limit = auditdomain.DefaultListLimit
	case req.Limit > auditdomain.MaxListLimit:
		req.Limit = auditdomain.MaxListLimit
	}

	items, err := s.repo.List(ctx, s.db, req)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []auditdomain.ActivityView{}
	}
	return items, nil
}
