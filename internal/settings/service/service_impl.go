package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicekit/internal/clock"
	"github.com/smallbiznis/invoicekit/internal/settings/domain"
	"github.com/smallbiznis/invoicekit/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var keyRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]*$`)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("settings.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Get(ctx context.Context) (map[string]any, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return nil, domain.ErrInvalidUser
	}
	return s.load(ctx, s.db, userID)
}

// Save upserts every key in one transaction and returns the full set.
func (s *Service) Save(ctx context.Context, values map[string]any) (map[string]any, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return nil, domain.ErrInvalidUser
	}

	now := s.clock.Now().UTC()
	rows := make([]domain.Setting, 0, len(values))
	for key, value := range values {
		if len(key) > domain.MaxKeyLength || !keyRe.MatchString(key) {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidKey, key)
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidValue, key)
		}
		rows = append(rows, domain.Setting{
			ID:        s.genID.Generate(),
			UserID:    userID,
			Key:       key,
			Value:     datatypes.JSON(raw),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	var out map[string]any
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "setting_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&rows[i]).Error
			if err != nil {
				return err
			}
		}
		var err error
		out, err = s.load(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("settings saved", zap.Int("keys", len(rows)))
	return out, nil
}

func (s *Service) load(ctx context.Context, conn *gorm.DB, userID snowflake.ID) (map[string]any, error) {
	var rows []domain.Setting
	if err := conn.WithContext(ctx).Where("user_id = ?", userID).Order("setting_key").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[string]any, len(rows))
	for _, row := range rows {
		var value any
		if len(row.Value) > 0 {
			if err := json.Unmarshal(row.Value, &value); err != nil {
				s.log.Warn("skipping unreadable setting", zap.String("key", row.Key), zap.Error(err))
				continue
			}
		}
		out[row.Key] = value
	}
	return out, nil
}
