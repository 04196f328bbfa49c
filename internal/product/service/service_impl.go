package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicekit/internal/clock"
	"github.com/smallbiznis/invoicekit/internal/product/domain"
	"github.com/smallbiznis/invoicekit/pkg/db/option"
	"github.com/smallbiznis/invoicekit/pkg/db/pagination"
	"github.com/smallbiznis/invoicekit/pkg/repository"
	"github.com/smallbiznis/invoicekit/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

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
	repo  repository.Repository[domain.Product]
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		repo:  repository.ProvideStore[domain.Product](p.DB),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return domain.ListResponse{}, domain.ErrInvalidUser
	}

	filter := &domain.Product{UserID: userID, Type: req.Type}
	opts := []option.QueryOption{option.ApplyPagination(req.Pagination)}
	if name := strings.TrimSpace(req.Name); name != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "name",
			Operator: option.LIKE,
			Value:    "%" + name + "%",
		}))
	}
	if category := strings.TrimSpace(req.Category); category != "" {
		filter.Category = category
	}
	if req.Active != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "is_active",
			Operator: option.EQ,
			Value:    *req.Active,
		}))
	}

	items, err := s.repo.Find(ctx, filter, opts...)
	if err != nil {
		if errors.Is(err, option.ErrInvalidPageToken) {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		return domain.ListResponse{}, err
	}

	items, pageInfo := pagination.Page(items, req.Pagination.Limit(), func(p *domain.Product) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        p.ID.String(),
			CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	products := make([]domain.Product, 0, len(items))
	for _, item := range items {
		products = append(products, *item)
	}
	return domain.ListResponse{PageInfo: pageInfo, Products: products}, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Product, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return nil, domain.ErrInvalidUser
	}

	productType := req.Type
	if productType == "" {
		productType = domain.ProductTypeProduct
	}
	if !validType(productType) {
		return nil, domain.ErrInvalidType
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.Price.IsNegative() {
		return nil, domain.ErrInvalidPrice
	}

	taxRate := domain.DefaultTaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}
	if !validTaxRate(taxRate) {
		return nil, domain.ErrInvalidTaxRate
	}

	unit := strings.TrimSpace(req.Unit)
	if unit == "" {
		unit = domain.DefaultUnit
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now().UTC()
	p := &domain.Product{
		ID:          s.genID.Generate(),
		UserID:      userID,
		Type:        productType,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		SKU:         strings.TrimSpace(req.SKU),
		Price:       req.Price.Round(2),
		TaxRate:     taxRate,
		Unit:        unit,
		Category:    strings.TrimSpace(req.Category),
		IsActive:    active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Metadata != nil {
		p.Metadata = datatypes.JSONMap(req.Metadata)
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Product, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return nil, domain.ErrInvalidUser
	}

	item, err := s.repo.FindOne(ctx, &domain.Product{ID: id, UserID: userID})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateRequest) (*domain.Product, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return nil, domain.ErrInvalidUser
	}

	var updated *domain.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTrx(tx)
		item, err := repo.FindOne(ctx, &domain.Product{ID: id, UserID: userID})
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}

		fields := map[string]any{}
		if req.Type != nil {
			if !validType(*req.Type) {
				return domain.ErrInvalidType
			}
			item.Type = *req.Type
			fields["type"] = item.Type
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			item.Name = name
			fields["name"] = name
		}
		if req.Description != nil {
			item.Description = strings.TrimSpace(*req.Description)
			fields["description"] = item.Description
		}
		if req.SKU != nil {
			item.SKU = strings.TrimSpace(*req.SKU)
			fields["sku"] = item.SKU
		}
		if req.Price != nil {
			if req.Price.IsNegative() {
				return domain.ErrInvalidPrice
			}
			item.Price = req.Price.Round(2)
			fields["price"] = item.Price
		}
		if req.TaxRate != nil {
			if !validTaxRate(*req.TaxRate) {
				return domain.ErrInvalidTaxRate
			}
			item.TaxRate = *req.TaxRate
			fields["tax_rate"] = item.TaxRate
		}
		if req.Unit != nil {
			unit := strings.TrimSpace(*req.Unit)
			if unit == "" {
				unit = domain.DefaultUnit
			}
			item.Unit = unit
			fields["unit"] = unit
		}
		if req.Category != nil {
			item.Category = strings.TrimSpace(*req.Category)
			fields["category"] = item.Category
		}
		if req.Active != nil {
			item.IsActive = *req.Active
			fields["is_active"] = item.IsActive
		}
		if req.Metadata != nil {
			item.Metadata = datatypes.JSONMap(req.Metadata)
			fields["metadata"] = item.Metadata
		}

		item.UpdatedAt = s.clock.Now().UTC()
		fields["updated_at"] = item.UpdatedAt
		if _, err := repo.Update(ctx, &domain.Product{ID: id, UserID: userID}, fields); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete is idempotent. Invoice lines keep their own copy of description and
// price, so removing a product does not alter issued invoices.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return domain.ErrInvalidUser
	}

	deleted, err := s.repo.Delete(ctx, &domain.Product{ID: id, UserID: userID})
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.log.Info("product deleted", zap.String("product_id", id.String()))
	}
	return nil
}

func validType(t domain.ProductType) bool {
	return t == domain.ProductTypeProduct || t == domain.ProductTypeService
}

func validTaxRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && !rate.GreaterThan(hundred)
}
