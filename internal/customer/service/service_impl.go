package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicekit/internal/clock"
	"github.com/smallbiznis/invoicekit/internal/customer/domain"
	"github.com/smallbiznis/invoicekit/pkg/db/pagination"
	"github.com/smallbiznis/invoicekit/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: c,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CustomerInput) (domain.Customer, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidUser
	}

	now := s.clock.Now().UTC()
	customer := domain.Customer{
		ID:        s.genID.Generate(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := apply(&customer, req); err != nil {
		return domain.Customer{}, err
	}

	if err := s.repo.Insert(ctx, s.db, &customer); err != nil {
		return domain.Customer{}, err
	}

	s.log.Debug("customer created", zap.String("customer_id", customer.ID.String()))
	return customer, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCustomerRequest) (domain.ListCustomerResponse, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return domain.ListCustomerResponse{}, domain.ErrInvalidUser
	}
	if req.Type != "" && !validType(req.Type) {
		return domain.ListCustomerResponse{}, domain.ErrInvalidType
	}

	items, err := s.repo.List(ctx, s.db, userID, domain.ListCustomerFilter{
		Search: req.Search,
		Type:   req.Type,
	}, req.Pagination)
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	items, pageInfo := pagination.Page(items, req.Pagination.Limit(), func(customer *domain.Customer) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        customer.ID.String(),
			CreatedAt: customer.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	customers := make([]domain.Customer, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		customers = append(customers, *item)
	}

	return domain.ListCustomerResponse{PageInfo: pageInfo, Customers: customers}, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Customer, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidUser
	}

	item, err := s.repo.FindByID(ctx, s.db, userID, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.CustomerInput) (domain.Customer, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidUser
	}

	var updated domain.Customer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByID(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrNotFound
		}

		updated = *existing
		if err := apply(&updated, req); err != nil {
			return err
		}
		updated.UpdatedAt = s.clock.Now().UTC()
		return s.repo.Update(ctx, tx, &updated)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return updated, nil
}

// Delete is idempotent. A customer still referenced by invoices is kept.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return domain.ErrInvalidUser
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := s.repo.CountInvoices(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrInUse
		}
		deleted, err := s.repo.Delete(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if deleted > 0 {
			s.log.Info("customer deleted", zap.String("customer_id", id.String()))
		}
		return nil
	})
}

func apply(customer *domain.Customer, req domain.CustomerInput) error {
	customerType := req.Type
	if customerType == "" {
		customerType = domain.CustomerTypeBusiness
	}
	if !validType(customerType) {
		return domain.ErrInvalidType
	}

	company := strings.TrimSpace(req.CompanyName)
	last := strings.TrimSpace(req.LastName)
	if company == "" && last == "" {
		return domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return domain.ErrInvalidEmail
		}
	}

	customer.Type = customerType
	customer.CompanyName = company
	customer.FirstName = strings.TrimSpace(req.FirstName)
	customer.LastName = last
	customer.Email = email
	customer.Phone = strings.TrimSpace(req.Phone)
	customer.Address = strings.TrimSpace(req.Address)
	customer.City = strings.TrimSpace(req.City)
	customer.PostalCode = strings.TrimSpace(req.PostalCode)
	customer.Country = strings.TrimSpace(req.Country)
	customer.TaxID = strings.TrimSpace(req.TaxID)
	customer.Notes = req.Notes
	return nil
}

func validType(t domain.CustomerType) bool {
	return t == domain.CustomerTypePrivate || t == domain.CustomerTypeBusiness
}
