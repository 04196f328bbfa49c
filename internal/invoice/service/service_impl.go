package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicekit/internal/clock"
	"github.com/smallbiznis/invoicekit/internal/config"
	"github.com/smallbiznis/invoicekit/internal/invoice/domain"
	"github.com/smallbiznis/invoicekit/internal/invoice/format"
	"github.com/smallbiznis/invoicekit/internal/observability/metrics"
	"github.com/smallbiznis/invoicekit/pkg/db"
	"github.com/smallbiznis/invoicekit/pkg/db/pagination"
	"github.com/smallbiznis/invoicekit/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opCreate       = "create"
	opUpdate       = "update"
	opDelete       = "delete"
	opUpdateStatus = "update_status"
	opPayment      = "record_payment"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Defaults *config.InvoicingDefaultsHolder
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	defaults *config.InvoicingDefaultsHolder
	metrics  *metrics.Metrics
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		defaults: p.Defaults,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.InvoiceInput) (*domain.Invoice, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return nil, domain.ErrInvalidUser
	}

	defaults := s.currentDefaults()
	req = s.applyDefaults(req, defaults)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	invoice := &domain.Invoice{
		ID:        s.genID.Generate(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	fillHeader(invoice, req)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		name, found, err := s.repo.CustomerName(ctx, tx, userID, req.CustomerID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrCustomerNotFound
		}
		invoice.CustomerName = name

		if invoice.InvoiceNumber == "" {
			number, err := s.nextNumber(ctx, tx, defaults.NumberTemplate, invoice.InvoiceDate)
			if err != nil {
				return err
			}
			invoice.InvoiceNumber = number
		}
		taken, err := s.repo.NumberTaken(ctx, tx, invoice.InvoiceNumber, 0)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrDuplicateInvoiceNumber
		}

		if err := s.repo.Insert(ctx, tx, invoice); err != nil {
			return err
		}

		items, err := s.buildItems(ctx, tx, userID, invoice.ID, req.Items, now)
		if err != nil {
			return err
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}
		invoice.Items = items
		return nil
	})
	err = s.headerErr(err)
	s.metrics.RecordInvoiceWrite(ctx, opCreate, err)
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.Int("items", len(invoice.Items)),
	)
	return invoice, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.InvoiceInput) (*domain.Invoice, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return nil, domain.ErrInvalidUser
	}

	keepStatus := req.Status == ""
	defaults := s.currentDefaults()
	req = s.applyDefaults(req, defaults)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	var invoice *domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByID(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrInvoiceNotFound
		}

		name, found, err := s.repo.CustomerName(ctx, tx, userID, req.CustomerID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrCustomerNotFound
		}

		invoice = existing
		previousNumber, previousStatus := invoice.InvoiceNumber, invoice.Status
		fillHeader(invoice, req)
		if invoice.InvoiceNumber == "" {
			invoice.InvoiceNumber = previousNumber
		}
		if keepStatus {
			invoice.Status = previousStatus
		}
		invoice.CustomerName = name
		invoice.UpdatedAt = now

		taken, err := s.repo.NumberTaken(ctx, tx, invoice.InvoiceNumber, invoice.ID)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrDuplicateInvoiceNumber
		}

		if err := s.repo.Update(ctx, tx, invoice); err != nil {
			return err
		}
		if err := s.repo.DeleteItems(ctx, tx, invoice.ID); err != nil {
			return err
		}

		items, err := s.buildItems(ctx, tx, userID, invoice.ID, req.Items, now)
		if err != nil {
			return err
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}
		invoice.Items = items
		return nil
	})
	err = s.headerErr(err)
	s.metrics.RecordInvoiceWrite(ctx, opUpdate, err)
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice updated",
		zap.String("invoice_id", invoice.ID.String()),
		zap.Int("items", len(invoice.Items)),
	)
	return invoice, nil
}

// Delete removes payments, items and the header together. Unknown ids are
// ignored.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return domain.ErrInvalidUser
	}

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByID(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}
		if err := s.repo.DeletePayments(ctx, tx, id); err != nil {
			return err
		}
		if err := s.repo.DeleteItems(ctx, tx, id); err != nil {
			return err
		}
		deleted, err = s.repo.DeleteInvoice(ctx, tx, userID, id)
		return err
	})
	err = s.storeErr(err)
	s.metrics.RecordInvoiceWrite(ctx, opDelete, err)
	if err != nil {
		return err
	}

	if deleted > 0 {
		s.log.Info("invoice deleted", zap.String("invoice_id", id.String()))
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return nil, domain.ErrInvalidUser
	}

	invoice, err := s.repo.FindByID(ctx, s.db, userID, id, false)
	if err != nil {
		return nil, s.storeErr(err)
	}
	if invoice == nil {
		return nil, domain.ErrInvoiceNotFound
	}

	items, err := s.repo.ListItems(ctx, s.db, invoice.ID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	invoice.Items = items
	return invoice, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return domain.ListInvoiceResponse{}, domain.ErrInvalidUser
	}
	if req.Status != "" && !req.Status.Valid() {
		return domain.ListInvoiceResponse{}, domain.Invalid("status", "is not a known invoice status")
	}

	limit := req.Pagination.Limit()
	filter := domain.ListFilter{
		Status:     req.Status,
		CustomerID: req.CustomerID,
		Limit:      limit + 1,
	}
	if req.PageToken != "" {
		createdAt, lastID, err := decodePageToken(req.PageToken)
		if err != nil {
			return domain.ListInvoiceResponse{}, err
		}
		filter.AfterCreatedAt = createdAt
		filter.AfterID = lastID
	}

	items, err := s.repo.List(ctx, s.db, userID, filter)
	if err != nil {
		return domain.ListInvoiceResponse{}, s.storeErr(err)
	}

	items, pageInfo := pagination.Page(items, limit, func(invoice *domain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        invoice.ID.String(),
			CreatedAt: invoice.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	invoices := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}
	return domain.ListInvoiceResponse{PageInfo: pageInfo, Invoices: invoices}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id snowflake.ID, status domain.InvoiceStatus) (*domain.Invoice, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return nil, domain.ErrInvalidUser
	}
	if !status.Valid() {
		return nil, domain.Invalid("status", "is not a known invoice status")
	}

	var invoice *domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		affected, err := s.repo.UpdateStatus(ctx, tx, userID, id, status, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrInvoiceNotFound
		}
		invoice, err = s.repo.FindByID(ctx, tx, userID, id, false)
		return err
	})
	err = s.storeErr(err)
	s.metrics.RecordInvoiceWrite(ctx, opUpdateStatus, err)
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice status changed",
		zap.String("invoice_id", id.String()),
		zap.String("status", string(status)),
	)
	return invoice, nil
}

// ListReminders returns sent or overdue invoices whose due date has passed,
// oldest due first.
func (s *Service) ListReminders(ctx context.Context) ([]domain.Invoice, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return nil, domain.ErrInvalidUser
	}

	items, err := s.repo.ListOverdue(ctx, s.db, userID, dateOnly(s.clock.Now()))
	if err != nil {
		return nil, s.storeErr(err)
	}
	out := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

// NextNumber previews the number Create would assign today. Another writer
// may take it first; Create allocates again inside its transaction.
func (s *Service) NextNumber(ctx context.Context) (string, error) {
	if _, ok := tenantctx.UserID(ctx); !ok {
		return "", domain.ErrInvalidUser
	}
	number, err := s.nextNumber(ctx, s.db, s.currentDefaults().NumberTemplate, dateOnly(s.clock.Now()))
	if err != nil {
		return "", s.storeErr(err)
	}
	return number, nil
}

func (s *Service) RecordPayment(ctx context.Context, req domain.PaymentInput) (*domain.PaymentResult, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return nil, domain.ErrInvalidUser
	}
	if req.PaymentDate.IsZero() {
		req.PaymentDate = dateOnly(s.clock.Now())
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		result     domain.PaymentResult
		becamePaid bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByID(ctx, tx, userID, req.InvoiceID, true)
		if err != nil {
			return err
		}
		if invoice == nil {
			return domain.ErrInvoiceNotFound
		}

		now := s.clock.Now().UTC()
		payment := domain.Payment{
			ID:            s.genID.Generate(),
			InvoiceID:     invoice.ID,
			Amount:        req.Amount.Round(2),
			PaymentDate:   dateOnly(req.PaymentDate),
			PaymentMethod: strings.TrimSpace(req.PaymentMethod),
			Reference:     strings.TrimSpace(req.Reference),
			Notes:         req.Notes,
			CreatedAt:     now,
		}
		if err := s.repo.InsertPayment(ctx, tx, &payment); err != nil {
			return err
		}

		paid, err := s.repo.SumPayments(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}

		status := invoice.Status
		if paid.GreaterThanOrEqual(invoice.Total.Round(2)) && status != domain.InvoiceStatusPaid {
			if _, err := s.repo.UpdateStatus(ctx, tx, userID, invoice.ID, domain.InvoiceStatusPaid, now); err != nil {
				return err
			}
			status = domain.InvoiceStatusPaid
			becamePaid = true
		}

		result = domain.PaymentResult{Payment: payment, Status: status, Paid: paid}
		return nil
	})
	err = s.storeErr(err)
	s.metrics.RecordInvoiceWrite(ctx, opPayment, err)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPayment(ctx, becamePaid)

	s.log.Info("payment recorded",
		zap.String("invoice_id", req.InvoiceID.String()),
		zap.String("amount", result.Payment.Amount.StringFixed(2)),
		zap.String("status", string(result.Status)),
	)
	return &result, nil
}

func (s *Service) ListPayments(ctx context.Context, invoiceID snowflake.ID) ([]domain.Payment, error) {
	userID, ok := tenantctx.UserID(ctx)
	if !ok {
		return nil, domain.ErrInvalidUser
	}

	invoice, err := s.repo.FindByID(ctx, s.db, userID, invoiceID, false)
	if err != nil {
		return nil, s.storeErr(err)
	}
	if invoice == nil {
		return nil, domain.ErrInvoiceNotFound
	}

	payments, err := s.repo.ListPayments(ctx, s.db, invoiceID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return payments, nil
}

func (s *Service) nextNumber(ctx context.Context, conn *gorm.DB, template string, issuedAt time.Time) (string, error) {
	if strings.TrimSpace(template) == "" {
		template = format.DefaultInvoiceNumberTemplate
	}
	matcher, err := format.NewSequenceMatcher(template, issuedAt)
	if err != nil {
		return "", err
	}
	numbers, err := s.repo.NumbersWithPrefix(ctx, conn, format.YearPrefix(template, issuedAt))
	if err != nil {
		return "", err
	}
	return format.FormatInvoiceNumber(template, issuedAt, matcher.NextSequence(numbers))
}

func (s *Service) buildItems(ctx context.Context, tx *gorm.DB, userID, invoiceID snowflake.ID, inputs []domain.ItemInput, now time.Time) ([]domain.InvoiceItem, error) {
	items := make([]domain.InvoiceItem, 0, len(inputs))
	for i, in := range inputs {
		if in.ProductID != nil {
			exists, err := s.repo.ProductExists(ctx, tx, userID, *in.ProductID)
			if err != nil {
				return nil, err
			}
			if !exists {
				return nil, fmt.Errorf("%w: items[%d].product_id %s", domain.ErrProductNotFound, i, in.ProductID.String())
			}
		}
		items = append(items, domain.InvoiceItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoiceID,
			ProductID:   in.ProductID,
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			TaxRate:     in.TaxRate,
			Discount:    in.Discount,
			Total:       in.Total,
			Position:    i + 1,
			CreatedAt:   now,
		})
	}
	return items, nil
}

func (s *Service) currentDefaults() config.InvoicingDefaults {
	if s.defaults == nil {
		return config.DefaultInvoicingDefaults()
	}
	return s.defaults.Get()
}

func (s *Service) applyDefaults(req domain.InvoiceInput, d config.InvoicingDefaults) domain.InvoiceInput {
	if req.InvoiceDate.IsZero() {
		req.InvoiceDate = s.clock.Now()
	}
	req.InvoiceDate = dateOnly(req.InvoiceDate)
	if req.DueDate.IsZero() {
		req.DueDate = req.InvoiceDate.AddDate(0, 0, d.DueDays)
	}
	req.DueDate = dateOnly(req.DueDate)
	if req.Status == "" {
		req.Status = domain.InvoiceStatusDraft
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = d.Currency
	}
	if strings.TrimSpace(req.PaymentTerms) == "" {
		req.PaymentTerms = d.PaymentTerms
	}
	if strings.TrimSpace(req.Notes) == "" {
		req.Notes = d.Notes
	}
	if strings.TrimSpace(req.Language) == "" {
		req.Language = d.Language
	}
	req.InvoiceNumber = strings.TrimSpace(req.InvoiceNumber)
	return req
}

// headerErr maps errors of the writes that set invoice_number, the only
// unique business key an invoice write can collide on.
func (s *Service) headerErr(err error) error {
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateInvoiceNumber
	}
	return s.storeErr(err)
}

func (s *Service) storeErr(err error) error {
	if err == nil {
		return nil
	}
	if db.IsUnavailableErr(err) {
		s.log.Error("invoice store unavailable", zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

func fillHeader(invoice *domain.Invoice, req domain.InvoiceInput) {
	invoice.CustomerID = req.CustomerID
	invoice.InvoiceNumber = req.InvoiceNumber
	invoice.InvoiceDate = req.InvoiceDate
	invoice.DueDate = req.DueDate
	invoice.Status = req.Status
	invoice.Subtotal = req.Subtotal
	invoice.TaxAmount = req.TaxAmount
	invoice.Total = req.Total
	invoice.Currency = req.Currency
	invoice.Notes = req.Notes
	invoice.PaymentTerms = req.PaymentTerms
	invoice.Language = req.Language
}

// dateOnly keeps the calendar day as written, whatever the offset.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func decodePageToken(token string) (time.Time, snowflake.ID, error) {
	cursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return time.Time{}, 0, domain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
	if err != nil {
		return time.Time{}, 0, domain.ErrInvalidPageToken
	}
	id, err := strconv.ParseInt(cursor.ID, 10, 64)
	if err != nil || id <= 0 {
		return time.Time{}, 0, domain.ErrInvalidPageToken
	}
	return createdAt, snowflake.ID(id), nil
}

