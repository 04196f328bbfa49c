package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	customerdomain "github.com/smallbiznis/invoicekit/internal/customer/domain"
	"github.com/smallbiznis/invoicekit/internal/invoice/domain"
	"github.com/smallbiznis/invoicekit/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type customerNameRow struct {
	ID          snowflake.ID
	CompanyName string
	FirstName   string
	LastName    string
}

type invoiceRow struct {
	domain.Invoice
	CustomerCompanyName string
	CustomerFirstName   string
	CustomerLastName    string
}

func (r invoiceRow) toInvoice() *domain.Invoice {
	inv := r.Invoice
	inv.CustomerName = customerdomain.DisplayName(r.CustomerCompanyName, r.CustomerFirstName, r.CustomerLastName)
	return &inv
}

const selectWithCustomer = `SELECT i.*,
	COALESCE(c.company_name, '') AS customer_company_name,
	COALESCE(c.first_name, '') AS customer_first_name,
	COALESCE(c.last_name, '') AS customer_last_name
FROM invoices i
LEFT JOIN customers c ON c.id = i.customer_id`

func (r *repo) CustomerName(ctx context.Context, conn *gorm.DB, userID, customerID snowflake.ID) (string, bool, error) {
	var row customerNameRow
	err := conn.WithContext(ctx).Raw(
		`SELECT id, company_name, first_name, last_name FROM customers WHERE user_id = ? AND id = ?`,
		userID, customerID,
	).Scan(&row).Error
	if err != nil {
		return "", false, err
	}
	if row.ID == 0 {
		return "", false, nil
	}
	return customerdomain.DisplayName(row.CompanyName, row.FirstName, row.LastName), true, nil
}

func (r *repo) ProductExists(ctx context.Context, conn *gorm.DB, userID, productID snowflake.ID) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM products WHERE user_id = ? AND id = ?`,
		userID, productID,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) NumberTaken(ctx context.Context, conn *gorm.DB, number string, excludeID snowflake.ID) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM invoices WHERE invoice_number = ? AND id <> ?`,
		number, excludeID,
	).Scan(&count).Error
	return count > 0, err
}

// NumbersWithPrefix may over-match when prefix holds LIKE wildcards; callers
// filter the result with a format.SequenceMatcher.
func (r *repo) NumbersWithPrefix(ctx context.Context, conn *gorm.DB, prefix string) ([]string, error) {
	var numbers []string
	err := conn.WithContext(ctx).Raw(
		`SELECT invoice_number FROM invoices WHERE invoice_number LIKE ?`,
		prefix+"%",
	).Scan(&numbers).Error
	return numbers, err
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, invoice *domain.Invoice) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, user_id, customer_id, invoice_number, invoice_date, due_date, status,
			subtotal, tax_amount, total, currency, notes, payment_terms, language,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.UserID,
		invoice.CustomerID,
		invoice.InvoiceNumber,
		invoice.InvoiceDate,
		invoice.DueDate,
		invoice.Status,
		invoice.Subtotal,
		invoice.TaxAmount,
		invoice.Total,
		invoice.Currency,
		invoice.Notes,
		invoice.PaymentTerms,
		invoice.Language,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, invoice *domain.Invoice) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE invoices SET
			customer_id = ?, invoice_number = ?, invoice_date = ?, due_date = ?, status = ?,
			subtotal = ?, tax_amount = ?, total = ?, currency = ?, notes = ?,
			payment_terms = ?, language = ?, updated_at = ?
		 WHERE user_id = ? AND id = ?`,
		invoice.CustomerID,
		invoice.InvoiceNumber,
		invoice.InvoiceDate,
		invoice.DueDate,
		invoice.Status,
		invoice.Subtotal,
		invoice.TaxAmount,
		invoice.Total,
		invoice.Currency,
		invoice.Notes,
		invoice.PaymentTerms,
		invoice.Language,
		invoice.UpdatedAt,
		invoice.UserID,
		invoice.ID,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, conn *gorm.DB, userID, id snowflake.ID, status domain.InvoiceStatus, at time.Time) (int64, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ? WHERE user_id = ? AND id = ?`,
		status, at, userID, id,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, userID, id snowflake.ID, forUpdate bool) (*domain.Invoice, error) {
	if forUpdate {
		var invoice domain.Invoice
		err := db.ForUpdate(conn.WithContext(ctx)).
			Where("user_id = ? AND id = ?", userID, id).
			Limit(1).
			Find(&invoice).Error
		if err != nil {
			return nil, err
		}
		if invoice.ID == 0 {
			return nil, nil
		}
		return &invoice, nil
	}

	var row invoiceRow
	err := conn.WithContext(ctx).Raw(
		selectWithCustomer+` WHERE i.user_id = ? AND i.id = ?`,
		userID, id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return row.toInvoice(), nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, userID snowflake.ID, filter domain.ListFilter) ([]*domain.Invoice, error) {
	query := selectWithCustomer + ` WHERE i.user_id = ?`
	args := []any{userID}
	if filter.Status != "" {
		query += ` AND i.status = ?`
		args = append(args, filter.Status)
	}
	if filter.CustomerID != 0 {
		query += ` AND i.customer_id = ?`
		args = append(args, filter.CustomerID)
	}
	if filter.AfterID != 0 {
		query += ` AND (i.created_at < ? OR (i.created_at = ? AND i.id < ?))`
		args = append(args, filter.AfterCreatedAt, filter.AfterCreatedAt, filter.AfterID)
	}
	query += ` ORDER BY i.created_at DESC, i.id DESC LIMIT ?`
	args = append(args, filter.Limit)

	var rows []invoiceRow
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toInvoices(rows), nil
}

func (r *repo) ListOverdue(ctx context.Context, conn *gorm.DB, userID snowflake.ID, before time.Time) ([]*domain.Invoice, error) {
	var rows []invoiceRow
	err := conn.WithContext(ctx).Raw(
		selectWithCustomer+` WHERE i.user_id = ? AND i.status IN (?, ?) AND i.due_date < ?
		 ORDER BY i.due_date ASC, i.id ASC`,
		userID, domain.InvoiceStatusSent, domain.InvoiceStatusOverdue, before,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toInvoices(rows), nil
}

func (r *repo) DeleteInvoice(ctx context.Context, conn *gorm.DB, userID, id snowflake.ID) (int64, error) {
	res := conn.WithContext(ctx).Exec(`DELETE FROM invoices WHERE user_id = ? AND id = ?`, userID, id)
	return res.RowsAffected, res.Error
}

func (r *repo) InsertItems(ctx context.Context, conn *gorm.DB, items []domain.InvoiceItem) error {
	for i := range items {
		item := &items[i]
		err := conn.WithContext(ctx).Exec(
			`INSERT INTO invoice_items (
				id, invoice_id, product_id, description, quantity, unit_price,
				tax_rate, discount, total, position, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.InvoiceID,
			item.ProductID,
			item.Description,
			item.Quantity,
			item.UnitPrice,
			item.TaxRate,
			item.Discount,
			item.Total,
			item.Position,
			item.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) DeleteItems(ctx context.Context, conn *gorm.DB, invoiceID snowflake.ID) error {
	return conn.WithContext(ctx).Exec(`DELETE FROM invoice_items WHERE invoice_id = ?`, invoiceID).Error
}

func (r *repo) ListItems(ctx context.Context, conn *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceItem, error) {
	var items []domain.InvoiceItem
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM invoice_items WHERE invoice_id = ? ORDER BY position ASC`,
		invoiceID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) InsertPayment(ctx context.Context, conn *gorm.DB, payment *domain.Payment) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, invoice_id, amount, payment_date, payment_method, reference, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.InvoiceID,
		payment.Amount,
		payment.PaymentDate,
		payment.PaymentMethod,
		payment.Reference,
		payment.Notes,
		payment.CreatedAt,
	).Error
}

func (r *repo) ListPayments(ctx context.Context, conn *gorm.DB, invoiceID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM payments WHERE invoice_id = ? ORDER BY payment_date ASC, created_at ASC, id ASC`,
		invoiceID,
	).Scan(&payments).Error
	return payments, err
}

// SumPayments adds the amounts in decimal rather than with SQL SUM, which
// would go through floating point on SQLite.
func (r *repo) SumPayments(ctx context.Context, conn *gorm.DB, invoiceID snowflake.ID) (decimal.Decimal, error) {
	var rows []struct {
		Amount decimal.Decimal
	}
	err := conn.WithContext(ctx).Raw(
		`SELECT amount FROM payments WHERE invoice_id = ?`,
		invoiceID,
	).Scan(&rows).Error
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, row := range rows {
		sum = sum.Add(row.Amount.Round(2))
	}
	return sum, nil
}

func (r *repo) DeletePayments(ctx context.Context, conn *gorm.DB, invoiceID snowflake.ID) error {
	return conn.WithContext(ctx).Exec(`DELETE FROM payments WHERE invoice_id = ?`, invoiceID).Error
}

func toInvoices(rows []invoiceRow) []*domain.Invoice {
	out := make([]*domain.Invoice, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toInvoice())
	}
	return out
}
