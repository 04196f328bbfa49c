package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicekit/internal/invoice/calc"
	invoicedomain "github.com/smallbiznis/invoicekit/internal/invoice/domain"
	"github.com/smallbiznis/invoicekit/pkg/db/pagination"
)

// invoiceRequest is the wire form of an invoice. Dates are calendar days;
// omitted amounts are computed from the items.
type invoiceRequest struct {
	CustomerID    snowflake.ID       `json:"customer_id"`
	InvoiceNumber string             `json:"invoice_number"`
	InvoiceDate   string             `json:"invoice_date"`
	DueDate       string             `json:"due_date"`
	Status        string             `json:"status"`
	Subtotal      *decimal.Decimal   `json:"subtotal"`
	TaxAmount     *decimal.Decimal   `json:"tax_amount"`
	Total         *decimal.Decimal   `json:"total"`
	Currency      string             `json:"currency"`
	Notes         string             `json:"notes"`
	PaymentTerms  string             `json:"payment_terms"`
	Language      string             `json:"language"`
	Items         []invoiceItemInput `json:"items"`
}

type invoiceItemInput struct {
	ProductID   *snowflake.ID    `json:"product_id"`
	Description string           `json:"description"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	TaxRate     decimal.Decimal  `json:"tax_rate"`
	Discount    *decimal.Decimal `json:"discount"`
	Total       *decimal.Decimal `json:"total"`
}

type paymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   string          `json:"payment_date"`
	PaymentMethod string          `json:"payment_method"`
	Reference     string          `json:"reference"`
	Notes         string          `json:"notes"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func (r invoiceRequest) toInput() (invoicedomain.InvoiceInput, error) {
	invoiceDate, err := parseOptionalDate(r.InvoiceDate)
	if err != nil {
		return invoicedomain.InvoiceInput{}, newValidationError("invoice_date", "invalid_date", "invoice_date must be YYYY-MM-DD")
	}
	dueDate, err := parseOptionalDate(r.DueDate)
	if err != nil {
		return invoicedomain.InvoiceInput{}, newValidationError("due_date", "invalid_date", "due_date must be YYYY-MM-DD")
	}

	items := make([]invoicedomain.ItemInput, 0, len(r.Items))
	lines := make([]calc.Line, 0, len(r.Items))
	for _, it := range r.Items {
		line := calc.Line{
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			TaxRate:   it.TaxRate,
			Discount:  decimal.Zero,
		}
		if it.Discount != nil {
			line.Discount = *it.Discount
		}
		total := calc.ItemTotal(line)
		if it.Total != nil {
			total = *it.Total
		}
		lines = append(lines, line)
		items = append(items, invoicedomain.ItemInput{
			ProductID:   it.ProductID,
			Description: strings.TrimSpace(it.Description),
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TaxRate:     line.TaxRate,
			Discount:    line.Discount,
			Total:       total,
		})
	}

	totals := calc.Aggregate(lines)
	subtotal, tax := totals.Subtotal, totals.TaxAmount
	if r.Subtotal != nil {
		subtotal = *r.Subtotal
	}
	if r.TaxAmount != nil {
		tax = *r.TaxAmount
	}
	total := calc.Money(subtotal.Add(tax))
	if r.Total != nil {
		total = *r.Total
	}

	return invoicedomain.InvoiceInput{
		CustomerID:    r.CustomerID,
		InvoiceNumber: strings.TrimSpace(r.InvoiceNumber),
		InvoiceDate:   invoiceDate,
		DueDate:       dueDate,
		Status:        invoicedomain.InvoiceStatus(strings.TrimSpace(r.Status)),
		Subtotal:      subtotal,
		TaxAmount:     tax,
		Total:         total,
		Currency:      strings.TrimSpace(r.Currency),
		Notes:         r.Notes,
		PaymentTerms:  r.PaymentTerms,
		Language:      strings.TrimSpace(r.Language),
		Items:         items,
	}, nil
}

func bindInvoice(c *gin.Context) (invoicedomain.InvoiceInput, bool) {
	var req invoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return invoicedomain.InvoiceInput{}, false
	}
	input, err := req.toInput()
	if err != nil {
		AbortWithError(c, err)
		return invoicedomain.InvoiceInput{}, false
	}
	return input, true
}

func (s *Server) CreateInvoice(c *gin.Context) {
	input, ok := bindInvoice(c)
	if !ok {
		return
	}

	resp, err := s.invoiceSvc.Create(c.Request.Context(), input)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	input, ok := bindInvoice(c)
	if !ok {
		return
	}

	resp, err := s.invoiceSvc.Update(c.Request.Context(), id, input)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.invoiceSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	item, err := s.invoiceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status     string `form:"status"`
		CustomerID string `form:"customer_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	customerID, err := parseOptionalSnowflakeID(query.CustomerID)
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer_id", "invalid customer_id"))
		return
	}
	status := invoicedomain.InvoiceStatus(strings.TrimSpace(query.Status))
	if status != "" && !status.Valid() {
		AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListInvoiceRequest{
		Pagination: query.Pagination,
		Status:     status,
		CustomerID: customerID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateInvoiceStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.UpdateStatus(c.Request.Context(), id, invoicedomain.InvoiceStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListInvoiceReminders(c *gin.Context) {
	resp, err := s.invoiceSvc.ListReminders(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) NextInvoiceNumber(c *gin.Context) {
	number, err := s.invoiceSvc.NextNumber(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"invoice_number": number}})
}

func (s *Server) RecordInvoicePayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	paymentDate, err := parseOptionalDate(req.PaymentDate)
	if err != nil {
		AbortWithError(c, newValidationError("payment_date", "invalid_date", "payment_date must be YYYY-MM-DD"))
		return
	}

	resp, err := s.invoiceSvc.RecordPayment(c.Request.Context(), invoicedomain.PaymentInput{
		InvoiceID:     id,
		Amount:        req.Amount,
		PaymentDate:   paymentDate,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Reference:     strings.TrimSpace(req.Reference),
		Notes:         req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListInvoicePayments(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.invoiceSvc.ListPayments(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
