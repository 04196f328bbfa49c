package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	admindomain "github.com/smallbiznis/invoicekit/internal/admin/domain"
	auditdomain "github.com/smallbiznis/invoicekit/internal/audit/domain"
	authdomain "github.com/smallbiznis/invoicekit/internal/auth/domain"
	"github.com/smallbiznis/invoicekit/internal/authorization"
	customerdomain "github.com/smallbiznis/invoicekit/internal/customer/domain"
	dashboarddomain "github.com/smallbiznis/invoicekit/internal/dashboard/domain"
	invoicedomain "github.com/smallbiznis/invoicekit/internal/invoice/domain"
	productdomain "github.com/smallbiznis/invoicekit/internal/product/domain"
	settingsdomain "github.com/smallbiznis/invoicekit/internal/settings/domain"
	"github.com/smallbiznis/invoicekit/pkg/db"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

var (
	unauthorizedPayload = errorPayload{Type: "unauthorized", Message: "unauthorized"}
	internalPayload     = errorPayload{Type: "internal_error", Message: "internal server error"}
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{{Field: field, Code: code, Message: message}},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalPayload
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var invErr *invoicedomain.ValidationError
	if errors.As(err, &invErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{{
				Field:   invErr.Field,
				Code:    "invalid_value",
				Message: invErr.Field + " " + invErr.Reason,
			}},
		}
	}

	if code, field, ok := domainValidationCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{{
				Field:   field,
				Code:    code,
				Message: "invalid value",
			}},
		}
	}

	switch {
	case isUnauthorized(err):
		// Unknown admin and wrong code share this body.
		return http.StatusUnauthorized, unauthorizedPayload
	case errors.Is(err, admindomain.ErrLockedOut):
		return http.StatusLocked, errorPayload{
			Type:    "locked_out",
			Message: "account temporarily locked",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, admindomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFound(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, invoicedomain.ErrDuplicateInvoiceNumber):
		return http.StatusConflict, errorPayload{
			Type:    "duplicate_invoice_number",
			Message: "invoice number already in use",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, customerdomain.ErrInUse),
		errors.Is(err, authdomain.ErrUserExists),
		errors.Is(err, admindomain.ErrAdminExists):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isUnavailable(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, internalPayload
	}
}

// classifyErrorForLog feeds the request logger; it never carries the
// request's values.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError {
		return "server_error", code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationCodes = []struct {
	err   error
	field string
}{
	{ErrInvalidRequest, "request"},
	{customerdomain.ErrInvalidName, "name"},
	{customerdomain.ErrInvalidEmail, "email"},
	{customerdomain.ErrInvalidType, "type"},
	{customerdomain.ErrInvalidPageToken, "page_token"},
	{productdomain.ErrInvalidName, "name"},
	{productdomain.ErrInvalidType, "type"},
	{productdomain.ErrInvalidPrice, "price"},
	{productdomain.ErrInvalidTaxRate, "tax_rate"},
	{productdomain.ErrInvalidPageToken, "page_token"},
	{invoicedomain.ErrInvalidPageToken, "page_token"},
	{invoicedomain.ErrValidation, "request"},
	{settingsdomain.ErrInvalidKey, "key"},
	{settingsdomain.ErrInvalidValue, "value"},
	{authdomain.ErrInvalidEmail, "email"},
	{authdomain.ErrInvalidPassword, "password"},
	{admindomain.ErrInvalidEmail, "email"},
	{admindomain.ErrInvalidRole, "role"},
	{admindomain.ErrInvalidCode, "code"},
	{auditdomain.ErrInvalidAction, "action"},
	{auditdomain.ErrInvalidAdmin, "admin_id"},
}

func domainValidationCode(err error) (string, string, bool) {
	for _, v := range validationCodes {
		if errors.Is(err, v.err) {
			return v.err.Error(), v.field, true
		}
	}
	return "", "", false
}

func isUnauthorized(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionNotFound),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked),
		errors.Is(err, authdomain.ErrUserNotFound),
		errors.Is(err, admindomain.ErrInvalidCredential),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, customerdomain.ErrInvalidUser),
		errors.Is(err, productdomain.ErrInvalidUser),
		errors.Is(err, invoicedomain.ErrInvalidUser),
		errors.Is(err, settingsdomain.ErrInvalidUser),
		errors.Is(err, dashboarddomain.ErrInvalidUser):
		return true
	default:
		return false
	}
}

func isNotFound(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, productdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, invoicedomain.ErrCustomerNotFound),
		errors.Is(err, invoicedomain.ErrProductNotFound),
		errors.Is(err, admindomain.ErrAdminNotFound):
		return true
	default:
		return false
	}
}

func isUnavailable(err error) bool {
	switch {
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, invoicedomain.ErrStoreUnavailable),
		errors.Is(err, admindomain.ErrStoreUnavailable):
		return true
	default:
		return db.IsUnavailableErr(err)
	}
}
