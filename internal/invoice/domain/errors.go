package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("validation_error")
	ErrInvalidUser            = errors.New("invalid_user")
	ErrInvoiceNotFound        = errors.New("invoice_not_found")
	ErrCustomerNotFound       = errors.New("customer_not_found")
	ErrProductNotFound        = errors.New("product_not_found")
	ErrDuplicateInvoiceNumber = errors.New("duplicate_invoice_number")
	ErrInvalidPageToken       = errors.New("invalid_page_token")
	ErrStoreUnavailable       = errors.New("store_unavailable")
)

// ValidationError names the offending field. It matches ErrValidation under
// errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
