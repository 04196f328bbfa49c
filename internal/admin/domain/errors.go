package domain

import "errors"

var (
	ErrAdminNotFound     = errors.New("admin_not_found")
	ErrInvalidCredential = errors.New("invalid_credential")
	ErrLockedOut         = errors.New("locked_out")
	ErrAdminExists       = errors.New("admin_already_exists")
	ErrInvalidEmail      = errors.New("invalid_email")
	ErrInvalidRole       = errors.New("invalid_role")
	ErrInvalidCode       = errors.New("invalid_code")
	ErrForbidden         = errors.New("forbidden")
	ErrStoreUnavailable  = errors.New("store_unavailable")
)
