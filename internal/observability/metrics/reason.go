package metrics

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/invoicekit/pkg/db"
)

const (
	ReasonNone                 = "none"
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonUniqueViolation      = "unique_violation"
	ReasonUnavailable          = "unavailable"
	ReasonOther                = "other"
)

// ClassifyReason maps an error to a low-cardinality label value.
func ClassifyReason(err error) string {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return ReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return ReasonSerializationFailure
	case db.IsDuplicateKeyErr(err):
		return ReasonUniqueViolation
	case db.IsUnavailableErr(err):
		return ReasonUnavailable
	default:
		return ReasonOther
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
