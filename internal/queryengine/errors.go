package queryengine

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PgError is the JSON shape surfaced to callers for server-side SQL
// errors: code/severity/message plus a position already adjusted back
// into the caller's original query text.
type PgError struct {
	Type     string `json:"type"`
	Code     string `json:"code"`
	Position *int   `json:"position"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func (e *PgError) Error() string {
	return e.Message
}

// newPgError builds a PgError from a *pgconn.PgError, subtracting offset
// from the reported Position (0 means "no position") so it lands inside
// the user's original query text rather than the wrapping CTE. offset of
// 0 means "do not adjust" (unwrapped statements: DML, DDL, explain).
func newPgError(pgErr *pgconn.PgError, offset int) *PgError {
	var pos *int
	if pgErr.Position > 0 {
		adjusted := int(pgErr.Position) - offset
		pos = &adjusted
	}
	return &PgError{
		Type:     "PgError",
		Code:     pgErr.Code,
		Position: pos,
		Message:  pgErr.Message,
		Severity: pgErr.Severity,
	}
}

// asPgError extracts the underlying *pgconn.PgError from err, if any.
func asPgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
