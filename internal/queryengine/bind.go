package queryengine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	domainerrors "github.com/iruldev/dbcore/internal/domain/errors"
)

// textLikeOIDs are the built-in OIDs that require a JSON string and pass
// through unchanged. citext has no fixed OID across databases, so it is
// supplied per call as citextOID instead of living in this table.
var textLikeOIDs = map[uint32]bool{
	pgtype.TextOID:    true,
	pgtype.VarcharOID: true,
	pgtype.NameOID:    true,
	pgtype.BPCharOID:  true,
}

// BindParams coerces JSON parameter values against a prepared statement's
// parameter type OIDs, returning driver-ready values in positional order.
// citextOID is the connection's resolved citext type OID (0 if the
// extension is not installed). Mismatched arity is reported as a client
// error: "Expected N, got M".
func BindParams(paramOIDs []uint32, citextOID uint32, values []json.RawMessage) ([]any, error) {
	if len(values) != len(paramOIDs) {
		return nil, domainerrors.NewDomain(domainerrors.CodeClientError,
			fmt.Sprintf("Expected %d, got %d", len(paramOIDs), len(values)))
	}

	bound := make([]any, len(values))
	for i, oid := range paramOIDs {
		v, err := bindOne(oid, citextOID, values[i])
		if err != nil {
			return nil, err
		}
		bound[i] = v
	}
	return bound, nil
}

func bindOne(oid uint32, citextOID uint32, raw json.RawMessage) (any, error) {
	switch {
	case textLikeOIDs[oid], citextOID != 0 && oid == citextOID:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, domainerrors.NewDomain(domainerrors.CodeClientError, "expected a string parameter")
		}
		return s, nil

	case oid == pgtype.BoolOID:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, domainerrors.NewDomain(domainerrors.CodeClientError, "expected a boolean parameter")
		}
		return b, nil

	case oid == pgtype.Int2OID, oid == pgtype.Int4OID, oid == pgtype.Int8OID:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, domainerrors.NewDomain(domainerrors.CodeClientError, "expected an integer parameter")
		}
		return n, nil

	case oid == pgtype.Float4OID, oid == pgtype.Float8OID:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, domainerrors.NewDomain(domainerrors.CodeClientError, "expected a numeric parameter")
		}
		return f, nil

	case oid == pgtype.NumericOID:
		var numTok json.Number
		if err := json.Unmarshal(raw, &numTok); err != nil {
			return nil, domainerrors.NewDomain(domainerrors.CodeClientError, "expected a numeric parameter")
		}
		d, err := decimal.NewFromString(numTok.String())
		if err != nil {
			return nil, domainerrors.NewDomain(domainerrors.CodeClientError, "expected a numeric parameter")
		}
		return d, nil

	case oid == pgtype.TimestampOID:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, domainerrors.NewDomain(domainerrors.CodeClientError, "expected a timestamp string parameter")
		}
		return parseTimestampParam(s)

	default:
		return nil, domainerrors.NewDomain(domainerrors.CodeClientError, "unsupported parameter type")
	}
}

// parseTimestampParam accepts exactly two shapes: a bare date (10 chars)
// at midnight, or a date plus time (19 chars).
func parseTimestampParam(s string) (time.Time, error) {
	switch len(s) {
	case 10:
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, domainerrors.NewDomain(domainerrors.CodeClientError, "invalid timestamp parameter")
		}
		return t, nil
	case 19:
		t, err := time.Parse("2006-01-02 15:04:05", s)
		if err != nil {
			return time.Time{}, domainerrors.NewDomain(domainerrors.CodeClientError, "invalid timestamp parameter")
		}
		return t, nil
	default:
		return time.Time{}, domainerrors.NewDomain(domainerrors.CodeClientError, "invalid timestamp parameter")
	}
}
