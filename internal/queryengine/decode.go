package queryengine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// DecodeRow converts one row of already-scanned Go values (as pgx itself
// decoded them per its type map) into JSON-ready values ordered by oids,
// per the protocol type of each column. citextOID is the connection's
// resolved OID for the citext extension type (0 if the extension is not
// installed, in which case no column can carry it).
func DecodeRow(oids []uint32, citextOID uint32, values []any) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		raw, err := decodeValue(oids[i], citextOID, v)
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return out, nil
}

func decodeValue(oid uint32, citextOID uint32, v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("null"), nil
	}

	switch {
	case oid == pgtype.TextOID, oid == pgtype.VarcharOID, oid == pgtype.NameOID,
		oid == pgtype.BPCharOID, (citextOID != 0 && oid == citextOID):
		return marshalString(fmt.Sprint(v))

	case oid == pgtype.BoolOID:
		return marshal(v)

	case oid == pgtype.Int2OID, oid == pgtype.Int4OID, oid == pgtype.Int8OID:
		return marshal(v)

	case oid == pgtype.Float4OID, oid == pgtype.Float8OID:
		return marshal(v)

	case oid == pgtype.NumericOID:
		// Preserve precision by rendering through Stringer rather than a
		// float64 round trip.
		if s, ok := v.(fmt.Stringer); ok {
			return marshalString(s.String())
		}
		return marshalString(fmt.Sprint(v))

	case oid == pgtype.JSONOID, oid == pgtype.JSONBOID:
		switch b := v.(type) {
		case []byte:
			return json.RawMessage(b), nil
		case string:
			return json.RawMessage(b), nil
		default:
			return marshal(v)
		}

	case oid == pgtype.DateOID:
		t, err := asTime(v)
		if err != nil {
			return nil, err
		}
		return marshalString(t.Format("2006-01-02"))

	case oid == pgtype.TimeOID:
		t, err := asTime(v)
		if err != nil {
			return nil, err
		}
		return marshalString(t.Format("15:04:05"))

	case oid == pgtype.TimestampOID:
		t, err := asTime(v)
		if err != nil {
			return nil, err
		}
		return marshalString(t.Format("2006-01-02 15:04:05"))

	case oid == pgtype.TimestamptzOID:
		t, err := asTime(v)
		if err != nil {
			return nil, err
		}
		return marshalString(t.Format("2006-01-02 15:04:05 -07:00"))

	default:
		// Unsupported type: fall back to the value's text representation.
		// The caller (engine.go) decides whether the statement as a whole
		// needs the text-protocol fallback path instead.
		return marshalString(fmt.Sprint(v))
	}
}

// ColumnsDecodable reports whether every column's protocol type has a
// typed decoding arm above. When any column falls outside that set the
// whole statement is re-issued over the text protocol and decoded with
// DecodeTextRow instead.
func ColumnsDecodable(columns []QueryResultColumn, citextOID uint32) bool {
	for _, c := range columns {
		if !decodableOID(c.DataTypeOID, citextOID) {
			return false
		}
	}
	return true
}

func decodableOID(oid uint32, citextOID uint32) bool {
	if citextOID != 0 && oid == citextOID {
		return true
	}
	switch oid {
	case pgtype.TextOID, pgtype.VarcharOID, pgtype.NameOID, pgtype.BPCharOID,
		pgtype.BoolOID,
		pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID,
		pgtype.Float4OID, pgtype.Float8OID,
		pgtype.NumericOID,
		pgtype.JSONOID, pgtype.JSONBOID,
		pgtype.DateOID, pgtype.TimeOID, pgtype.TimestampOID, pgtype.TimestamptzOID:
		return true
	}
	return false
}

// DecodeTextRow converts one row of text-protocol values into JSON: every
// non-null column becomes its text representation as a JSON string.
func DecodeTextRow(values []any) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = json.RawMessage("null")
			continue
		}
		raw, err := marshalString(textValue(v))
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return out, nil
}

func textValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func asTime(v any) (time.Time, error) {
	if t, ok := v.(time.Time); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("expected time.Time, got %T", v)
}

func marshal(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func marshalString(s string) (json.RawMessage, error) {
	return marshal(s)
}
