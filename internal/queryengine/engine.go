package queryengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	domainerrors "github.com/iruldev/dbcore/internal/domain/errors"
	"github.com/iruldev/dbcore/internal/infra/wrapper"
	"github.com/iruldev/dbcore/internal/poolcore"
)

// Engine drives prepare/bind/execute/decode against a borrowed connection.
// It holds no state of its own beyond a logger; the citext extension OID,
// which varies per database, is resolved and cached by each Connection.
type Engine struct {
	log *slog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(log *slog.Logger) *Engine {
	return &Engine{log: log}
}

// Prepare normalizes, classifies, and describes sql against conn, without
// executing it.
func (e *Engine) Prepare(ctx context.Context, conn *poolcore.Connection, sql string) (*PreparedStatement, error) {
	normalized, discarded := Normalize(sql)
	if discarded {
		e.log.Warn("query contained multiple statements; only the first is executed")
	}

	kind := Classify(normalized)

	psd, err := conn.Raw().Prepare(ctx, "", normalized)
	if err != nil {
		return nil, e.wrapError(err, 0)
	}

	columns := make([]QueryResultColumn, len(psd.Fields))
	for i, f := range psd.Fields {
		columns[i] = QueryResultColumn{
			Name:        string(f.Name),
			DataTypeOID: f.DataTypeOID,
			TableOID:    f.TableOID,
			ColumnID:    int16(f.TableAttributeNumber),
		}
	}

	return &PreparedStatement{
		SQL:       normalized,
		Kind:      kind,
		Columns:   columns,
		ParamOIDs: psd.ParamOIDs,
	}, nil
}

var tracer = otel.Tracer("queryengine")

// Query executes sql unwrapped with bound params, the path used
// internally by the catalog package and for DML/DDL execution.
func (e *Engine) Query(ctx context.Context, conn *poolcore.Connection, sql string, params []json.RawMessage) (*QueryResult, error) {
	ctx, span := tracer.Start(ctx, "queryengine.Query")
	defer span.End()

	prepared, err := e.Prepare(ctx, conn, sql)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("query.kind", prepared.Kind.String()))

	switch prepared.Kind {
	case KindModifyData, KindModifyStructure:
		return e.execDML(ctx, conn, prepared, params)
	case KindExplain:
		return e.execExplain(ctx, conn, prepared, params)
	default:
		return e.execSelect(ctx, conn, prepared, params)
	}
}

func (e *Engine) execDML(ctx context.Context, conn *poolcore.Connection, prepared *PreparedStatement, params []json.RawMessage) (*QueryResult, error) {
	bound, err := BindParams(prepared.ParamOIDs, conn.CitextOID(ctx), params)
	if err != nil {
		return nil, err
	}

	tag, err := wrapper.Exec(ctx, conn.Raw(), prepared.SQL, bound...)
	if err != nil {
		return nil, e.wrapError(err, 0)
	}

	if prepared.Kind == KindModifyStructure {
		return &QueryResult{}, nil
	}

	n := tag.RowsAffected()
	return &QueryResult{AffectedRows: &n}, nil
}

// execExplain executes the statement and serializes the plan: JSON output
// returns the first row's first column as the plan, TEXT output joins
// every row's first-column string with newlines. Any other first-column
// type is a programming error; EXPLAIN is expected to only ever emit one
// of those two shapes.
func (e *Engine) execExplain(ctx context.Context, conn *poolcore.Connection, prepared *PreparedStatement, params []json.RawMessage) (*QueryResult, error) {
	bound, err := BindParams(prepared.ParamOIDs, conn.CitextOID(ctx), params)
	if err != nil {
		return nil, err
	}

	rows, err := wrapper.Query(ctx, conn.Raw(), prepared.SQL, bound...)
	if err != nil {
		return nil, e.wrapError(err, 0)
	}
	defer rows.Close()

	var plan json.RawMessage
	var textLines []string
	isJSON := len(prepared.Columns) > 0 && (prepared.Columns[0].DataTypeOID == jsonOID || prepared.Columns[0].DataTypeOID == jsonbOID)

	first := true
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, e.wrapError(err, 0)
		}
		if len(values) == 0 {
			continue
		}
		if isJSON {
			if first {
				b, err := json.Marshal(values[0])
				if err != nil {
					return nil, err
				}
				plan = b
				first = false
			}
			continue
		}
		textLines = append(textLines, fmt.Sprint(values[0]))
	}
	if err := rows.Err(); err != nil {
		return nil, e.wrapError(err, 0)
	}

	if !isJSON {
		joined := ""
		for i, l := range textLines {
			if i > 0 {
				joined += "\n"
			}
			joined += l
		}
		b, err := json.Marshal(joined)
		if err != nil {
			return nil, err
		}
		plan = b
	}

	return &QueryResult{
		Columns: []QueryResultColumn{{Name: "plan"}, {Name: "query"}},
		Rows:    [][]json.RawMessage{{plan, mustMarshal(prepared.SQL)}},
	}, nil
}

func (e *Engine) execSelect(ctx context.Context, conn *poolcore.Connection, prepared *PreparedStatement, params []json.RawMessage) (*QueryResult, error) {
	citextOID := conn.CitextOID(ctx)
	if !ColumnsDecodable(prepared.Columns, citextOID) {
		if len(params) > 0 {
			return nil, domainerrors.NewDomain(domainerrors.CodeClientError,
				"parameters are not supported for queries whose results require text-protocol decoding")
		}
		return e.execSelectText(ctx, conn, prepared)
	}

	bound, err := BindParams(prepared.ParamOIDs, citextOID, params)
	if err != nil {
		return nil, err
	}

	rows, err := wrapper.Query(ctx, conn.Raw(), prepared.SQL, bound...)
	if err != nil {
		return nil, e.wrapError(err, 0)
	}
	defer rows.Close()

	oids := make([]uint32, len(prepared.Columns))
	for i, c := range prepared.Columns {
		oids[i] = c.DataTypeOID
	}

	var decodedRows [][]json.RawMessage
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, e.wrapError(err, 0)
		}
		decoded, err := DecodeRow(oids, citextOID, values)
		if err != nil {
			return nil, err
		}
		decodedRows = append(decodedRows, decoded)
	}
	if err := rows.Err(); err != nil {
		return nil, e.wrapError(err, 0)
	}

	return &QueryResult{Columns: prepared.Columns, Rows: decodedRows}, nil
}

// execSelectText is the fallback path for statements with a result column
// whose type has no typed decoding arm: the statement is re-issued over
// the simple (text) protocol, which carries no parameters, and every
// column decodes as its text value.
func (e *Engine) execSelectText(ctx context.Context, conn *poolcore.Connection, prepared *PreparedStatement) (*QueryResult, error) {
	rows, err := wrapper.Query(ctx, conn.Raw(), prepared.SQL, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return nil, e.wrapError(err, 0)
	}
	defer rows.Close()

	var decodedRows [][]json.RawMessage
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, e.wrapError(err, 0)
		}
		decoded, err := DecodeTextRow(values)
		if err != nil {
			return nil, err
		}
		decodedRows = append(decodedRows, decoded)
	}
	if err := rows.Err(); err != nil {
		return nil, e.wrapError(err, 0)
	}

	return &QueryResult{Columns: prepared.Columns, Rows: decodedRows}, nil
}

// PaginatedQuery classifies the statement and returns the matching result
// variant: DML returns affected rows, DDL an empty marker, EXPLAIN the
// serialized plan, and a Select is wrapped in the pagination CTE with the
// count and page queries issued in parallel. Filters reference columns by
// index plus name; sort is by 1-based column position.
func (e *Engine) PaginatedQuery(ctx context.Context, conn *poolcore.Connection, sql string, params []json.RawMessage, filters []Filter, page, pageSize int, sort *Sort) (*PaginatedQueryResult, error) {
	ctx, span := tracer.Start(ctx, "queryengine.PaginatedQuery")
	defer span.End()
	span.SetAttributes(attribute.Int("query.page", page), attribute.Int("query.page_size", pageSize))

	prepared, err := e.Prepare(ctx, conn, sql)
	if err != nil {
		return nil, err
	}

	switch prepared.Kind {
	case KindModifyData:
		res, err := e.execDML(ctx, conn, prepared, params)
		if err != nil {
			return nil, err
		}
		return &PaginatedQueryResult{Kind: KindModifyData, AffectedRows: res.AffectedRows}, nil

	case KindModifyStructure:
		if _, err := e.execDML(ctx, conn, prepared, params); err != nil {
			return nil, err
		}
		return &PaginatedQueryResult{Kind: KindModifyStructure}, nil

	case KindExplain:
		res, err := e.execExplain(ctx, conn, prepared, params)
		if err != nil {
			return nil, err
		}
		return &PaginatedQueryResult{Kind: KindExplain, Query: prepared.SQL, Plan: res.Rows[0][0]}, nil
	}

	citextOID := conn.CitextOID(ctx)
	bound, err := BindParams(prepared.ParamOIDs, citextOID, params)
	if err != nil {
		return nil, err
	}

	wrapped, userQueryOffset := wrapForPagination(prepared.SQL, prepared.Columns)

	filterClause, filterValues, err := buildFilterClause(filters, prepared.Columns, len(bound)+1)
	if err != nil {
		return nil, domainerrors.NewDomainWithCause(domainerrors.CodeClientError, "invalid filter", err)
	}
	allParams := append(append([]any{}, bound...), filterValues...)

	textFallback := !ColumnsDecodable(prepared.Columns, citextOID)
	if textFallback {
		if len(allParams) > 0 {
			return nil, domainerrors.NewDomain(domainerrors.CodeClientError,
				"parameters and filters are not supported for queries whose results require text-protocol decoding")
		}
		allParams = []any{pgx.QueryExecModeSimpleProtocol}
	}

	countSQL := countQuery(wrapped, filterClause)
	pageSQL := pageQuery(wrapped, filterClause, sort, page, pageSize)

	countPrefixLen := len("SELECT COUNT(*) FROM (") + userQueryOffset
	pagePrefixLen := len("SELECT * FROM (") + userQueryOffset

	var totalRows int64
	var pageValues [][]any
	var pageOIDs []uint32

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		row := wrapper.QueryRow(gctx, conn.Raw(), countSQL, allParams...)
		if err := row.Scan(&totalRows); err != nil {
			return e.wrapError(err, countPrefixLen)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := wrapper.Query(gctx, conn.Raw(), pageSQL, allParams...)
		if err != nil {
			return e.wrapError(err, pagePrefixLen)
		}
		defer rows.Close()

		fields := rows.FieldDescriptions()
		pageOIDs = make([]uint32, len(fields))
		for i, f := range fields {
			pageOIDs[i] = f.DataTypeOID
		}

		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return e.wrapError(err, pagePrefixLen)
			}
			pageValues = append(pageValues, values)
		}
		return rows.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	decodedRows := make([][]json.RawMessage, len(pageValues))
	for i, values := range pageValues {
		var decoded []json.RawMessage
		if textFallback {
			decoded, err = DecodeTextRow(values)
		} else {
			decoded, err = DecodeRow(pageOIDs, citextOID, values)
		}
		if err != nil {
			return nil, err
		}
		decodedRows[i] = decoded
	}

	return &PaginatedQueryResult{
		Kind:       KindSelect,
		Columns:    prepared.Columns,
		Rows:       decodedRows,
		Page:       page,
		PageSize:   pageSize,
		PageCount:  len(decodedRows),
		TotalRows:  totalRows,
		TotalPages: totalPages(totalRows, pageSize),
		Sort:       sort,
	}, nil
}

// wrapError converts a driver error into either a *PgError (with position
// adjusted by offset) or leaves non-server errors as plain text errors.
func (e *Engine) wrapError(err error, offset int) error {
	if pgErr, ok := asPgError(err); ok {
		return newPgError(pgErr, offset)
	}
	return err
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

const (
	jsonOID  = pgtype.JSONOID
	jsonbOID = pgtype.JSONBOID
)
