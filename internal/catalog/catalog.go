// Package catalog implements the Postgres-compatible catalog helpers the
// query engine exposes to the outer system (table/column/schema/database
// listing and DDL reconstruction) plus the two-round-trip column
// enrichment that resolves a paginated result's columns back to their
// source tables and outgoing foreign keys.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iruldev/dbcore/internal/infra/resilience"
	"github.com/iruldev/dbcore/internal/poolcore"
	"github.com/iruldev/dbcore/internal/queryengine"
)

// Catalog drives the fixed set of introspection queries against a
// borrowed connection via the query engine's unwrapped Query path.
//
// An enrichment pass runs behind three guards: bulkhead caps how many
// passes borrow connections for catalog traffic at once, breaker stops
// asking a database that keeps failing its catalog queries, and timeout
// bounds the pass tighter than the connection-level query timeout. Any
// guard may be nil, in which case that layer is skipped; a failed or
// rejected pass downgrades to an unenriched result, never a failed
// select.
type Catalog struct {
	engine   *queryengine.Engine
	breaker  resilience.CircuitBreaker
	bulkhead resilience.Bulkhead
	timeout  resilience.Timeout
	log      *slog.Logger
}

// New constructs a Catalog over engine.
func New(engine *queryengine.Engine, breaker resilience.CircuitBreaker, bulkhead resilience.Bulkhead, timeout resilience.Timeout, log *slog.Logger) *Catalog {
	return &Catalog{engine: engine, breaker: breaker, bulkhead: bulkhead, timeout: timeout, log: log}
}

// PaginatedQuery runs sql through the engine's pagination wrapping and
// then enriches the returned columns with their source table/column and
// outgoing foreign keys in two extra round trips. The engine alone cannot
// call Enrich (catalog depends on queryengine, not the reverse), so this
// package is where the two are wired together.
func (c *Catalog) PaginatedQuery(ctx context.Context, conn *poolcore.Connection, sql string, params []json.RawMessage, filters []queryengine.Filter, page, pageSize int, sort *queryengine.Sort) (*queryengine.PaginatedQueryResult, error) {
	result, err := c.engine.PaginatedQuery(ctx, conn, sql, params, filters, page, pageSize, sort)
	if err != nil {
		return nil, err
	}
	if result.Kind != queryengine.KindSelect {
		return result, nil
	}

	if err := c.enrich(ctx, conn, result.Columns); err != nil {
		c.log.Warn("column enrichment failed; returning unenriched result", "error", err)
		return result, nil
	}

	return result, nil
}

// enrich runs the two enrichment round trips through whichever guards
// are configured, bulkhead outermost so a queued pass does not hold a
// breaker slot or a running deadline while it waits.
func (c *Catalog) enrich(ctx context.Context, conn *poolcore.Connection, columns []queryengine.QueryResultColumn) error {
	pass := func(ctx context.Context) error {
		return Enrich(ctx, c.engine, conn, columns)
	}

	if c.timeout != nil {
		inner := pass
		pass = func(ctx context.Context) error {
			return c.timeout.Do(ctx, inner)
		}
	}
	if c.breaker != nil {
		inner := pass
		pass = func(ctx context.Context) error {
			_, err := c.breaker.Execute(ctx, func() (any, error) {
				return nil, inner(ctx)
			})
			return err
		}
	}
	if c.bulkhead != nil {
		return c.bulkhead.Do(ctx, pass)
	}
	return pass(ctx)
}

// ListSchemas returns every non-system schema name.
func (c *Catalog) ListSchemas(ctx context.Context, conn *poolcore.Connection) (*queryengine.QueryResult, error) {
	const sql = `
SELECT schema_name
FROM information_schema.schemata
WHERE schema_name NOT IN ('pg_catalog', 'information_schema')
  AND schema_name NOT LIKE 'pg_toast%'
ORDER BY schema_name`
	return c.engine.Query(ctx, conn, sql, nil)
}

// ListDatabases returns every non-template database name.
func (c *Catalog) ListDatabases(ctx context.Context, conn *poolcore.Connection) (*queryengine.QueryResult, error) {
	const sql = `
SELECT datname
FROM pg_database
WHERE datistemplate = false
ORDER BY datname`
	return c.engine.Query(ctx, conn, sql, nil)
}

// ListTables returns every base table and view in schema.
func (c *Catalog) ListTables(ctx context.Context, conn *poolcore.Connection, schema string) (*queryengine.QueryResult, error) {
	sql := fmt.Sprintf(`
SELECT table_name, table_type
FROM information_schema.tables
WHERE table_schema = %s
ORDER BY table_name`, quoteLiteral(schema))
	return c.engine.Query(ctx, conn, sql, nil)
}

// ListColumns returns every column of schema.table in ordinal order.
func (c *Catalog) ListColumns(ctx context.Context, conn *poolcore.Connection, schema, table string) (*queryengine.QueryResult, error) {
	sql := fmt.Sprintf(`
SELECT column_name, data_type, is_nullable, column_default,
       character_maximum_length, numeric_precision, numeric_scale
FROM information_schema.columns
WHERE table_schema = %s AND table_name = %s
ORDER BY ordinal_position`, quoteLiteral(schema), quoteLiteral(table))
	return c.engine.Query(ctx, conn, sql, nil)
}

// quoteLiteral renders s as a single-quoted SQL string literal, doubling
// embedded quotes. The catalog queries never accept external parameters
// for schema/table names (identifiers cannot be bound as query
// parameters), so this is the literal-escaping path rather than $N
// binding.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// columnRow is a decoded information_schema.columns row used by
// TableDDL.
type columnRow struct {
	Name         string
	DataType     string
	IsNullable   string
	Default      *string
	MaxLen       *int64
	NumPrecision *int64
	NumScale     *int64
}

// TableDDL reconstructs a CREATE TABLE statement for schema.table from
// information_schema.columns plus primary key and index metadata.
func (c *Catalog) TableDDL(ctx context.Context, conn *poolcore.Connection, schema, table string) (string, error) {
	colsResult, err := c.ListColumns(ctx, conn, schema, table)
	if err != nil {
		return "", err
	}

	indexSQL := fmt.Sprintf(`
SELECT indexname, indexdef
FROM pg_indexes
WHERE schemaname = %s AND tablename = %s
ORDER BY indexname`, quoteLiteral(schema), quoteLiteral(table))
	indexResult, err := c.engine.Query(ctx, conn, indexSQL, nil)
	if err != nil {
		return "", err
	}

	return renderTableDDL(schema, table, colsResult, indexResult)
}

// ViewDDL returns the stored view definition for schema.view.
func (c *Catalog) ViewDDL(ctx context.Context, conn *poolcore.Connection, schema, view string) (string, error) {
	sql := fmt.Sprintf(`SELECT pg_get_viewdef(%s::regclass, true)`, quoteLiteral(schema+"."+view))
	result, err := c.engine.Query(ctx, conn, sql, nil)
	if err != nil {
		return "", err
	}
	if len(result.Rows) == 0 {
		return "", fmt.Errorf("view %s.%s not found", schema, view)
	}
	var def string
	if err := json.Unmarshal(result.Rows[0][0], &def); err != nil {
		return "", err
	}
	return def, nil
}

func renderTableDDL(schema, table string, cols, indexes *queryengine.QueryResult) (string, error) {
	pkeyCols := make(map[string]bool)
	var indexLines []string
	for _, row := range indexes.Rows {
		var name, def string
		if err := json.Unmarshal(row[0], &name); err != nil {
			return "", err
		}
		if err := json.Unmarshal(row[1], &def); err != nil {
			return "", err
		}
		if strings.HasSuffix(name, "_pkey") {
			// The key columns are the parenthesized list at the end of
			// the index definition, e.g. "... USING btree (id)".
			open, closing := strings.LastIndex(def, "("), strings.LastIndex(def, ")")
			if open >= 0 && closing > open {
				for _, c := range strings.Split(def[open+1:closing], ",") {
					pkeyCols[strings.TrimSpace(c)] = true
				}
			}
			continue
		}
		indexLines = append(indexLines, def+";")
	}

	var lines []string
	for _, row := range cols.Rows {
		col, err := decodeColumnRow(row)
		if err != nil {
			return "", err
		}
		lines = append(lines, renderColumnLine(col, pkeyCols[col.Name]))
	}

	ddl := fmt.Sprintf("CREATE TABLE %s.%s (\n  %s\n);", schema, table, strings.Join(lines, ",\n  "))
	for _, idx := range indexLines {
		ddl += "\n" + idx
	}
	return ddl, nil
}

func decodeColumnRow(row []json.RawMessage) (columnRow, error) {
	var col columnRow
	if err := json.Unmarshal(row[0], &col.Name); err != nil {
		return col, err
	}
	if err := json.Unmarshal(row[1], &col.DataType); err != nil {
		return col, err
	}
	if err := json.Unmarshal(row[2], &col.IsNullable); err != nil {
		return col, err
	}
	if err := json.Unmarshal(row[3], &col.Default); err != nil {
		return col, err
	}
	if err := json.Unmarshal(row[4], &col.MaxLen); err != nil {
		return col, err
	}
	if err := json.Unmarshal(row[5], &col.NumPrecision); err != nil {
		return col, err
	}
	if err := json.Unmarshal(row[6], &col.NumScale); err != nil {
		return col, err
	}
	return col, nil
}

// renderColumnLine renders one column definition line:
// smallint/integer/bigint map to a bit-width suffix, other numeric types
// get a (precision, scale) suffix, character types with a max length get
// a (len) suffix, a primary-key column is suffixed PRIMARY KEY, and
// is_nullable = 'YES' produces NO "NOT NULL" while any other value
// appends "NOT NULL".
func renderColumnLine(col columnRow, isPrimaryKey bool) string {
	typ := col.DataType

	switch col.DataType {
	case "smallint":
		typ = "smallint(8)"
	case "integer":
		typ = "integer(16)"
	case "bigint":
		typ = "bigint(32)"
	case "numeric", "decimal":
		if col.NumPrecision != nil && col.NumScale != nil {
			typ = fmt.Sprintf("%s(%d, %d)", col.DataType, *col.NumPrecision, *col.NumScale)
		}
	case "character varying", "character", "varchar", "char":
		if col.MaxLen != nil {
			typ = fmt.Sprintf("%s(%d)", col.DataType, *col.MaxLen)
		}
	}

	line := fmt.Sprintf("%s %s", col.Name, typ)

	if isPrimaryKey {
		line += " PRIMARY KEY"
	}

	if col.IsNullable != "YES" {
		line += " NOT NULL"
	}

	if col.Default != nil {
		line += fmt.Sprintf(" DEFAULT %s", *col.Default)
	}

	return line
}
