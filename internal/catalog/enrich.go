package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/iruldev/dbcore/internal/poolcore"
	"github.com/iruldev/dbcore/internal/queryengine"
)

// Enrich resolves extended metadata for columns in exactly two round
// trips: the first joins pg_attribute/pg_class/pg_namespace for the
// distinct (table_oid, column_id) pairs present to recover
// (schema, table); the column's name in its source table is not fetched,
// and QueryResultColumn carries no field for it. The second queries
// pg_constraint for the
// distinct (schema, table) pairs obtained to recover every outgoing
// foreign key. Enrichment is skipped entirely if no column carries a
// table OID or column ID, a typical case for computed/aggregate
// columns, which have no source table to resolve.
func Enrich(ctx context.Context, engine *queryengine.Engine, conn *poolcore.Connection, columns []queryengine.QueryResultColumn) error {
	tableOIDs, columnIDs := distinctOIDsAndColumnIDs(columns)
	if len(tableOIDs) == 0 || len(columnIDs) == 0 {
		return nil
	}

	sourceByKey, err := resolveSourceTables(ctx, engine, conn, tableOIDs, columnIDs)
	if err != nil {
		return err
	}

	for i := range columns {
		key := sourceKey{tableOID: columns[i].TableOID, columnID: columns[i].ColumnID}
		src, ok := sourceByKey[key]
		if !ok {
			continue
		}
		columns[i].Schema = src.schema
		columns[i].Table = src.table
	}

	schemaTables := distinctSchemaTables(columns)
	if len(schemaTables) == 0 {
		return nil
	}

	fksByTable, err := resolveForeignKeys(ctx, engine, conn, schemaTables)
	if err != nil {
		return err
	}

	for i := range columns {
		if columns[i].Schema == "" || columns[i].Table == "" {
			continue
		}
		key := schemaTable{schema: columns[i].Schema, table: columns[i].Table}
		columns[i].ForeignKeys = fksByTable[key]
	}

	return nil
}

type sourceKey struct {
	tableOID uint32
	columnID int16
}

type sourceInfo struct {
	schema string
	table  string
}

type schemaTable struct {
	schema string
	table  string
}

func distinctOIDsAndColumnIDs(columns []queryengine.QueryResultColumn) ([]uint32, []int16) {
	oidSet := make(map[uint32]struct{})
	colSet := make(map[int16]struct{})
	for _, c := range columns {
		if c.TableOID == 0 {
			continue
		}
		oidSet[c.TableOID] = struct{}{}
		colSet[c.ColumnID] = struct{}{}
	}
	oids := make([]uint32, 0, len(oidSet))
	for o := range oidSet {
		oids = append(oids, o)
	}
	cols := make([]int16, 0, len(colSet))
	for c := range colSet {
		cols = append(cols, c)
	}
	return oids, cols
}

func distinctSchemaTables(columns []queryengine.QueryResultColumn) []schemaTable {
	set := make(map[schemaTable]struct{})
	for _, c := range columns {
		if c.Schema == "" || c.Table == "" {
			continue
		}
		set[schemaTable{schema: c.Schema, table: c.Table}] = struct{}{}
	}
	out := make([]schemaTable, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// resolveSourceTables is round 1: attrelid = ANY(...) AND attnum = ANY(...)
// against pg_attribute, joined to pg_class and pg_namespace. Over-fetching
// when column IDs collide across unrelated tables is acceptable: the
// final join back onto columns is keyed by the (table_oid, column_id)
// pair, so spurious rows here simply go unused.
//
// The OID and column-ID lists are internal state (protocol-derived, never
// user text), so they are rendered as integer array literals rather than
// routed through the parameter binder, whose coercion table covers
// scalar parameter types only, not arrays.
func resolveSourceTables(ctx context.Context, engine *queryengine.Engine, conn *poolcore.Connection, tableOIDs []uint32, columnIDs []int16) (map[sourceKey]sourceInfo, error) {
	sql := fmt.Sprintf(`
SELECT a.attrelid::int8, a.attnum, n.nspname, c.relname
FROM pg_attribute a
JOIN pg_class c ON c.oid = a.attrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE a.attrelid = ANY(%s) AND a.attnum = ANY(%s)`, uint32ArrayLiteral(tableOIDs), int16ArrayLiteral(columnIDs))

	result, err := engine.Query(ctx, conn, sql, nil)
	if err != nil {
		return nil, err
	}

	out := make(map[sourceKey]sourceInfo, len(result.Rows))
	for _, row := range result.Rows {
		var relid uint32
		var attnum int16
		var schema, table string
		if err := json.Unmarshal(row[0], &relid); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(row[1], &attnum); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(row[2], &schema); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(row[3], &table); err != nil {
			return nil, err
		}
		out[sourceKey{tableOID: relid, columnID: attnum}] = sourceInfo{schema: schema, table: table}
	}
	return out, nil
}

// resolveForeignKeys is round 2: for the distinct (schema, table) pairs,
// query pg_constraint with contype = 'f', unnesting conkey/confkey to
// produce one row per outgoing foreign key column.
func resolveForeignKeys(ctx context.Context, engine *queryengine.Engine, conn *poolcore.Connection, tables []schemaTable) (map[schemaTable][]queryengine.ForeignKey, error) {
	schemas := make([]string, len(tables))
	names := make([]string, len(tables))
	for i, t := range tables {
		schemas[i] = t.schema
		names[i] = t.table
	}

	sql := fmt.Sprintf(`
SELECT con.conname,
       src_ns.nspname AS src_schema, src_cls.relname AS src_table, src_att.attname AS src_column,
       tgt_ns.nspname AS tgt_schema, tgt_cls.relname AS tgt_table, tgt_att.attname AS tgt_column
FROM pg_constraint con
JOIN pg_class src_cls ON src_cls.oid = con.conrelid
JOIN pg_namespace src_ns ON src_ns.oid = src_cls.relnamespace
JOIN pg_class tgt_cls ON tgt_cls.oid = con.confrelid
JOIN pg_namespace tgt_ns ON tgt_ns.oid = tgt_cls.relnamespace
JOIN LATERAL unnest(con.conkey, con.confkey) AS cols(srcnum, tgtnum) ON true
JOIN pg_attribute src_att ON src_att.attrelid = con.conrelid AND src_att.attnum = cols.srcnum
JOIN pg_attribute tgt_att ON tgt_att.attrelid = con.confrelid AND tgt_att.attnum = cols.tgtnum
WHERE con.contype = 'f'
  AND src_ns.nspname = ANY(%s) AND src_cls.relname = ANY(%s)`, stringArrayLiteral(schemas), stringArrayLiteral(names))

	result, err := engine.Query(ctx, conn, sql, nil)
	if err != nil {
		return nil, err
	}

	out := make(map[schemaTable][]queryengine.ForeignKey)
	for _, row := range result.Rows {
		var fk queryengine.ForeignKey
		var srcSchema, srcTable string
		if err := json.Unmarshal(row[0], &fk.ConstraintName); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(row[1], &srcSchema); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(row[2], &srcTable); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(row[3], &fk.SourceColumn); err != nil {
			return nil, err
		}
		fk.SourceTable = srcTable
		if err := json.Unmarshal(row[4], new(string)); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(row[5], &fk.TargetTable); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(row[6], &fk.TargetColumn); err != nil {
			return nil, err
		}
		key := schemaTable{schema: srcSchema, table: srcTable}
		out[key] = append(out[key], fk)
	}
	return out, nil
}

// uint32ArrayLiteral renders a Postgres integer array literal, e.g.
// ARRAY[16401,16405]::oid[].
func uint32ArrayLiteral(vals []uint32) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return "ARRAY[" + strings.Join(parts, ",") + "]::oid[]"
}

// int16ArrayLiteral renders a Postgres smallint array literal.
func int16ArrayLiteral(vals []int16) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatInt(int64(v), 10)
	}
	return "ARRAY[" + strings.Join(parts, ",") + "]::smallint[]"
}

// stringArrayLiteral renders a Postgres text array literal with each
// element single-quote escaped.
func stringArrayLiteral(vals []string) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = quoteLiteral(v)
	}
	return "ARRAY[" + strings.Join(parts, ",") + "]::text[]"
}
