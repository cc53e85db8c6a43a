package queryengine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// wrapForPagination builds the pagination CTE envelope: column
// names inside the CTE are "<index>.<original name>" (embedded double
// quotes doubled), outer aliases restore the original names. It returns
// the wrapped SQL plus the character offset from the start of the wrapped
// text to the start of the embedded user query, which the caller uses to
// adjust any server-reported error position back into the user's text.
func wrapForPagination(userSQL string, columns []QueryResultColumn) (wrapped string, userQueryOffset int) {
	var b strings.Builder
	b.WriteString("WITH q(")
	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(fmt.Sprintf("%d.%s", i, col.Name)))
	}
	b.WriteString(") AS (\n")

	offset := b.Len()
	b.WriteString(userSQL)
	b.WriteString("\n)\nSELECT ")

	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(fmt.Sprintf("%d.%s", i, col.Name)))
		b.WriteString(" AS ")
		b.WriteString(quoteIdent(col.Name))
	}
	b.WriteString("\nFROM q")

	return b.String(), offset
}

// quoteIdent double-quotes a SQL identifier, doubling any embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// buildFilterClause renders the WHERE clause ANDing every filter,
// referencing the CTE's indexed column names by each filter's own
// column_index (not a name lookup, since result columns may repeat names),
// with filter values appended as parameters starting at $<firstParamIdx>.
// null/not_null filters bind no parameter. It returns the clause (empty
// if there are no filters) and the filter parameter values in order.
func buildFilterClause(filters []Filter, columns []QueryResultColumn, firstParamIdx int) (clause string, values []any, err error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	var terms []string
	paramIdx := firstParamIdx
	for _, f := range filters {
		if f.ColumnIdx < 0 || f.ColumnIdx >= len(columns) {
			return "", nil, fmt.Errorf("unknown filter column index %d", f.ColumnIdx)
		}
		indexed := quoteIdent(fmt.Sprintf("%d.%s", f.ColumnIdx, f.Column))

		switch f.Op {
		case FilterNull:
			terms = append(terms, indexed+" IS NULL")

		case FilterNotNull:
			terms = append(terms, indexed+" IS NOT NULL")

		case FilterLike, FilterNotLike:
			var s string
			if err := unmarshalFilterValue(f.Value, &s); err != nil {
				return "", nil, err
			}
			op := "ILIKE"
			if f.Op == FilterNotLike {
				op = "NOT ILIKE"
			}
			terms = append(terms, fmt.Sprintf("%s %s CONCAT('%%', $%d::text, '%%')", indexed, op, paramIdx))
			values = append(values, s)
			paramIdx++

		default:
			sqlOp, ok := comparatorFor(f.Op)
			if !ok {
				return "", nil, fmt.Errorf("unsupported filter operator %q", f.Op)
			}
			var v any
			if err := unmarshalFilterValue(f.Value, &v); err != nil {
				return "", nil, err
			}
			terms = append(terms, fmt.Sprintf("%s %s $%d", indexed, sqlOp, paramIdx))
			values = append(values, v)
			paramIdx++
		}
	}

	return " WHERE " + strings.Join(terms, " AND "), values, nil
}

func comparatorFor(op FilterOp) (string, bool) {
	switch op {
	case FilterEq:
		return "=", true
	case FilterNeq:
		return "<>", true
	case FilterGt:
		return ">", true
	case FilterGte:
		return ">=", true
	case FilterLt:
		return "<", true
	case FilterLte:
		return "<=", true
	default:
		return "", false
	}
}

func unmarshalFilterValue(raw []byte, target any) error {
	return json.Unmarshal(raw, target)
}

// countQuery wraps the already-wrapped Select for a row count.
func countQuery(wrapped, filterClause string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM (%s%s) _", wrapped, filterClause)
}

// pageQuery wraps the already-wrapped Select for the requested page. When
// pageSize < 0 the LIMIT/OFFSET clause is omitted and the entire result
// set is returned (the caller reports total_pages = 1 in that case).
// Ordering is by 1-based SQL column position, not by name, to permit
// duplicate result column names.
func pageQuery(wrapped, filterClause string, sort *Sort, page, pageSize int) string {
	q := fmt.Sprintf("SELECT * FROM (%s%s) _", wrapped, filterClause)

	if sort != nil {
		dir := "ASC"
		if sort.Desc {
			dir = "DESC"
		}
		q += fmt.Sprintf(" ORDER BY %d %s", sort.ColumnIdx+1, dir)
	}

	if pageSize >= 0 {
		offset := (page - 1) * pageSize
		q += fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, offset)
	}

	return q
}

// totalPages computes ceil(totalRows / pageSize), returning 1 when
// pageSize < 0 (the unbounded case returns everything on one page).
func totalPages(totalRows int64, pageSize int) int64 {
	if pageSize < 0 {
		return 1
	}
	if pageSize == 0 {
		return 0
	}
	pages := totalRows / int64(pageSize)
	if totalRows%int64(pageSize) != 0 {
		pages++
	}
	return pages
}
