// Package queryengine normalizes, classifies, binds parameters for, and
// executes SQL text against a borrowed pool connection, wrapping Select
// statements for pagination and decoding rows into JSON-ready values.
package queryengine

import "encoding/json"

// Kind classifies a normalized statement.
type Kind int

const (
	KindSelect Kind = iota
	KindModifyData
	KindModifyStructure
	KindExplain
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindModifyData:
		return "modify_data"
	case KindModifyStructure:
		return "modify_structure"
	case KindExplain:
		return "explain"
	default:
		return "unknown"
	}
}

// QueryResultColumn describes one result column, carrying enough of the
// wire row description to drive both decoding and catalog enrichment.
type QueryResultColumn struct {
	Name        string `json:"name"`
	DataTypeOID uint32 `json:"data_type_oid"`
	TableOID    uint32 `json:"table_oid"`
	ColumnID    int16  `json:"column_id"`

	// Populated by enrichment, when available.
	Schema      string       `json:"schema,omitempty"`
	Table       string       `json:"table,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// ForeignKey is one outgoing foreign key from a result column's source
// table, discovered during enrichment.
type ForeignKey struct {
	ConstraintName string `json:"constraint_name"`
	SourceTable    string `json:"source_table"`
	SourceColumn   string `json:"source_column"`
	TargetTable    string `json:"target_table"`
	TargetColumn   string `json:"target_column"`
}

// Filter is one ANDed predicate appended to a paginated query. ColumnIdx
// disambiguates duplicate result column names (the same role Sort's
// ColumnIdx plays); Column is carried alongside it for the indexed CTE
// alias ("<idx>.<name>") and for callers that only know the name.
type Filter struct {
	ColumnIdx int             `json:"column_index"`
	Column    string          `json:"column_name"`
	Op        FilterOp        `json:"op"`
	Value     json.RawMessage `json:"value,omitempty"`
}

// FilterOp enumerates the supported filter comparators. Null and NotNull
// bind no parameter; Like and NotLike wrap the bound value as
// '%' || value || '%' with case-insensitive matching.
type FilterOp string

const (
	FilterEq      FilterOp = "eq"
	FilterNeq     FilterOp = "neq"
	FilterLike    FilterOp = "like"
	FilterNotLike FilterOp = "not_like"
	FilterNull    FilterOp = "null"
	FilterNotNull FilterOp = "not_null"
	FilterGt      FilterOp = "gt"
	FilterGte     FilterOp = "gte"
	FilterLt      FilterOp = "lt"
	FilterLte     FilterOp = "lte"
)

// Sort orders a paginated query's page by 1-based result column position,
// not by name, so duplicate result column names are unambiguous.
type Sort struct {
	ColumnIdx int  `json:"column_idx"`
	Desc      bool `json:"desc"`
}

// PreparedStatement is the result of Prepare: the result columns and
// parameter type OIDs of a normalized statement.
type PreparedStatement struct {
	SQL       string
	Kind      Kind
	Columns   []QueryResultColumn
	ParamOIDs []uint32
}

// QueryResult is the unwrapped result of Query, used internally for
// catalog round trips and for DML/DDL execution outcomes.
type QueryResult struct {
	Columns []QueryResultColumn `json:"columns"`
	Rows    [][]json.RawMessage `json:"rows"`

	// AffectedRows is set for ModifyData statements.
	AffectedRows *int64 `json:"affected_rows,omitempty"`
}

// PaginatedQueryResult is the tagged result of PaginatedQuery. Kind
// selects which of the variant fields are meaningful: Select carries the
// page of rows plus its counts and echoed sort, ModifyData carries
// AffectedRows, ModifyStructure carries nothing, and Explain carries the
// echoed query and its plan.
type PaginatedQueryResult struct {
	Kind Kind `json:"kind"`

	// Select variant.
	Columns    []QueryResultColumn `json:"columns,omitempty"`
	Rows       [][]json.RawMessage `json:"rows,omitempty"`
	Page       int                 `json:"page,omitempty"`
	PageSize   int                 `json:"page_size,omitempty"`
	PageCount  int                 `json:"page_count,omitempty"`
	TotalRows  int64               `json:"total_rows,omitempty"`
	TotalPages int64               `json:"total_pages,omitempty"`
	Sort       *Sort               `json:"sort,omitempty"`

	// ModifyData variant.
	AffectedRows *int64 `json:"affected_rows,omitempty"`

	// Explain variant.
	Query string          `json:"query,omitempty"`
	Plan  json.RawMessage `json:"plan,omitempty"`
}
