// Package wrapper provides context-aware wrapper functions for the raw
// *pgx.Conn query methods the query engine drives.
//
// It enforces consistent context propagation across query execution by
// providing wrapper functions that:
//   - Require context as the first parameter
//   - Apply DefaultQueryTimeout when context has no deadline
//   - Return early if context is already done (Query and Exec)
//   - Preserve existing deadlines (never overwrite)
//
// Usage:
//
//	rows, err := wrapper.Query(ctx, conn.Raw(), "SELECT * FROM users")
package wrapper
