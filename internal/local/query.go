package local

import (
	"context"
	"database/sql"
	"fmt"
)

// Query is a raw SQL query with typed positional bindings. Supply bindings
// with Binding and execute by calling one of the four access patterns. Each
// access pattern runs the query independently from the start and guarantees
// the underlying cursor is released on every exit path, turning code like
//
//	rows, err := conn.QueryContext(ctx, sqlText, args...)
//	if err != nil { ... }
//	defer rows.Close()
//	for rows.Next() { ... }
//	return rows.Err()
//
// into
//
//	err := p.Query(sqlText).Binding(args...).ForEach(ctx, func(row local.Row) error { ... })
type Query struct {
	p    *Persistence
	sql  string
	args []any
}

// Binding uses the given values as positional parameters for the query,
// replacing any values bound previously. It returns the query for chaining.
func (q *Query) Binding(values ...BoundValue) *Query {
	q.args = bindArgs(values)
	return q
}

// Row is a read-only, column-indexed view over one result row. It is valid
// only inside the callback that receives it; the view is reused as the
// cursor advances.
type Row struct {
	values []any
}

// IsNull reports whether the column holds SQL NULL.
func (r Row) IsNull(col int) bool {
	return r.values[col] == nil
}

// Int64 returns the column as a 64-bit integer.
func (r Row) Int64(col int) int64 {
	switch v := r.values[col].(type) {
	case nil:
		return 0
	case int64:
		return v
	default:
		fail("column %d holds %T, want int64", col, v)
	}
	return 0
}

// Float64 returns the column as a double.
func (r Row) Float64(col int) float64 {
	switch v := r.values[col].(type) {
	case nil:
		return 0
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		fail("column %d holds %T, want float64", col, v)
	}
	return 0
}

// Text returns the column as a string.
func (r Row) Text(col int) string {
	switch v := r.values[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		fail("column %d holds %T, want text", col, v)
	}
	return ""
}

// Blob returns the column as a byte sequence. The returned slice is copied
// out of the driver's buffer, so it remains valid after the cursor advances.
func (r Row) Blob(col int) []byte {
	switch v := r.values[col].(type) {
	case nil:
		return nil
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return out
	case string:
		return []byte(v)
	default:
		fail("column %d holds %T, want blob", col, v)
	}
	return nil
}

// ForEach runs the query, calling fn once per row in result order. A nil
// error from every invocation iterates the full result; an error from fn
// stops iteration and is returned.
func (q *Query) ForEach(ctx context.Context, fn func(Row) error) error {
	rows, err := q.start(ctx)
	if err != nil {
		return err
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor cleanup

	row, scan, err := rowScanner(rows)
	if err != nil {
		return err
	}
	for rows.Next() {
		if err := scan(); err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// First runs the query, calling fn on the first row of the results if one
// exists. It returns the number of rows processed, either zero or one.
func (q *Query) First(ctx context.Context, fn func(Row) error) (int, error) {
	rows, err := q.start(ctx)
	if err != nil {
		return 0, err
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor cleanup

	if !rows.Next() {
		return 0, rows.Err()
	}
	row, scan, err := rowScanner(rows)
	if err != nil {
		return 0, err
	}
	if err := scan(); err != nil {
		return 0, err
	}
	if err := fn(row); err != nil {
		return 0, err
	}
	return 1, nil
}

// IsEmpty runs the query and reports whether it produced zero rows, without
// exposing any row to the caller.
func (q *Query) IsEmpty(ctx context.Context) (bool, error) {
	rows, err := q.start(ctx)
	if err != nil {
		return false, err
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor cleanup

	if rows.Next() {
		return false, nil
	}
	return true, rows.Err()
}

// FirstValue runs the query and applies fn to the first row if one exists.
// The second return value reports presence: false means the result was empty
// and fn was never invoked.
func FirstValue[T any](ctx context.Context, q *Query, fn func(Row) (T, error)) (T, bool, error) {
	var zero T

	rows, err := q.start(ctx)
	if err != nil {
		return zero, false, err
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor cleanup

	if !rows.Next() {
		return zero, false, rows.Err()
	}
	row, scan, err := rowScanner(rows)
	if err != nil {
		return zero, false, err
	}
	if err := scan(); err != nil {
		return zero, false, err
	}
	value, err := fn(row)
	if err != nil {
		return zero, false, err
	}
	return value, true, nil
}

// start issues a fresh execution of the query on the owning connection.
func (q *Query) start(ctx context.Context) (*sql.Rows, error) {
	rows, err := q.p.conn().QueryContext(ctx, q.sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// rowScanner prepares a reusable Row view and a scan function that fills it
// from the cursor's current position.
func rowScanner(rows *sql.Rows) (Row, func() error, error) {
	cols, err := rows.Columns()
	if err != nil {
		return Row{}, nil, fmt.Errorf("reading result columns: %w", err)
	}

	values := make([]any, len(cols))
	dests := make([]any, len(cols))
	for i := range values {
		dests[i] = &values[i]
	}

	scan := func() error {
		if err := rows.Scan(dests...); err != nil {
			return fmt.Errorf("scanning result row: %w", err)
		}
		return nil
	}
	return Row{values: values}, scan, nil
}
