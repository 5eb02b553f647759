package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/rosa/internal/contact"
	"github.com/MikeSquared-Agency/rosa/internal/datasource"
)

var _ datasource.Source = (*Store)(nil)

// loadErr classifies a read failure: a missing table becomes
// ErrSourceMissing, anything else a LoadError.
func loadErr(op string, err error) error {
	if isUndefinedTable(err) {
		return fmt.Errorf("%s: %w", op, datasource.ErrSourceMissing)
	}
	return &datasource.LoadError{Op: op, Err: err}
}

// Contacts returns every merged row in insertion order.
func (s *Store) Contacts(ctx context.Context) ([]contact.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, total_calls, first_name, last_name, phone_number, email, source_file
		FROM merged_data
		ORDER BY id`)
	if err != nil {
		return nil, loadErr("contacts", err)
	}
	defer rows.Close()

	var out []contact.Record
	for rows.Next() {
		var r contact.Record
		if err := rows.Scan(&r.Status, &r.TotalCalls, &r.FirstName, &r.LastName, &r.PhoneNumber, &r.Email, &r.SourceFile); err != nil {
			return nil, loadErr("contacts", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, loadErr("contacts", err)
	}
	return out, nil
}

// Columns returns the merged table's column names in table order.
func (s *Store) Columns(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`, datasource.TableName)
	if err != nil {
		return nil, loadErr("columns", err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, loadErr("columns", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("columns: %w", datasource.ErrSourceMissing)
	}
	return cols, nil
}

// Duplicates counts, per data column, the values shared by more than one row.
func (s *Store) Duplicates(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, col := range datasource.Columns {
		ident := pgx.Identifier{col}.Sanitize()
		var n int
		err := s.pool.QueryRow(ctx, fmt.Sprintf(`
			SELECT COUNT(*) FROM (
				SELECT %s FROM merged_data GROUP BY %s HAVING COUNT(*) > 1
			) d`, ident, ident)).Scan(&n)
		if err != nil {
			return nil, loadErr("duplicates "+col, err)
		}
		if n > 0 {
			out[col] = n
		}
	}
	return out, nil
}

// Statistics reports row count, distinct sources and the import date range.
func (s *Store) Statistics(ctx context.Context) (datasource.Statistics, error) {
	var st datasource.Statistics
	var first, last *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT source_file), MIN(import_date), MAX(import_date)
		FROM merged_data`).Scan(&st.TotalRecords, &st.UniqueSources, &first, &last)
	if err != nil {
		return st, loadErr("statistics", err)
	}
	st.FirstImport = utcPtr(first)
	st.LastImport = utcPtr(last)
	return st, nil
}

// Version returns the last time the merged table was written.
func (s *Store) Version(ctx context.Context) (time.Time, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx, `SELECT modified_at FROM merged_data_meta WHERE id = 1`).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("version: %w", datasource.ErrSourceMissing)
	}
	if err != nil {
		return time.Time{}, loadErr("version", err)
	}
	return ts.UTC(), nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
