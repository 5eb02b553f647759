// Package litestore keeps the merged contact table in a single SQLite file.
//
// It is the default backend when no Postgres DATABASE_URL is configured and
// mirrors the store package's contract: the table version is the database
// file's modification time.
package litestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MikeSquared-Agency/rosa/internal/contact"
	"github.com/MikeSquared-Agency/rosa/internal/datasource"
)

// DefaultFile is the database file name looked up by ResolvePath.
const DefaultFile = "merged_data.db"

const tableDDL = `
	CREATE TABLE IF NOT EXISTS %s (
		status       TEXT NOT NULL DEFAULT '',
		total_calls  INTEGER NOT NULL DEFAULT 0,
		first_name   TEXT NOT NULL DEFAULT '',
		last_name    TEXT NOT NULL DEFAULT '',
		phone_number TEXT NOT NULL DEFAULT '',
		email        TEXT NOT NULL DEFAULT '',
		extra        TEXT NOT NULL DEFAULT '',
		source_file  TEXT NOT NULL,
		import_date  TEXT NOT NULL
	)`

var createTable = fmt.Sprintf(tableDDL, datasource.TableName)

var createIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_source_file ON merged_data(source_file)`,
	`CREATE INDEX IF NOT EXISTS idx_import_date ON merged_data(import_date)`,
}

var (
	_ datasource.Source = (*Store)(nil)
	_ datasource.Sink   = (*Store)(nil)
)

type Store struct {
	db   *sql.DB
	path string
}

// ResolvePath finds name in the working directory, then next to the
// executable's parent directory, then next to the executable. When none
// exists the working-directory path is returned so the caller reports it.
func ResolvePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	exe, err := os.Executable()
	if err != nil {
		return name
	}
	dir := filepath.Dir(exe)
	for _, candidate := range []string{
		filepath.Join(filepath.Dir(dir), name),
		filepath.Join(dir, name),
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return name
}

// Open opens an existing database file for reading. A missing file is
// reported as datasource.ErrSourceMissing.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("database %s: %w", path, datasource.ErrSourceMissing)
		}
		return nil, fmt.Errorf("stat database: %w", err)
	}
	return open(path)
}

// Create opens path for ingestion, creating the file if needed.
func Create(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}
	}
	s, err := open(path)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(createTable); err != nil {
		s.Close()
		return nil, fmt.Errorf("create merged_data: %w", err)
	}
	return s, nil
}

// Connect opens path without requiring it to exist. Reads report
// datasource.ErrSourceMissing until an ingest creates the table.
func Connect(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}
	}
	return open(path)
}

func open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps writes serialized.
	db.SetMaxOpenConns(1)
	_, _ = db.Exec("PRAGMA busy_timeout = 5000;")
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func loadErr(op string, err error) error {
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%s: %w", op, datasource.ErrSourceMissing)
	}
	return &datasource.LoadError{Op: op, Err: err}
}

// ─── Read side ───────────────────────────────────────────────────────────────

func (s *Store) Contacts(ctx context.Context) ([]contact.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, total_calls, first_name, last_name, phone_number, email, source_file
		FROM merged_data
		ORDER BY rowid`)
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

func (s *Store) Columns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `PRAGMA table_info(merged_data)`)
	if err != nil {
		return nil, loadErr("columns", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, loadErr("columns", err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, loadErr("columns", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("columns: %w", datasource.ErrSourceMissing)
	}
	return cols, nil
}

func (s *Store) Duplicates(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, col := range datasource.Columns {
		var n int
		err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
			SELECT COUNT(*) FROM (
				SELECT "%s" FROM merged_data GROUP BY "%s" HAVING COUNT(*) > 1
			)`, col, col)).Scan(&n)
		if err != nil {
			return nil, loadErr("duplicates "+col, err)
		}
		if n > 0 {
			out[col] = n
		}
	}
	return out, nil
}

func (s *Store) Statistics(ctx context.Context) (datasource.Statistics, error) {
	var st datasource.Statistics
	var first, last sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT source_file), MIN(import_date), MAX(import_date)
		FROM merged_data`).Scan(&st.TotalRecords, &st.UniqueSources, &first, &last)
	if err != nil {
		return st, loadErr("statistics", err)
	}
	if st.FirstImport, err = parseImportDate(first); err != nil {
		return st, loadErr("statistics", err)
	}
	if st.LastImport, err = parseImportDate(last); err != nil {
		return st, loadErr("statistics", err)
	}
	return st, nil
}

// Version is the database file's modification time.
func (s *Store) Version(context.Context) (time.Time, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, fmt.Errorf("database %s: %w", s.path, datasource.ErrSourceMissing)
		}
		return time.Time{}, loadErr("version", err)
	}
	return fi.ModTime().UTC(), nil
}

func parseImportDate(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(datasource.ImportDateLayout, v.String, time.Local)
	if err != nil {
		return nil, fmt.Errorf("parse import date %q: %w", v.String, err)
	}
	return &t, nil
}

// ─── Write side ──────────────────────────────────────────────────────────────

// Stage drops any leftover staging table and creates an empty one.
func (s *Store) Stage(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+datasource.StagingTableName); err != nil {
		return fmt.Errorf("drop %s: %w", datasource.StagingTableName, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(tableDDL, datasource.StagingTableName)); err != nil {
		return fmt.Errorf("create %s: %w", datasource.StagingTableName, err)
	}
	return tx.Commit()
}

// Append inserts rows into the staging table.
func (s *Store) Append(ctx context.Context, rows []datasource.Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, datasource.StagingTableName, strings.Join(datasource.Columns, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.Status, r.TotalCalls, r.FirstName, r.LastName,
			r.PhoneNumber, r.Email, r.Extra, r.SourceFile,
			r.ImportDate.Format(datasource.ImportDateLayout),
		)
		if err != nil {
			return fmt.Errorf("insert %s: %w", r.PhoneNumber, err)
		}
	}
	return tx.Commit()
}

// Publish replaces the merged table content with the deduplicated staging
// rows in one transaction, keeping the first inserted of each duplicate
// group, then drops the staging table.
func (s *Store) Publish(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createTable); err != nil {
		return 0, fmt.Errorf("create merged_data: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM merged_data`); err != nil {
		return 0, fmt.Errorf("clear merged_data: %w", err)
	}

	cols := strings.Join(datasource.Columns, ", ")
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO merged_data (%[1]s)
		SELECT %[1]s FROM %[2]s
		WHERE rowid IN (SELECT MIN(rowid) FROM %[2]s GROUP BY %[1]s)
		ORDER BY rowid`, cols, datasource.StagingTableName))
	if err != nil {
		return 0, fmt.Errorf("publish rows: %w", err)
	}
	total, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE `+datasource.StagingTableName); err != nil {
		return 0, fmt.Errorf("drop %s: %w", datasource.StagingTableName, err)
	}
	for _, stmt := range createIndexes {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("create index: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(total), nil
}
