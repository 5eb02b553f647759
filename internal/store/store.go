package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/rosa/internal/datasource"
)

// pgUndefinedTable is the SQLSTATE for a missing relation.
const pgUndefinedTable = "42P01"

// tableDDL is the merged table layout; the staging table shares it.
const tableDDL = `
	CREATE TABLE IF NOT EXISTS %s (
		id           BIGSERIAL PRIMARY KEY,
		status       TEXT NOT NULL DEFAULT '',
		total_calls  INTEGER NOT NULL DEFAULT 0,
		first_name   TEXT NOT NULL DEFAULT '',
		last_name    TEXT NOT NULL DEFAULT '',
		phone_number TEXT NOT NULL DEFAULT '',
		email        TEXT NOT NULL DEFAULT '',
		extra        TEXT NOT NULL DEFAULT '',
		source_file  TEXT NOT NULL,
		import_date  TIMESTAMPTZ NOT NULL
	)`

var createTable = fmt.Sprintf(tableDDL, datasource.TableName)

const createMeta = `
	CREATE TABLE IF NOT EXISTS merged_data_meta (
		id          INTEGER PRIMARY KEY,
		modified_at TIMESTAMPTZ NOT NULL
	)`

var createIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_source_file ON merged_data(source_file)`,
	`CREATE INDEX IF NOT EXISTS idx_import_date ON merged_data(import_date)`,
}

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the merged table, its indexes and the metadata table if
// they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := append([]string{createTable, createMeta}, createIndexes...)
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// touch bumps the table version inside tx.
func touch(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO merged_data_meta (id, modified_at) VALUES (1, clock_timestamp())
		ON CONFLICT (id) DO UPDATE SET modified_at = clock_timestamp()`)
	if err != nil {
		return fmt.Errorf("touch meta: %w", err)
	}
	return nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable
}
