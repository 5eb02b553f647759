package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/rosa/internal/datasource"
)

var _ datasource.Sink = (*Store)(nil)

var copyColumns = []string{
	"status", "total_calls", "first_name", "last_name",
	"phone_number", "email", "extra", "source_file", "import_date",
}

// Stage drops any leftover staging table and creates an empty one. The
// merged table and its version are untouched.
func (s *Store) Stage(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS `+datasource.StagingTableName); err != nil {
		return fmt.Errorf("drop %s: %w", datasource.StagingTableName, err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(tableDDL, datasource.StagingTableName)); err != nil {
		return fmt.Errorf("create %s: %w", datasource.StagingTableName, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Append bulk-loads rows into the staging table with COPY.
func (s *Store) Append(ctx context.Context, rows []datasource.Row) error {
	if len(rows) == 0 {
		return nil
	}

	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{datasource.StagingTableName}, copyColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{
				r.Status, r.TotalCalls, r.FirstName, r.LastName,
				r.PhoneNumber, r.Email, r.Extra, r.SourceFile, r.ImportDate,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy rows: %w", err)
	}
	return nil
}

// Publish replaces the merged table content with the deduplicated staging
// rows, keeping the first inserted of each duplicate group. Readers block
// on the truncate and then see the new content once the transaction
// commits; they never observe an empty or partial table.
func (s *Store) Publish(ctx context.Context) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{createTable, createMeta} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("create merged_data: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, `TRUNCATE merged_data RESTART IDENTITY`); err != nil {
		return 0, fmt.Errorf("truncate merged_data: %w", err)
	}

	cols := strings.Join(copyColumns, ", ")
	tag, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO merged_data (%[1]s)
		SELECT %[1]s FROM %[2]s
		WHERE id IN (SELECT MIN(id) FROM %[2]s GROUP BY %[1]s)
		ORDER BY id`, cols, datasource.StagingTableName))
	if err != nil {
		return 0, fmt.Errorf("publish rows: %w", err)
	}
	if _, err := tx.Exec(ctx, `DROP TABLE `+datasource.StagingTableName); err != nil {
		return 0, fmt.Errorf("drop %s: %w", datasource.StagingTableName, err)
	}
	for _, stmt := range createIndexes {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("create index: %w", err)
		}
	}
	if err := touch(ctx, tx); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
