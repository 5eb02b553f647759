// Package datasource defines how the dashboard reads the merged contact
// table and how ingestion writes it, independent of the backing database.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/rosa/internal/contact"
)

// TableName is the merged contact table.
const TableName = "merged_data"

// ErrSourceMissing means the backing table or database file cannot be found.
var ErrSourceMissing = errors.New("data source not found")

// LoadError wraps any failure while reading the merged table.
type LoadError struct {
	Op  string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Op, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Statistics summarises the merged table.
type Statistics struct {
	TotalRecords  int        `json:"total_records"`
	UniqueSources int        `json:"unique_sources"`
	FirstImport   *time.Time `json:"first_import,omitempty"`
	LastImport    *time.Time `json:"last_import,omitempty"`
}

// Row is one ingested contact with its import timestamp.
type Row struct {
	contact.Record
	// Extra holds the CSV fields that map to no contact column as a JSON
	// object keyed by header, or "" when there are none.
	Extra      string
	ImportDate time.Time
}

// Source is the read side of the merged table.
type Source interface {
	Contacts(ctx context.Context) ([]contact.Record, error)
	Columns(ctx context.Context) ([]string, error)
	// Duplicates maps a column name to the number of values that occur
	// more than once in it. Columns without duplicates are omitted.
	Duplicates(ctx context.Context) (map[string]int, error)
	Statistics(ctx context.Context) (Statistics, error)
	// Version changes whenever the table content changes.
	Version(ctx context.Context) (time.Time, error)
}

// Sink is the write side used by ingestion. A rebuild goes into a staging
// table so readers keep seeing the previous merged table until Publish.
type Sink interface {
	// Stage drops any leftover staging table and creates an empty one.
	Stage(ctx context.Context) error
	// Append adds rows to the staging table.
	Append(ctx context.Context, rows []Row) error
	// Publish removes exact-duplicate rows from the staging table and
	// swaps it in as the merged table in a single transaction. It returns
	// the published row count.
	Publish(ctx context.Context) (int, error)
}

// StagingTableName is where a rebuild is written before Publish.
const StagingTableName = TableName + "_staging"

// Columns lists the merged table columns in table order.
var Columns = []string{
	"status",
	"total_calls",
	"first_name",
	"last_name",
	"phone_number",
	"email",
	"extra",
	"source_file",
	"import_date",
}

// ImportDateLayout is how import timestamps are stored as text.
const ImportDateLayout = "2006-01-02 15:04:05"
