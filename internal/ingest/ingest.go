// Package ingest merges a directory of CSV exports into the contact table.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/rosa/internal/datasource"
)

// Config holds the ingestion settings.
type Config struct {
	Dir         string
	Separator   rune
	Encoding    string
	Columns     ColumnMap
	Concurrency int    // files parsed in parallel
	StateFile   string // where the last run's file list is kept; empty keeps it in memory
}

// FileResult reports one CSV file of a run.
type FileResult struct {
	Name  string `json:"name"`
	Rows  int    `json:"rows"`
	Error string `json:"error,omitempty"`
}

// Result summarises an ingestion run.
type Result struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Files         []FileResult  `json:"files"`
	Failed        int           `json:"failed"`
	RowsRead      int           `json:"rows_read"`
	UniqueRecords int           `json:"unique_records"`
}

// Ingester rebuilds the merged table from the CSV files in a directory.
// Runs are serialized.
type Ingester struct {
	cfg    Config
	sink   datasource.Sink
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	state *State
}

func New(cfg Config, sink datasource.Sink, logger *slog.Logger) *Ingester {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.Columns.PhoneNumber == "" {
		cfg.Columns = DefaultColumns()
	}
	state, err := LoadState(cfg.StateFile)
	if err != nil {
		logger.Warn("ingest state unreadable, starting fresh", "path", cfg.StateFile, "error", err)
		state = &State{path: cfg.StateFile}
	}
	return &Ingester{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		now:    time.Now,
		state:  state,
	}
}

// Dir returns the directory scanned for exports.
func (in *Ingester) Dir() string {
	return in.cfg.Dir
}

type parsed struct {
	rows []datasource.Row
	err  error
}

// Run rebuilds the merged table from every *.csv file in the directory.
// Rows are staged and published in one step, so readers see the previous
// table until the run completes. A file that fails to parse or load is
// reported in the result and skipped; the run itself fails only when the
// table cannot be rebuilt.
func (in *Ingester) Run(ctx context.Context) (*Result, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	files, err := in.files()
	if err != nil {
		return nil, err
	}
	return in.run(ctx, files)
}

// RunIfChanged runs only when CSV files were added, removed or modified
// since the last successful run. It returns a nil result when skipped.
func (in *Ingester) RunIfChanged(ctx context.Context) (*Result, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	files, err := in.files()
	if err != nil {
		return nil, err
	}
	current, err := stamps(files)
	if err != nil {
		return nil, err
	}
	if !in.state.Changed(current) {
		in.logger.Debug("ingest skipped, no changes", "dir", in.cfg.Dir)
		return nil, nil
	}
	return in.run(ctx, files)
}

func (in *Ingester) files() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(in.cfg.Dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("glob csv files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func (in *Ingester) run(ctx context.Context, files []string) (*Result, error) {
	started := in.now()
	current, err := stamps(files)
	if err != nil {
		return nil, err
	}
	in.logger.Info("ingest starting", "dir", in.cfg.Dir, "files", len(files))

	results := make([]parsed, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.cfg.Concurrency)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows, err := ReadFile(path, ReadOptions{
				Separator:  in.cfg.Separator,
				Encoding:   in.cfg.Encoding,
				Columns:    in.cfg.Columns,
				ImportDate: in.now(),
			})
			results[i] = parsed{rows: rows, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parse files: %w", err)
	}

	if err := in.sink.Stage(ctx); err != nil {
		return nil, fmt.Errorf("stage table: %w", err)
	}

	res := &Result{StartedAt: started.UTC()}
	for i, path := range files {
		fr := FileResult{Name: filepath.Base(path)}
		p := results[i]
		if p.err == nil {
			p.err = in.sink.Append(ctx, p.rows)
		}
		if p.err != nil {
			fr.Error = p.err.Error()
			res.Failed++
			in.logger.Warn("failed to ingest file", "file", fr.Name, "error", p.err)
		} else {
			fr.Rows = len(p.rows)
			res.RowsRead += fr.Rows
			in.logger.Info("file ingested", "file", fr.Name, "rows", fr.Rows)
		}
		res.Files = append(res.Files, fr)
	}

	total, err := in.sink.Publish(ctx)
	if err != nil {
		return nil, fmt.Errorf("publish table: %w", err)
	}
	res.UniqueRecords = total
	res.Duration = in.now().Sub(started)

	if err := in.state.Record(started, current); err != nil {
		in.logger.Warn("failed to save ingest state", "path", in.cfg.StateFile, "error", err)
	}

	in.logger.Info("ingest complete",
		"files", len(files),
		"failed", res.Failed,
		"rows_read", res.RowsRead,
		"unique_records", res.UniqueRecords,
	)
	return res, nil
}
