package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/rosa/internal/config"
	"github.com/MikeSquared-Agency/rosa/internal/datasource"
	"github.com/MikeSquared-Agency/rosa/internal/ingest"
	"github.com/MikeSquared-Agency/rosa/internal/litestore"
	"github.com/MikeSquared-Agency/rosa/internal/slack"
	"github.com/MikeSquared-Agency/rosa/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	root := &cobra.Command{
		Use:           "rosa",
		Short:         "Contact export dashboard for merged call-center CSV exports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(cfg), ingestCmd(cfg), inspectCmd(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		slog.Error("rosa failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

// backend is the merged table the dashboard reads and ingestion rebuilds.
type backend struct {
	name   string
	source datasource.Source
	sink   datasource.Sink
	close  func()
}

// openBackend selects Postgres when DATABASE_URL is set, otherwise the
// SQLite file. With create, a missing SQLite file is acceptable and will be
// created by the first ingest.
func openBackend(ctx context.Context, cfg config.Config, create bool) (*backend, error) {
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		slog.Info("database connected", "backend", "postgres")
		return &backend{name: "postgres", source: db, sink: db, close: db.Close}, nil
	}

	path := litestore.ResolvePath(cfg.DBPath)
	open := litestore.Open
	if create {
		open = litestore.Connect
	}
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "backend", "sqlite", "path", db.Path())
	return &backend{
		name:   "sqlite",
		source: db,
		sink:   db,
		close:  func() { _ = db.Close() },
	}, nil
}

func newIngester(cfg config.Config, dir string, sink datasource.Sink) (*ingest.Ingester, error) {
	cols := ingest.DefaultColumns()
	if cfg.ColumnsFile != "" {
		var err error
		if cols, err = ingest.LoadColumnMap(cfg.ColumnsFile); err != nil {
			return nil, err
		}
	}
	return ingest.New(ingest.Config{
		Dir:       dir,
		Separator: cfg.CSVSeparator,
		Encoding:  cfg.CSVEncoding,
		Columns:   cols,
		StateFile: cfg.IngestState,
	}, sink, slog.Default()), nil
}

// reporter is where ingest summaries are posted.
type reporter interface {
	PostIngestReport(ctx context.Context, dir string, res *ingest.Result) error
}

// newReporter returns nil when Slack is not configured.
func newReporter(cfg config.Config) reporter {
	if cfg.SlackBotToken == "" || cfg.SlackChannel == "" {
		return nil
	}
	slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	return slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
}

func report(ctx context.Context, r reporter, dir string, res *ingest.Result) {
	if r == nil {
		return
	}
	if err := r.PostIngestReport(ctx, dir, res); err != nil {
		slog.Warn("failed to post ingest report", "error", err)
	}
}
