package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/rosa/internal/api"
	"github.com/MikeSquared-Agency/rosa/internal/config"
	"github.com/MikeSquared-Agency/rosa/internal/datasource"
	"github.com/MikeSquared-Agency/rosa/internal/hermes"
	"github.com/MikeSquared-Agency/rosa/internal/ingest"
	"github.com/MikeSquared-Agency/rosa/internal/metrics"
	"github.com/MikeSquared-Agency/rosa/internal/session"
)

func serveCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	slog.Info("rosa starting", "port", cfg.Port)

	be, err := openBackend(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer be.close()

	m := metrics.New()
	cache := datasource.NewCache(be.source, slog.Default())
	sessions := session.NewManager(session.ParseResetPolicy(cfg.ResetPolicy), time.Now)

	// NATS/Hermes (optional, the dashboard works without events)
	var events hermes.Publisher
	var hermesClient *hermes.Client
	if cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(ctx, hermes.Options{
			URL:   cfg.NatsURL,
			Token: cfg.NatsToken,
			Name:  cfg.NatsName,
		}, slog.Default())
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer hermesClient.Close()
		events = hermesClient
		slog.Info("NATS connected", "url", cfg.NatsURL, "name", cfg.NatsName)
	} else {
		slog.Warn("NATS not configured, running without events")
	}

	in, err := newIngester(cfg, cfg.IngestDir, be.sink)
	if err != nil {
		return err
	}
	rep := newReporter(cfg)
	runIngest := ingestRunner(in.Dir(), in.Run, cache, m, events, rep)
	runIfChanged := ingestRunner(in.Dir(), in.RunIfChanged, cache, m, events, rep)
	trigger := func(ctx context.Context) {
		if _, err := runIfChanged(ctx); err != nil {
			slog.Error("ingest failed", "dir", in.Dir(), "error", err)
		}
	}

	if hermesClient != nil {
		if err := hermesClient.SubscribeIngestRequests(func(req hermes.IngestRequest) {
			slog.Info("ingest requested", "reason", req.Reason)
			go func() {
				if _, err := runIngest(ctx); err != nil {
					slog.Error("ingest failed", "dir", in.Dir(), "error", err)
				}
			}()
		}); err != nil {
			return err
		}
	}

	if cfg.IngestWatch {
		w, err := ingest.NewWatcher(in.Dir(), 0, trigger, slog.Default())
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	if cfg.IngestSchedule != "" {
		sched, err := ingest.NewScheduler(cfg.IngestSchedule, trigger, slog.Default())
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
		slog.Info("ingest scheduled", "schedule", cfg.IngestSchedule)
	}

	srv := api.NewServer(cfg.Port, api.Deps{
		Contacts:       cache,
		Source:         be.source,
		Sessions:       sessions,
		Metrics:        m,
		Events:         events,
		Logger:         slog.Default(),
		Ingest:         runIngest,
		Backend:        be.name,
		APIToken:       cfg.APIToken,
		DefaultLimit:   cfg.DefaultLimit,
		ExportFilename: cfg.ExportFilename,
	})
	go srv.ExpireSessions(ctx, cfg.SessionTTL, 0)
	if cfg.SessionTTL > 0 {
		slog.Info("idle sessions expire", "ttl", cfg.SessionTTL)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("rosa ready", "port", cfg.Port, "backend", be.name)

	// Graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	slog.Info("rosa stopped")
	return nil
}

// ingestRunner wraps an ingest run with cache invalidation, metrics and the
// completion event and report. A nil result from run means nothing changed.
func ingestRunner(dir string, run func(ctx context.Context) (*ingest.Result, error), cache *datasource.Cache, m *metrics.Metrics, events hermes.Publisher, rep reporter) func(ctx context.Context) (*ingest.Result, error) {
	return func(ctx context.Context) (*ingest.Result, error) {
		res, err := run(ctx)
		if err != nil {
			m.IngestRunsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		if res == nil {
			m.IngestRunsTotal.WithLabelValues("skipped").Inc()
			return nil, nil
		}
		cache.Invalidate()

		status := "ok"
		if res.Failed > 0 {
			status = "partial"
		}
		m.IngestRunsTotal.WithLabelValues(status).Inc()
		m.IngestDuration.Observe(res.Duration.Seconds())

		hermes.Notify(events, slog.Default(), hermes.SubjectIngestCompleted, hermes.IngestCompleted{
			Dir:           dir,
			Files:         len(res.Files),
			Failed:        res.Failed,
			RowsRead:      res.RowsRead,
			UniqueRecords: res.UniqueRecords,
			Timestamp:     time.Now().UTC(),
		})
		report(ctx, rep, dir, res)
		return res, nil
	}
}
