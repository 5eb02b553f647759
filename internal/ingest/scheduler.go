package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a job on a standard five-field cron expression
// (descriptors such as "@hourly" are accepted too).
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

func NewScheduler(expr string, job func(ctx context.Context), logger *slog.Logger) (*Scheduler, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid ingest schedule %q: %w", expr, err)
	}

	c := cron.New()
	c.Schedule(sched, cron.FuncJob(func() {
		logger.Info("scheduled ingest triggered", "schedule", expr)
		job(context.Background())
	}))
	return &Scheduler{cron: c, logger: logger}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Entries returns the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
