// Package scheduler runs the periodic maintenance jobs on a robfig/cron
// schedule. Each run gets its own timeout and never overlaps the previous one.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one maintenance task. The returned count is logged.
type Job func(ctx context.Context) (int64, error)

type Scheduler struct {
	c       *cron.Cron
	log     *slog.Logger
	timeout time.Duration
}

func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		c:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:     log,
		timeout: time.Minute,
	}
}

// Add registers job under spec ("@every 5m", "*/10 * * * *", ...).
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.c.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("scheduler: %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	start := time.Now()
	n, err := job(ctx)
	if err != nil {
		s.log.Error("scheduled job failed", "job", name, "err", err)
		return
	}
	s.log.Info("scheduled job done", "job", name, "affected", n, "took", time.Since(start))
}

func (s *Scheduler) Start() { s.c.Start() }

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Len reports the number of registered jobs.
func (s *Scheduler) Len() int { return len(s.c.Entries()) }
