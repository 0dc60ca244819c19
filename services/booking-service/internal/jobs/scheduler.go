package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type Task func(ctx context.Context) error

type entry struct {
	name string
	spec string
	task Task
}

// Scheduler runs tasks on cron specs. A task still running when its next tick fires is
// skipped for that tick.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	entries []entry
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	l := cronLogger{logger: logger}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(l), cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l))),
		logger: logger,
	}
}

// Add registers task under spec (standard five fields or a descriptor such as "@every 1m").
func (s *Scheduler) Add(name, spec string, task Task) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("job %s: spec %q: %w", name, spec, err)
	}
	s.entries = append(s.entries, entry{name: name, spec: spec, task: task})
	return nil
}

// Run blocks until ctx is cancelled, then waits for running tasks to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, e := range s.entries {
		e := e
		if _, err := s.cron.AddFunc(e.spec, func() { s.run(ctx, e) }); err != nil {
			return fmt.Errorf("job %s: %w", e.name, err)
		}
	}
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) run(ctx context.Context, e entry) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := e.task(ctx); err != nil {
		s.logger.Error("job failed", "job", e.name, "err", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	s.logger.Debug("job finished", "job", e.name, "duration_ms", time.Since(start).Milliseconds())
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"err", err}, keysAndValues...)...)
}
