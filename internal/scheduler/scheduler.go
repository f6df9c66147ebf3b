package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kazz187/urgentsync/pkg/clog"
	"github.com/kazz187/urgentsync/pkg/panicerr"
)

// Scheduler runs jobs on cron schedules in a fixed time zone. A run that is
// still going when its next tick comes is not started twice.
type Scheduler struct {
	cron *cron.Cron
	loc  *time.Location
	now  func() time.Time
	ctx  context.Context
	jobs []string
	ids  []cron.EntryID
}

func New(loc *time.Location) *Scheduler {
	logger := slogLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.SkipIfStillRunning(logger)),
		),
		loc: loc,
		now: time.Now,
		ctx: context.Background(),
	}
}

// Add registers fn under name. An empty spec leaves the job out.
func (s *Scheduler) Add(name, spec string, fn func(context.Context) error) error {
	if spec == "" {
		slog.Info("schedule disabled", "job", name)
		return nil
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	s.jobs = append(s.jobs, name)
	s.ids = append(s.ids, id)
	slog.Info("job scheduled", "job", name, "schedule", spec)
	return nil
}

// Jobs lists the registered job names.
func (s *Scheduler) Jobs() []string {
	return s.jobs
}

// Next returns the next activation of every job, in registration order and
// in the scheduler's zone. Specs without CRON_TZ are read in the zone of the
// time handed to them, so now is converted first.
func (s *Scheduler) Next() []time.Time {
	now := s.now().In(s.loc)
	out := make([]time.Time, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.cron.Entry(id).Schedule.Next(now))
	}
	return out
}

// Start runs the scheduler until ctx is done, then waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run(name string, fn func(context.Context) error) {
	ctx := clog.ContextForJob(s.ctx, name)
	start := time.Now()
	if err := panicerr.SafeContext(fn)(ctx); err != nil {
		clog.AddError(ctx, err)
		slog.ErrorContext(ctx, "scheduled job failed", "duration", time.Since(start))
		return
	}
	slog.InfoContext(ctx, "scheduled job finished", "duration", time.Since(start))
}

type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
