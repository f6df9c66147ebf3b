package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kazz187/urgentsync/internal/channel"
	"github.com/kazz187/urgentsync/internal/lease"
	"github.com/kazz187/urgentsync/internal/metrics"
	"github.com/kazz187/urgentsync/internal/task"
	"github.com/kazz187/urgentsync/pkg/cerr"
	"github.com/kazz187/urgentsync/pkg/clog"
)

// ErrBusy is returned by Backfill when another run holds the channel.
var ErrBusy = errors.New("channel is being reconciled by another run")

type Config struct {
	HorizonDays int
	Caps        Caps
	// Location decides which calendar day "today" is.
	Location  *time.Location
	LeaseWait time.Duration
}

type Service struct {
	source     task.Source
	normalizer *task.Normalizer
	reader     *channel.Reader
	writer     *channel.Writer
	leases     *lease.Manager
	metrics    *metrics.Metrics
	cfg        Config
	now        func() time.Time
}

func NewService(
	source task.Source,
	normalizer *task.Normalizer,
	reader *channel.Reader,
	writer *channel.Writer,
	leases *lease.Manager,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		source:     source,
		normalizer: normalizer,
		reader:     reader,
		writer:     writer,
		leases:     leases,
		metrics:    m,
		cfg:        cfg,
		now:        time.Now,
	}
}

// SetClock replaces the clock used to compute today.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) window(horizon int) task.Window {
	return task.Window{Today: task.DateOf(s.now().In(s.cfg.Location)), HorizonDays: horizon}
}

// collect queries the source and returns open tasks grouped and sorted.
func (s *Service) collect(ctx context.Context, w task.Window) (map[task.Bucket][]*task.Task, error) {
	p, err := s.source.Query(ctx, w)
	if err != nil {
		return nil, err
	}
	tasks := s.normalizer.NormalizeAll(p.All(), w)
	slog.DebugContext(ctx, "collected tasks", "overdue", len(p.Overdue), "due_today", len(p.DueToday), "upcoming", len(p.Upcoming), "kept", len(tasks))
	return task.GroupByBucket(tasks), nil
}

// Plan computes what a resync would post without touching the channel.
func (s *Service) Plan(ctx context.Context) ([]*task.Task, error) {
	groups, err := s.collect(ctx, s.window(s.cfg.HorizonDays))
	if err != nil {
		return nil, err
	}
	return Allocate(groups, s.cfg.Caps), nil
}

// Resync clears every bot message and reposts the allocation from scratch.
func (s *Service) Resync(ctx context.Context) (summary *Summary, err error) {
	start := time.Now()
	defer func() { s.observe("resync", start, err) }()

	l, err := s.leases.Acquire(ctx, "resync", s.cfg.LeaseWait)
	s.observeLease(err)
	if err != nil {
		return nil, err
	}
	ctx, done := s.hold(ctx, l)
	defer done(&err)

	summary = newSummary(s.now())
	cleared, err := s.writer.ClearBotMessages(ctx)
	if err != nil {
		// The channel may still hold old cards; posting goes on regardless.
		slog.WarnContext(ctx, "could not clear channel", "error", err)
	} else {
		summary.Deleted = cleared.Deleted
		s.metrics.Deleted.Add(float64(cleared.Deleted))
		s.metrics.ChannelErrors.WithLabelValues("delete").Add(float64(cleared.Failed))
	}

	groups, err := s.collect(ctx, s.window(s.cfg.HorizonDays))
	if err != nil {
		return nil, err
	}
	allocated := Allocate(groups, s.cfg.Caps)
	res, err := s.writer.PostAll(ctx, allocated)
	if err != nil {
		return nil, err
	}
	s.recordPosts(res)
	summary.add(res)
	clog.AddAttribute(ctx, "resync", map[string]any{"allocated": len(allocated), "posted": summary.TasksPosted, "deleted": summary.Deleted})
	slog.InfoContext(ctx, "resync completed", "posted", summary.TasksPosted, "failed", summary.Failed, "deleted", summary.Deleted)
	return summary, nil
}

// Backfill posts at most one task after a completion freed a slot of seed.
// It does not wait for the lease: a concurrent resync repopulates the channel
// anyway, so ErrBusy is returned instead.
func (s *Service) Backfill(ctx context.Context, seed task.Bucket, excludeID string) (posted *task.Task, err error) {
	start := time.Now()
	defer func() { s.observe("backfill", start, err) }()

	l, err := s.leases.TryAcquire(ctx, "backfill")
	s.observeLease(err)
	if errors.Is(err, lease.ErrHeld) {
		return nil, fmt.Errorf("%w: %w", ErrBusy, err)
	}
	if err != nil {
		return nil, err
	}
	ctx, done := s.hold(ctx, l)
	defer done(&err)

	state, err := s.reader.CurrentState(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := s.collect(ctx, s.window(s.cfg.HorizonDays))
	if err != nil {
		return nil, err
	}
	t := PlanBackfill(groups, state, seed, excludeID, s.cfg.Caps)
	if t == nil {
		slog.InfoContext(ctx, "no task to backfill", "seed", seed)
		return nil, nil
	}
	if _, err := s.writer.PostTask(ctx, t); err != nil {
		s.metrics.ChannelErrors.WithLabelValues("post").Inc()
		return nil, cerr.NewError(cerr.Unavailable, "failed to post backfill task", err)
	}
	s.metrics.TasksPosted.WithLabelValues(string(t.Recipient.Bucket), t.Urgency.String()).Inc()
	slog.InfoContext(ctx, "backfilled task", "seed", seed, "task_id", t.ID, "bucket", t.Recipient.Bucket)
	return t, nil
}

// TopUp posts new urgent tasks into free slots without clearing the channel.
func (s *Service) TopUp(ctx context.Context) (summary *Summary, err error) {
	start := time.Now()
	defer func() { s.observe("topup", start, err) }()

	l, err := s.leases.Acquire(ctx, "topup", s.cfg.LeaseWait)
	s.observeLease(err)
	if err != nil {
		return nil, err
	}
	ctx, done := s.hold(ctx, l)
	defer done(&err)

	state, err := s.reader.CurrentState(ctx)
	if err != nil {
		return nil, err
	}
	// Urgent tasks only, so the upcoming range can be empty.
	groups, err := s.collect(ctx, s.window(0))
	if err != nil {
		return nil, err
	}
	res, err := s.writer.PostAll(ctx, PlanTopUp(groups, state, s.cfg.Caps))
	if err != nil {
		return nil, err
	}
	s.recordPosts(res)
	summary = newSummary(s.now())
	summary.add(res)
	if summary.TasksPosted == 0 {
		summary.Message = "No new urgent tasks found"
	} else {
		summary.Message = "Webhook processed successfully"
	}
	slog.InfoContext(ctx, "top-up completed", "posted", summary.TasksPosted, "failed", summary.Failed)
	return summary, nil
}

// Cleanup runs the administrative channel cleanup under the lease.
func (s *Service) Cleanup(ctx context.Context) (stats *channel.CleanupStats, err error) {
	start := time.Now()
	defer func() { s.observe("cleanup", start, err) }()

	l, err := s.leases.Acquire(ctx, "cleanup", s.cfg.LeaseWait)
	s.observeLease(err)
	if err != nil {
		return nil, err
	}
	ctx, done := s.hold(ctx, l)
	defer done(&err)

	stats, err = s.writer.Cleanup(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.Deleted.Add(float64(stats.Deleted))
	s.metrics.ChannelErrors.WithLabelValues("delete").Add(float64(stats.Failed))
	slog.InfoContext(ctx, "cleanup completed", "deleted", stats.Deleted, "failed", stats.Failed, "skipped", stats.Skipped)
	return stats, nil
}

// hold keeps l alive for the rest of the run. The returned context is
// cancelled if another run takes the lease over; done releases it and, in
// that case, reports the takeover instead of the cancellation.
func (s *Service) hold(ctx context.Context, l *lease.Lease) (context.Context, func(*error)) {
	runCtx := l.KeepAlive(ctx)
	return runCtx, func(errp *error) {
		s.release(ctx, l)
		if *errp == nil {
			return
		}
		if cause := context.Cause(runCtx); errors.Is(cause, lease.ErrLost) {
			*errp = cause
		}
	}
}

func (s *Service) release(ctx context.Context, l *lease.Lease) {
	// The run's context may be done; the lease still has to go.
	if err := l.Release(context.WithoutCancel(ctx)); err != nil {
		slog.ErrorContext(ctx, "failed to release lease", "holder", l.Holder(), "error", err)
	}
}

func (s *Service) recordPosts(res *channel.PostResult) {
	for _, t := range res.Posted {
		s.metrics.TasksPosted.WithLabelValues(string(t.Recipient.Bucket), t.Urgency.String()).Inc()
	}
	s.metrics.ChannelErrors.WithLabelValues("post").Add(float64(res.Failed))
}

func (s *Service) observe(kind string, start time.Time, err error) {
	s.metrics.ObserveRun(kind, start, err)
}

func (s *Service) observeLease(err error) {
	switch {
	case err == nil:
		s.metrics.LeaseWaits.WithLabelValues("acquired").Inc()
	case errors.Is(err, lease.ErrHeld):
		s.metrics.LeaseWaits.WithLabelValues("busy").Inc()
	default:
		s.metrics.LeaseWaits.WithLabelValues("error").Inc()
	}
}
