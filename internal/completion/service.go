package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kazz187/urgentsync/internal/channel"
	"github.com/kazz187/urgentsync/internal/metrics"
	"github.com/kazz187/urgentsync/internal/reconcile"
	"github.com/kazz187/urgentsync/internal/task"
	"github.com/kazz187/urgentsync/pkg/cerr"
)

const (
	ConfirmText = "✅ Task marked as complete in Notion!"
	FailureText = "❌ Failed to mark task as done. Please try again or update in Notion directly."
)

type State int

const (
	Open State = iota
	Done
)

func (s State) String() string {
	if s == Done {
		return "DONE"
	}
	return "OPEN"
}

// Action is a press of the done button.
type Action struct {
	TaskID    string
	UserID    string
	ChannelID string
	MessageTS string
	// MessageText is the summary line of the pressed message.
	MessageText string
}

type Result struct {
	TaskID string
	State  State
	Seed   task.Bucket
	// Deleted, Notified and Backfilled report the follow-up steps. Their
	// errors are in the matching *Err fields.
	Deleted     bool
	DeleteErr   error
	Notified    bool
	NotifyErr   error
	Backfilled  *task.Task
	BackfillErr error
}

type Backfiller interface {
	Backfill(ctx context.Context, seed task.Bucket, excludeID string) (*task.Task, error)
}

type Service struct {
	source     task.Source
	writer     *channel.Writer
	codec      *channel.Codec
	backfiller Backfiller
	metrics    *metrics.Metrics
}

func NewService(source task.Source, writer *channel.Writer, codec *channel.Codec, backfiller Backfiller, m *metrics.Metrics) *Service {
	return &Service{
		source:     source,
		writer:     writer,
		codec:      codec,
		backfiller: backfiller,
		metrics:    m,
	}
}

// Complete moves a task from OPEN to DONE. Only the first step, setting the
// done flag at the source, can fail the transition; the message delete, the
// confirmation and the backfill that follow are logged and never undo it.
func (s *Service) Complete(ctx context.Context, a Action) (*Result, error) {
	if a.TaskID == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "task id is required", nil)
	}
	res := &Result{TaskID: a.TaskID, State: Open}

	if err := s.source.MarkDone(ctx, a.TaskID); err != nil {
		s.metrics.Completions.WithLabelValues("failed").Inc()
		if nerr := s.writer.Notify(ctx, a.UserID, FailureText); nerr != nil {
			slog.ErrorContext(ctx, "failed to notify user of failure", "user", a.UserID, "error", nerr)
		}
		return res, fmt.Errorf("mark task %s done: %w", a.TaskID, err)
	}
	res.State = Done
	s.metrics.Completions.WithLabelValues("done").Inc()

	if err := s.writer.DeleteMessage(ctx, a.MessageTS); err != nil {
		res.DeleteErr = err
		s.metrics.ChannelErrors.WithLabelValues("delete").Inc()
		slog.WarnContext(ctx, "task is done but its message stays", "task_id", a.TaskID, "ts", a.MessageTS, "error", err)
	} else {
		res.Deleted = true
		s.metrics.Deleted.Inc()
	}

	if err := s.writer.Notify(ctx, a.UserID, ConfirmText); err != nil {
		res.NotifyErr = err
		s.metrics.ChannelErrors.WithLabelValues("ephemeral").Inc()
		slog.WarnContext(ctx, "failed to confirm completion", "user", a.UserID, "error", err)
	} else {
		res.Notified = true
	}

	res.Seed, _ = s.codec.DecodeText(a.MessageText)
	posted, err := s.backfiller.Backfill(ctx, res.Seed, a.TaskID)
	switch {
	case errors.Is(err, reconcile.ErrBusy):
		res.BackfillErr = err
		slog.InfoContext(ctx, "skipping backfill, channel is busy", "seed", res.Seed)
	case err != nil:
		res.BackfillErr = err
		slog.WarnContext(ctx, "backfill failed", "seed", res.Seed, "error", err)
	default:
		res.Backfilled = posted
	}

	slog.InfoContext(ctx, "task completed", "task_id", a.TaskID, "user", a.UserID, "deleted", res.Deleted, "backfilled", posted != nil)
	return res, nil
}
