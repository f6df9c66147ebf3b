package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kazz187/urgentsync/internal/task"
	"github.com/kazz187/urgentsync/pkg/cerr"
)

const (
	CleanupPageLimit = 1000
	CleanupMaxPages  = 10
	// HumanMessageMaxAge is how long cleanup leaves human messages alone.
	HumanMessageMaxAge = 24 * time.Hour
)

type Writer struct {
	client          Client
	codec           *Codec
	postInterval    time.Duration
	deleteInterval  time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

type WriterOption func(*Writer)

func WithPostInterval(d time.Duration) WriterOption {
	return func(w *Writer) { w.postInterval = d }
}

func WithDeleteInterval(d time.Duration) WriterOption {
	return func(w *Writer) { w.deleteInterval = d }
}

func WithCleanupInterval(d time.Duration) WriterOption {
	return func(w *Writer) { w.cleanupInterval = d }
}

func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

func NewWriter(client Client, codec *Codec, opts ...WriterOption) *Writer {
	w := &Writer{
		client:          client,
		codec:           codec,
		postInterval:    100 * time.Millisecond,
		deleteInterval:  50 * time.Millisecond,
		cleanupInterval: 200 * time.Millisecond,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// PostTask posts one task message and returns its timestamp.
func (w *Writer) PostTask(ctx context.Context, t *task.Task) (string, error) {
	ts, err := w.client.Post(ctx, w.codec.Encode(t))
	if err != nil {
		return "", fmt.Errorf("post task %s: %w", t.ID, err)
	}
	return ts, nil
}

type PostResult struct {
	Posted []*task.Task
	Failed int
}

// PostAll posts tasks in order, pausing between calls. A failed post is
// logged and skipped.
func (w *Writer) PostAll(ctx context.Context, tasks []*task.Task) (*PostResult, error) {
	res := &PostResult{}
	for i, t := range tasks {
		if i > 0 {
			if err := pause(ctx, w.postInterval); err != nil {
				return res, err
			}
		}
		if _, err := w.PostTask(ctx, t); err != nil {
			res.Failed++
			slog.WarnContext(ctx, "failed to post task", "task_id", t.ID, "bucket", t.Recipient.Bucket, "rate_limited", errors.Is(err, ErrRateLimited), "error", err)
			continue
		}
		res.Posted = append(res.Posted, t)
	}
	return res, nil
}

type ClearResult struct {
	Deleted int
	Failed  int
}

// ClearBotMessages deletes every bot message among the last HistoryLimit.
// Deletes that fail, for example on messages too old to delete, are counted
// and the loop goes on.
func (w *Writer) ClearBotMessages(ctx context.Context) (*ClearResult, error) {
	page, err := w.client.History(ctx, HistoryLimit, "")
	if err != nil {
		return nil, cerr.NewError(cerr.Unavailable, "failed to read channel history", fmt.Errorf("history: %w", err))
	}
	res := &ClearResult{}
	for _, m := range page.Messages {
		if !m.FromBot() {
			continue
		}
		if res.Deleted+res.Failed > 0 {
			if err := pause(ctx, w.deleteInterval); err != nil {
				return res, err
			}
		}
		if err := w.client.Delete(ctx, m.Timestamp); err != nil {
			res.Failed++
			slog.InfoContext(ctx, "could not delete message", "ts", m.Timestamp, "error", err)
			continue
		}
		res.Deleted++
	}
	return res, nil
}

// DeleteMessage removes a single message.
func (w *Writer) DeleteMessage(ctx context.Context, ts string) error {
	if err := w.client.Delete(ctx, ts); err != nil {
		return fmt.Errorf("delete message %s: %w", ts, err)
	}
	return nil
}

// Notify sends a message only user can see.
func (w *Writer) Notify(ctx context.Context, user, text string) error {
	if err := w.client.PostEphemeral(ctx, user, text); err != nil {
		return fmt.Errorf("notify %s: %w", user, err)
	}
	return nil
}

type CleanupStats struct {
	TotalMessages int `json:"totalMessages"`
	Deleted       int `json:"deleted"`
	Failed        int `json:"failed"`
	Skipped       int `json:"skipped"`
}

// Cleanup deletes every bot message and every human message older than
// HumanMessageMaxAge, reading up to CleanupMaxPages pages of history.
func (w *Writer) Cleanup(ctx context.Context) (*CleanupStats, error) {
	var all []*Message
	cursor := ""
	for pages := 0; pages < CleanupMaxPages; pages++ {
		page, err := w.client.History(ctx, CleanupPageLimit, cursor)
		if err != nil {
			return nil, cerr.NewError(cerr.Unavailable, "failed to read channel history", fmt.Errorf("history page %d: %w", pages+1, err))
		}
		all = append(all, page.Messages...)
		slog.DebugContext(ctx, "fetched history page", "page", pages+1, "messages", len(page.Messages))
		if !page.HasMore || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	stats := &CleanupStats{TotalMessages: len(all)}
	now := w.now()
	for _, m := range all {
		if !m.FromBot() && now.Sub(timestampTime(m.Timestamp)) < HumanMessageMaxAge {
			stats.Skipped++
			continue
		}
		if err := w.client.Delete(ctx, m.Timestamp); err != nil {
			stats.Failed++
			slog.InfoContext(ctx, "failed to delete message", "ts", m.Timestamp, "bot", m.FromBot(), "error", err)
			continue
		}
		stats.Deleted++
		if err := pause(ctx, w.cleanupInterval); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// timestampTime converts a message timestamp ("1700000000.000200") to a time.
// Unparseable timestamps map to the zero time, which is always old enough.
func timestampTime(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9))
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
