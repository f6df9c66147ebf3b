package channel_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/urgentsync/internal/channel"
	"github.com/kazz187/urgentsync/internal/channel/channeltest"
	"github.com/kazz187/urgentsync/internal/task"
	"github.com/kazz187/urgentsync/pkg/cerr"
)

func TestPostAllSkipsFailures(t *testing.T) {
	client := channeltest.NewClient()
	client.PostErr = func(p *channel.Post) error {
		if p.Blocks[0].Accessory.Value == "b" {
			return fmt.Errorf("%w: retry after 1s", channel.ErrRateLimited)
		}
		return nil
	}
	w := channel.NewWriter(client, channel.NewCodec(task.DefaultRoster), channel.WithPostInterval(time.Millisecond))

	res, err := w.PostAll(context.Background(), []*task.Task{
		newTask("a", task.BucketROB, task.Overdue),
		newTask("b", task.BucketSAM, task.Overdue),
		newTask("c", task.BucketANNA, task.Overdue),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Posted, 2)
	assert.Equal(t, "a", res.Posted[0].ID)
	assert.Equal(t, "c", res.Posted[1].ID)
}

func TestPostAllPacesCalls(t *testing.T) {
	client := channeltest.NewClient()
	w := channel.NewWriter(client, channel.NewCodec(task.DefaultRoster), channel.WithPostInterval(20*time.Millisecond))

	start := time.Now()
	_, err := w.PostAll(context.Background(), []*task.Task{
		newTask("a", task.BucketROB, task.Overdue),
		newTask("b", task.BucketROB, task.Overdue),
		newTask("c", task.BucketROB, task.Overdue),
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPostAllStopsOnCancel(t *testing.T) {
	client := channeltest.NewClient()
	w := channel.NewWriter(client, channel.NewCodec(task.DefaultRoster), channel.WithPostInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := w.PostAll(ctx, []*task.Task{newTask("a", task.BucketROB, task.Overdue), newTask("b", task.BucketROB, task.Overdue)})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, res.Posted, 1)
}

func TestClearBotMessagesToleratesFailures(t *testing.T) {
	ctx := context.Background()
	client := channeltest.NewClient()
	w := channel.NewWriter(client, channel.NewCodec(task.DefaultRoster), channel.WithPostInterval(0), channel.WithDeleteInterval(0))

	tsA, err := w.PostTask(ctx, newTask("a", task.BucketROB, task.Overdue))
	require.NoError(t, err)
	_, err = w.PostTask(ctx, newTask("b", task.BucketSAM, task.Overdue))
	require.NoError(t, err)
	client.AddMessage(&channel.Message{BotID: channeltest.BotID, Text: "old bot notice"})
	human := client.AddHuman(time.Now().Add(-48*time.Hour), "keep me")
	client.DeleteErr = map[string]error{tsA: errors.New("cant_delete_message")}

	res, err := w.ClearBotMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, 1, res.Failed)

	left := client.Messages()
	require.Len(t, left, 2)
	assert.Contains(t, []string{left[0].Timestamp, left[1].Timestamp}, human.Timestamp)
	assert.Contains(t, []string{left[0].Timestamp, left[1].Timestamp}, tsA)
}

func TestClearBotMessagesHistoryError(t *testing.T) {
	client := channeltest.NewClient()
	client.HistoryErr = errors.New("not_in_channel")
	w := channel.NewWriter(client, channel.NewCodec(task.DefaultRoster))

	_, err := w.ClearBotMessages(context.Background())
	require.Error(t, err)
}

func TestCleanup(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	client := channeltest.NewClient()
	client.AddHuman(now.Add(-25*time.Hour), "old human")
	recent := client.AddHuman(now.Add(-time.Hour), "recent human")
	client.AddMessage(&channel.Message{BotID: channeltest.BotID, Text: "fresh bot"})
	failing := &channel.Message{BotID: channeltest.BotID, Text: "stuck bot"}
	client.AddMessage(failing)
	client.DeleteErr = map[string]error{failing.Timestamp: errors.New("cant_delete_message")}

	w := channel.NewWriter(client, channel.NewCodec(task.DefaultRoster), channel.WithCleanupInterval(0), channel.WithClock(func() time.Time { return now }))
	stats, err := w.Cleanup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &channel.CleanupStats{TotalMessages: 4, Deleted: 2, Failed: 1, Skipped: 1}, stats)
	left := client.Messages()
	require.Len(t, left, 2)
	assert.Equal(t, failing.Timestamp, left[0].Timestamp)
	assert.Equal(t, recent.Timestamp, left[1].Timestamp)
}

func TestCleanupPaginatesUpToLimit(t *testing.T) {
	client := channeltest.NewClient()
	for range channel.CleanupPageLimit*channel.CleanupMaxPages + 5 {
		client.AddMessage(&channel.Message{BotID: channeltest.BotID, Text: "x"})
	}
	w := channel.NewWriter(client, channel.NewCodec(task.DefaultRoster), channel.WithCleanupInterval(0))

	stats, err := w.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, channel.CleanupPageLimit*channel.CleanupMaxPages, stats.TotalMessages)
	assert.Len(t, client.HistoryLimits, channel.CleanupMaxPages)
	assert.Len(t, client.Messages(), 5)
}

func TestCleanupHandler(t *testing.T) {
	client := channeltest.NewClient()
	client.AddMessage(&channel.Message{BotID: channeltest.BotID, Text: "x"})
	srv := channel.NewServer(channel.NewWriter(client, channel.NewCodec(task.DefaultRoster), channel.WithCleanupInterval(0)))

	rec := httptest.NewRecorder()
	h := cerr.NewJSONResponseChiMiddleware()(http.HandlerFunc(srv.Cleanup))
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cleanup", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success bool                 `json:"success"`
		Stats   channel.CleanupStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.Stats.Deleted)
}
