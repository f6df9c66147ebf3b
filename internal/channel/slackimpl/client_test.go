package slackimpl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/urgentsync/internal/channel"
)

type recorded struct {
	mu    sync.Mutex
	calls map[string][]map[string]string
}

func (r *recorded) add(method string, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = req.ParseForm()
	form := map[string]string{}
	for k := range req.Form {
		form[k] = req.Form.Get(k)
	}
	if r.calls == nil {
		r.calls = map[string][]map[string]string{}
	}
	r.calls[method] = append(r.calls[method], form)
}

const historyJSON = `{
  "ok": true,
  "has_more": true,
  "response_metadata": {"next_cursor": "bmV4dA=="},
  "messages": [
    {
      "type": "message", "ts": "1760875200.000100", "bot_id": "B01", "text": "ROB: Ship it - 2026-10-19",
      "blocks": [
        {"type": "section", "block_id": "s1", "text": {"type": "mrkdwn", "text": "*ROB* 📌 *Ship it*"},
         "accessory": {"type": "button", "action_id": "mark_done", "value": "task-1", "style": "primary", "text": {"type": "plain_text", "text": "✅ Done"}}},
        {"type": "context", "block_id": "c1", "elements": [{"type": "mrkdwn", "text": "<https://notion.so/x|View in Notion>"}]}
      ]
    },
    {"type": "message", "ts": "1760875100.000100", "user": "U01", "text": "hello"}
  ]
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(slack.New("xoxb-test", slack.OptionAPIURL(srv.URL+"/")), "C0CHAN")
}

func TestHistoryConvertsMessages(t *testing.T) {
	rec := &recorded{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.Path, r)
		_, _ = w.Write([]byte(historyJSON))
	})

	page, err := c.History(context.Background(), 200, "")
	require.NoError(t, err)

	assert.True(t, page.HasMore)
	assert.Equal(t, "bmV4dA==", page.NextCursor)
	require.Len(t, page.Messages, 2)

	bot := page.Messages[0]
	assert.True(t, bot.FromBot())
	assert.Equal(t, "1760875200.000100", bot.Timestamp)
	require.Len(t, bot.Blocks, 2)
	btn := bot.Button()
	require.NotNil(t, btn)
	assert.Equal(t, channel.MarkDoneActionID, btn.ActionID)
	assert.Equal(t, "task-1", btn.Value)
	assert.Equal(t, "primary", btn.Style)
	assert.Equal(t, []string{"<https://notion.so/x|View in Notion>"}, bot.Blocks[1].Elements)

	assert.False(t, page.Messages[1].FromBot())

	calls := rec.calls["/conversations.history"]
	require.Len(t, calls, 1)
	assert.Equal(t, "C0CHAN", calls[0]["channel"])
	assert.Equal(t, "200", calls[0]["limit"])
}

func TestPostSendsTextAndBlocks(t *testing.T) {
	rec := &recorded{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.Path, r)
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C0CHAN","ts":"1760875300.000200"}`))
	})

	ts, err := c.Post(context.Background(), &channel.Post{
		Text: "SAM: Review - 2026-10-20",
		Blocks: []channel.Block{
			{Type: channel.BlockSection, Text: "*SAM*", Accessory: &channel.Button{ActionID: "mark_done", Value: "task-2", Label: "✅ Done"}},
			{Type: channel.BlockContext, Elements: []string{"<https://notion.so/y|View in Notion>"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "1760875300.000200", ts)

	calls := rec.calls["/chat.postMessage"]
	require.Len(t, calls, 1)
	assert.Equal(t, "SAM: Review - 2026-10-20", calls[0]["text"])
	var blocks []map[string]any
	require.NoError(t, json.Unmarshal([]byte(calls[0]["blocks"]), &blocks))
	require.Len(t, blocks, 2)
	assert.Equal(t, "section", blocks[0]["type"])
	acc := blocks[0]["accessory"].(map[string]any)
	assert.Equal(t, "task-2", acc["value"])
	assert.NotContains(t, acc, "style")
	assert.Equal(t, "context", blocks[1]["type"])
}

func TestRateLimitIsReported(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := c.Delete(context.Background(), "1760875200.000100")
	require.Error(t, err)
	assert.ErrorIs(t, err, channel.ErrRateLimited)
}

func TestDeleteAndEphemeral(t *testing.T) {
	rec := &recorded{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.Path, r)
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C0CHAN","ts":"1760875200.000100","message_ts":"1760875400.000100"}`))
	})

	require.NoError(t, c.Delete(context.Background(), "1760875200.000100"))
	require.NoError(t, c.PostEphemeral(context.Background(), "U01", "done"))

	assert.Equal(t, "1760875200.000100", rec.calls["/chat.delete"][0]["ts"])
	assert.Equal(t, "U01", rec.calls["/chat.postEphemeral"][0]["user"])
}
