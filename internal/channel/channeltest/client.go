// Package channeltest provides an in-memory channel.Client.
package channeltest

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/kazz187/urgentsync/internal/channel"
)

const BotID = "B0BOT"

type Ephemeral struct {
	User string
	Text string
}

// Client keeps a channel in memory, newest message first like the real
// history endpoint.
type Client struct {
	mu       sync.Mutex
	messages []*channel.Message
	clock    time.Time

	HistoryErr error
	// PostErr, when set, decides per post whether it fails.
	PostErr   func(p *channel.Post) error
	DeleteErr map[string]error

	Posts      []*channel.Post
	Deleted    []string
	Ephemerals []Ephemeral
	// HistoryLimits records the limit of every History call.
	HistoryLimits []int
}

func NewClient() *Client {
	return &Client{clock: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
}

func (c *Client) nextTS() string {
	c.clock = c.clock.Add(time.Second)
	return fmt.Sprintf("%d.%06d", c.clock.Unix(), len(c.Posts))
}

// AddHuman appends a human message written at t.
func (c *Client) AddHuman(t time.Time, text string) *channel.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := &channel.Message{Timestamp: strconv.FormatInt(t.Unix(), 10) + ".000000", User: "U0HUMAN", Text: text}
	c.messages = slices.Insert(c.messages, 0, m)
	return m
}

// AddMessage puts m into the channel as is.
func (c *Client) AddMessage(m *channel.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.Timestamp == "" {
		m.Timestamp = c.nextTS()
	}
	c.messages = slices.Insert(c.messages, 0, m)
}

// Messages returns the current channel content, newest first.
func (c *Client) Messages() []*channel.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages)
}

func (c *Client) History(_ context.Context, limit int, cursor string) (*channel.HistoryPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.HistoryLimits = append(c.HistoryLimits, limit)
	if c.HistoryErr != nil {
		return nil, c.HistoryErr
	}
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, fmt.Errorf("bad cursor %q", cursor)
		}
		start = n
	}
	end := min(start+limit, len(c.messages))
	page := &channel.HistoryPage{Messages: slices.Clone(c.messages[start:end])}
	if end < len(c.messages) {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (c *Client) Post(_ context.Context, p *channel.Post) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PostErr != nil {
		if err := c.PostErr(p); err != nil {
			return "", err
		}
	}
	ts := c.nextTS()
	c.Posts = append(c.Posts, p)
	c.messages = slices.Insert(c.messages, 0, &channel.Message{
		Timestamp: ts,
		BotID:     BotID,
		Text:      p.Text,
		Blocks:    slices.Clone(p.Blocks),
	})
	return ts, nil
}

func (c *Client) Delete(_ context.Context, ts string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.DeleteErr[ts]; err != nil {
		return err
	}
	i := slices.IndexFunc(c.messages, func(m *channel.Message) bool { return m.Timestamp == ts })
	if i < 0 {
		return fmt.Errorf("message_not_found: %s", ts)
	}
	c.messages = slices.Delete(c.messages, i, i+1)
	c.Deleted = append(c.Deleted, ts)
	return nil
}

func (c *Client) PostEphemeral(_ context.Context, user, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Ephemerals = append(c.Ephemerals, Ephemeral{User: user, Text: text})
	return nil
}

var _ channel.Client = (*Client)(nil)
