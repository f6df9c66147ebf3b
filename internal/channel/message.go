package channel

import (
	"context"
	"errors"
)

const (
	BlockSection = "section"
	BlockContext = "context"

	// MarkDoneActionID is the action id of the completion button.
	MarkDoneActionID = "mark_done"

	StylePrimary = "primary"
)

// ErrRateLimited is returned by a Client when the platform throttled the call.
var ErrRateLimited = errors.New("rate limited")

// Message is a channel message as far as this service cares about it.
type Message struct {
	Timestamp string
	BotID     string
	User      string
	Text      string
	Blocks    []Block
}

// FromBot reports whether the message was authored by a bot.
func (m *Message) FromBot() bool {
	return m.BotID != ""
}

// Button returns the first section accessory, if any.
func (m *Message) Button() *Button {
	for i := range m.Blocks {
		if m.Blocks[i].Type == BlockSection && m.Blocks[i].Accessory != nil {
			return m.Blocks[i].Accessory
		}
	}
	return nil
}

type Block struct {
	Type string
	// Text is the mrkdwn text of a section block.
	Text      string
	Accessory *Button
	// Elements are the mrkdwn elements of a context block.
	Elements []string
}

type Button struct {
	ActionID string
	Value    string
	Label    string
	Style    string
}

// Post is an outgoing message.
type Post struct {
	Text   string
	Blocks []Block
}

type HistoryPage struct {
	Messages   []*Message
	HasMore    bool
	NextCursor string
}

// Client is the chat platform, bound to a single channel.
type Client interface {
	History(ctx context.Context, limit int, cursor string) (*HistoryPage, error)
	Post(ctx context.Context, p *Post) (string, error)
	Delete(ctx context.Context, ts string) error
	PostEphemeral(ctx context.Context, user, text string) error
}
