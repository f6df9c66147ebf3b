// Package slackimpl implements channel.Client on the Slack Web API.
package slackimpl

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/kazz187/urgentsync/internal/channel"
)

type Client struct {
	api       *slack.Client
	channelID string
}

var _ channel.Client = (*Client)(nil)

func NewClient(api *slack.Client, channelID string) *Client {
	return &Client{api: api, channelID: channelID}
}

func (c *Client) History(ctx context.Context, limit int, cursor string) (*channel.HistoryPage, error) {
	resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: c.channelID,
		Limit:     limit,
		Cursor:    cursor,
	})
	if err != nil {
		return nil, wrap(err)
	}
	page := &channel.HistoryPage{
		Messages:   make([]*channel.Message, 0, len(resp.Messages)),
		HasMore:    resp.HasMore,
		NextCursor: resp.ResponseMetaData.NextCursor,
	}
	for i := range resp.Messages {
		page.Messages = append(page.Messages, fromSlack(&resp.Messages[i]))
	}
	return page, nil
}

func (c *Client) Post(ctx context.Context, p *channel.Post) (string, error) {
	_, ts, err := c.api.PostMessageContext(ctx, c.channelID,
		slack.MsgOptionText(p.Text, false),
		slack.MsgOptionBlocks(toSlack(p.Blocks)...),
	)
	if err != nil {
		return "", wrap(err)
	}
	return ts, nil
}

func (c *Client) Delete(ctx context.Context, ts string) error {
	if _, _, err := c.api.DeleteMessageContext(ctx, c.channelID, ts); err != nil {
		return wrap(err)
	}
	return nil
}

func (c *Client) PostEphemeral(ctx context.Context, user, text string) error {
	if _, err := c.api.PostEphemeralContext(ctx, c.channelID, user, slack.MsgOptionText(text, false)); err != nil {
		return wrap(err)
	}
	return nil
}

func wrap(err error) error {
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return fmt.Errorf("%w: retry after %s: %w", channel.ErrRateLimited, rl.RetryAfter, err)
	}
	return err
}

func fromSlack(m *slack.Message) *channel.Message {
	msg := &channel.Message{
		Timestamp: m.Timestamp,
		BotID:     m.BotID,
		User:      m.User,
		Text:      m.Text,
	}
	for _, b := range m.Blocks.BlockSet {
		switch v := b.(type) {
		case *slack.SectionBlock:
			block := channel.Block{Type: channel.BlockSection}
			if v.Text != nil {
				block.Text = v.Text.Text
			}
			if v.Accessory != nil && v.Accessory.ButtonElement != nil {
				btn := v.Accessory.ButtonElement
				block.Accessory = &channel.Button{
					ActionID: btn.ActionID,
					Value:    btn.Value,
					Style:    string(btn.Style),
				}
				if btn.Text != nil {
					block.Accessory.Label = btn.Text.Text
				}
			}
			msg.Blocks = append(msg.Blocks, block)
		case *slack.ContextBlock:
			block := channel.Block{Type: channel.BlockContext}
			for _, e := range v.ContextElements.Elements {
				if t, ok := e.(*slack.TextBlockObject); ok {
					block.Elements = append(block.Elements, t.Text)
				}
			}
			msg.Blocks = append(msg.Blocks, block)
		default:
			msg.Blocks = append(msg.Blocks, channel.Block{Type: string(b.BlockType())})
		}
	}
	return msg
}

func toSlack(blocks []channel.Block) []slack.Block {
	out := make([]slack.Block, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case channel.BlockSection:
			var acc *slack.Accessory
			if b.Accessory != nil {
				btn := slack.NewButtonBlockElement(b.Accessory.ActionID, b.Accessory.Value,
					slack.NewTextBlockObject(slack.PlainTextType, b.Accessory.Label, true, false))
				if b.Accessory.Style != "" {
					btn.Style = slack.Style(b.Accessory.Style)
				}
				acc = slack.NewAccessory(btn)
			}
			out = append(out, slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, b.Text, false, false), nil, acc))
		case channel.BlockContext:
			elems := make([]slack.MixedElement, 0, len(b.Elements))
			for _, e := range b.Elements {
				elems = append(elems, slack.NewTextBlockObject(slack.MarkdownType, e, false, false))
			}
			out = append(out, slack.NewContextBlock("", elems...))
		}
	}
	return out
}
