// Package telegram adapts mymmrac/telego into the platform.ChatClient
// contract, reusing the retry/backoff policy shared with the other
// platform adapters.
package telegram

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/redoracle/tgsentinel/internal/platform"
)

// Client sends alerts and digests to Telegram chats.
type Client struct {
	bot   *telego.Bot
	retry platform.RetryConfig
}

// New connects a bot using token. The resulting Client is safe for
// concurrent use by both the immediate-alert dispatcher and the digest
// delivery loop.
func New(token string) (*Client, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &Client{bot: bot, retry: platform.DefaultRetryConfig()}, nil
}

// SendText delivers text to target, a decimal Telegram chat ID. Long bodies
// are expected to already be chunked by the caller (digest/format.Chunk),
// since Telegram's limit and TGSentinel's own 4096 chunk size coincide.
func (c *Client) SendText(ctx context.Context, target, text string) error {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", target, err)
	}

	_, err = platform.RetryDo(ctx, c.retry, func() (struct{}, error) {
		msg := tu.Message(tu.ID(chatID), text)
		msg.ParseMode = telego.ModeHTML
		_, sendErr := c.bot.SendMessage(ctx, msg)
		return struct{}{}, sendErr
	})
	if err != nil {
		return fmt.Errorf("telegram: send to %s: %w", target, err)
	}
	return nil
}
