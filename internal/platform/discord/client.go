// Package discord adapts bwmarrin/discordgo into the platform.ChatClient
// contract.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/redoracle/tgsentinel/internal/platform"
)

// Client sends alerts and digests to Discord channels via the Bot API.
type Client struct {
	session *discordgo.Session
	retry   platform.RetryConfig
}

// New opens a bot gateway session using token. The "Bot " prefix discordgo
// expects on a bot token is added here, so token is the bare value.
func New(token string) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return &Client{session: session, retry: platform.DefaultRetryConfig()}, nil
}

// Close releases the gateway connection.
func (c *Client) Close() error {
	return c.session.Close()
}

// SendText delivers text to target, a Discord channel ID.
func (c *Client) SendText(ctx context.Context, target, text string) error {
	_, err := platform.RetryDo(ctx, c.retry, func() (*discordgo.Message, error) {
		return c.session.ChannelMessageSend(target, text, discordgo.WithContext(ctx))
	})
	if err != nil {
		return fmt.Errorf("discord: send to %s: %w", target, err)
	}
	return nil
}
