package telegram

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redoracle/tgsentinel/internal/lifecycle"
)

// SessionClient adapts Client to lifecycle.SessionClient, letting the
// lifecycle controller drive connect/disconnect/identity-check for a
// Telegram bot the same way it would a user-session client.
type SessionClient struct {
	*Client
	connected atomic.Bool
}

// NewSessionClient builds a session-capable Telegram client for the
// lifecycle controller's NewClientFunc.
func NewSessionClient(token string) (*SessionClient, error) {
	c, err := New(token)
	if err != nil {
		return nil, err
	}
	return &SessionClient{Client: c}, nil
}

// Connect verifies the bot token is live by calling get_me; a bot-API
// token has no separate dial step the way a user-session MTProto client
// does, so "connected" means "the token was just proven to work".
func (s *SessionClient) Connect(ctx context.Context) error {
	if _, err := s.bot.GetMe(ctx); err != nil {
		return fmt.Errorf("telegram: connect: %w", err)
	}
	s.connected.Store(true)
	return nil
}

func (s *SessionClient) Disconnect(_ context.Context) error {
	s.connected.Store(false)
	return nil
}

func (s *SessionClient) IsConnected() bool {
	return s.connected.Load()
}

func (s *SessionClient) GetMe(ctx context.Context) (lifecycle.Identity, error) {
	me, err := s.bot.GetMe(ctx)
	if err != nil {
		return lifecycle.Identity{}, fmt.Errorf("telegram: get_me: %w", err)
	}
	return lifecycle.Identity{
		ID:        me.ID,
		Username:  me.Username,
		FirstName: me.FirstName,
		LastName:  me.LastName,
	}, nil
}
