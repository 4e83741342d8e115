package worker

import (
	"context"
	"fmt"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/platform"
	"github.com/redoracle/tgsentinel/internal/store"
)

// ChatDispatcher implements AlertDispatcher over a platform.ChatClient,
// rendering a minimal one-message alert (spec.md §4.7 step 11's "dispatch
// immediate delivery"). Digests get the richer digest/format renderer;
// instant alerts are a single short message, so they don't need chunking.
type ChatDispatcher struct {
	Client platform.ChatClient
}

func (d *ChatDispatcher) DispatchAlert(ctx context.Context, m store.StoredMessage, mode config.DeliveryMode, targetChannel string) error {
	if mode == config.ModeNone {
		return nil
	}
	if targetChannel == "" {
		return fmt.Errorf("dispatch alert: mode %s requires a target channel", mode)
	}
	if d.Client == nil {
		return fmt.Errorf("dispatch alert: no chat client configured")
	}
	text := renderAlertText(m)
	if err := d.Client.SendText(ctx, targetChannel, text); err != nil {
		return fmt.Errorf("dispatch alert to %s: %w", targetChannel, err)
	}
	return nil
}

func renderAlertText(m store.StoredMessage) string {
	title := m.ChatTitle
	if title == "" {
		title = fmt.Sprintf("chat %d", m.ChatID)
	}
	return fmt.Sprintf("🔔 %s — %s\nscore %.2f\n%s", title, m.SenderName, m.Score, m.MessageText)
}
