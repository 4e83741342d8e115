package digest

import (
	"context"
	"fmt"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/digest/format"
	"github.com/redoracle/tgsentinel/internal/platform"
)

// Deliver sends body to target via client, chunked at the platform limit.
// mode == none or dm means "save-only": the digest is recorded but nothing
// is sent (per spec.md §4.8, dm for a *digest* run is a no-send; dm is only
// a send-target for the C7 instant-alert path).
func Deliver(ctx context.Context, client platform.ChatClient, mode config.DeliveryMode, target, body string) error {
	if mode == config.ModeNone || mode == config.ModeDM {
		return nil
	}
	if target == "" {
		return fmt.Errorf("digest: delivery mode %s requires a target channel", mode)
	}
	if client == nil {
		return fmt.Errorf("digest: no chat client configured for delivery")
	}

	for _, chunk := range format.Chunk(body) {
		if err := client.SendText(ctx, target, chunk); err != nil {
			return fmt.Errorf("digest: deliver to %s: %w", target, err)
		}
	}
	return nil
}
