// Package platform defines the outbound chat-client contract both adapters
// (telegram, discord) implement, plus the shared HTTP retry/backoff helpers
// they use to talk to their respective APIs.
package platform

import "context"

// ChatClient sends a pre-chunked text message to a destination identifier
// (chat ID, channel ID, or username) and returns once the platform
// acknowledges receipt. Both the immediate-alert dispatcher (C7) and the
// digest delivery path (C8) talk to the underlying platform only through
// this interface.
type ChatClient interface {
	SendText(ctx context.Context, target string, text string) error
}
