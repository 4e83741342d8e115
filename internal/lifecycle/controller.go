// Package lifecycle implements the C9 lifecycle controller: the session
// generation counter, the three shared signals that gate every
// platform-client-touching loop, and the session import/logout sequences
// that move the generation forward or retire it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/coord"
)

// Identity is the platform client's notion of the logged-in operator,
// the typed stand-in for whatever opaque "me" object the platform SDK
// returns from get_me (spec.md §6.2).
type Identity struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Phone     string
}

// SessionClient is the connect/disconnect/identity slice of the opaque
// chat-platform contract (spec.md §6.2). It is deliberately narrower than
// platform.ChatClient: sending belongs to the alert/digest paths, not to
// session lifecycle.
type SessionClient interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	GetMe(ctx context.Context) (Identity, error)
}

// NewClientFunc builds a fresh SessionClient bound to the session file
// named by cfg — called once at startup and again on every session import,
// mirroring the original's make_client_func.
type NewClientFunc func(cfg *config.Config) (SessionClient, error)

var (
	// ErrStaleGeneration is returned by GenerationToken.Guard when the
	// session has moved on since the token was captured.
	ErrStaleGeneration = errors.New("lifecycle: stale generation, discarding write")
	ErrNotAuthorized   = errors.New("lifecycle: session not authorized")
)

const (
	connectTimeout = 30 * time.Second
	authTimeout    = 90 * time.Second // spec.md §5: "Auth requests wait ≤ 90s"
)

// Controller owns the session generation counter and the shared signals
// every per-generation handler (ingestion, admin-UI request handlers,
// cache refresher, digest engine) waits on before touching the platform
// client.
type Controller struct {
	cfg         *config.Config
	coord       *coord.Store
	newClient   NewClientFunc
	sessionPath string

	mu     sync.Mutex
	client SessionClient

	generation int64

	HandshakeGate *Gate
	Authorized    *Gate
	CacheReady    *Gate
}

func New(cfg *config.Config, store *coord.Store, newClient NewClientFunc) *Controller {
	return &Controller{
		cfg:           cfg,
		coord:         store,
		newClient:     newClient,
		sessionPath:   cfg.SessionPath,
		HandshakeGate: NewGate(),
		Authorized:    NewGate(),
		CacheReady:    NewGate(),
	}
}

// Generation returns the current session generation.
func (c *Controller) Generation() int64 {
	return atomic.LoadInt64(&c.generation)
}

// Client returns the current session client, or nil before the first
// successful authorization.
func (c *Controller) Client() SessionClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// GenerationToken is a generation captured by a long-running handler at
// loop start. Guard enforces the "generation isolation" property: any
// write attempted through a stale token is discarded before it reaches the
// coordination store.
type GenerationToken struct {
	gen int64
	ctl *Controller
}

func (c *Controller) Capture() GenerationToken {
	return GenerationToken{gen: c.Generation(), ctl: c}
}

func (t GenerationToken) Generation() int64 { return t.gen }

func (t GenerationToken) Valid() bool {
	return t.ctl.Generation() == t.gen
}

// Guard runs fn only if the token's generation is still current; otherwise
// it discards the write and returns ErrStaleGeneration without calling fn.
func (t GenerationToken) Guard(fn func() error) error {
	if !t.Valid() {
		return ErrStaleGeneration
	}
	return fn()
}

// WaitForAuth blocks until the session is authorized and the handshake
// gate is open, then returns a token capturing that generation — the
// "outer wait-for-auth gate" every per-generation handler re-enters after
// a generation mismatch or a logout.
func (c *Controller) WaitForAuth(ctx context.Context) (GenerationToken, error) {
	if err := c.Authorized.Wait(ctx); err != nil {
		return GenerationToken{}, err
	}
	if err := c.HandshakeGate.Wait(ctx); err != nil {
		return GenerationToken{}, err
	}
	return c.Capture(), nil
}

// ImportSession handles the file-upload boundary (spec.md §4.9): validate,
// disconnect the current client, rebind storage to the new file, connect,
// verify identity, publish session_authorized, and increment the
// generation. uploadedPath is wherever the HTTP boundary staged the
// upload; on success it has been moved into sessionPath.
func (c *Controller) ImportSession(ctx context.Context, uploadedPath string) (Identity, error) {
	if err := ValidateSessionFile(uploadedPath); err != nil {
		return Identity{}, fmt.Errorf("lifecycle: reject session upload: %w", err)
	}

	c.mu.Lock()
	old := c.client
	c.mu.Unlock()

	if old != nil && old.IsConnected() {
		discCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		if err := old.Disconnect(discCtx); err != nil {
			slog.Debug("lifecycle: disconnect during session import", "error", err)
		}
		cancel()
	}

	if err := RemoveSessionFiles(c.sessionPath); err != nil {
		slog.Warn("lifecycle: could not clear old session files", "error", err)
	}
	if err := os.Rename(uploadedPath, c.sessionPath); err != nil {
		return Identity{}, fmt.Errorf("lifecycle: bind uploaded session: %w", err)
	}

	newClient, err := c.newClient(c.cfg)
	if err != nil {
		return Identity{}, fmt.Errorf("lifecycle: create client for imported session: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := newClient.Connect(connCtx); err != nil {
		return Identity{}, fmt.Errorf("lifecycle: connect imported session: %w", err)
	}

	authCtx, cancelAuth := context.WithTimeout(ctx, authTimeout)
	defer cancelAuth()
	id, err := newClient.GetMe(authCtx)
	if err != nil {
		_ = newClient.Disconnect(ctx)
		return Identity{}, fmt.Errorf("lifecycle: verify imported session identity: %w", err)
	}

	c.mu.Lock()
	c.client = newClient
	c.mu.Unlock()

	gen := atomic.AddInt64(&c.generation, 1)

	c.Authorized.Set()
	c.HandshakeGate.Set()
	c.CacheReady.Clear() // cache warm-up for the new generation hasn't run yet

	if err := c.coord.SetWorkerStatus(ctx, coord.WorkerStatus{
		Generation: gen,
		State:      "authorized",
		UpdatedAt:  time.Now().UTC(),
	}, time.Hour); err != nil {
		slog.Error("lifecycle: publish worker status", "error", err)
	}
	if err := c.coord.SetUserInfo(ctx, coord.UserInfo{ID: id.ID, Username: id.Username, FirstName: id.FirstName}); err != nil {
		slog.Error("lifecycle: cache user info", "error", err)
	}
	if err := c.coord.PublishSessionUpdated(ctx, coord.SessionUpdatedEvent{
		Event:      coord.EventSessionAuthorized,
		Generation: gen,
	}); err != nil {
		slog.Error("lifecycle: publish session_authorized", "error", err)
	}

	slog.Info("lifecycle: session imported", "generation", gen, "user_id", id.ID)
	return id, nil
}

// Logout handles spec.md §4.9's logout sequence: disconnect, remove the
// session file, publish session_logout, clear authorized. Cached keys in
// the coordination store are not deleted here. Background handlers observe Authorized going low on their
// next Wait and drain back to WaitForAuth.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client != nil && client.IsConnected() {
		discCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := client.Disconnect(discCtx)
		cancel()
		if err != nil {
			slog.Warn("lifecycle: disconnect during logout", "error", err)
		}
	}

	if err := RemoveSessionFiles(c.sessionPath); err != nil {
		slog.Warn("lifecycle: remove session files on logout", "error", err)
	}

	c.mu.Lock()
	c.client = nil
	c.mu.Unlock()

	c.Authorized.Clear()
	c.HandshakeGate.Clear()
	c.CacheReady.Clear()

	gen := c.Generation()
	if err := c.coord.SetWorkerStatus(ctx, coord.WorkerStatus{
		Generation: gen,
		State:      "logged_out",
		UpdatedAt:  time.Now().UTC(),
	}, 0); err != nil {
		slog.Error("lifecycle: publish worker status on logout", "error", err)
	}
	if err := c.coord.PublishSessionUpdated(ctx, coord.SessionUpdatedEvent{
		Event:      coord.EventSessionLogout,
		Generation: gen,
	}); err != nil {
		slog.Error("lifecycle: publish session_logout", "error", err)
	}

	slog.Info("lifecycle: logged out", "generation", gen)
	return nil
}

// MarkCacheReady raises the cache_ready signal for the current generation
// and publishes it to the coordination store, once initial cache warm-up
// for this generation completes.
func (c *Controller) MarkCacheReady(ctx context.Context) error {
	c.CacheReady.Set()
	return c.coord.PublishCacheReady(ctx, c.Generation())
}
