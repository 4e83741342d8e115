package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Load reads and parses a YAML config document from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnvOverrides lets deployment environment variables win over the YAML
// document for the handful of operational knobs named in spec.md §6.5.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TG_SESSION_PATH"); v != "" {
		c.SessionPath = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redis.Port = n
		}
	}
	if v := os.Getenv("REDIS_STREAM"); v != "" {
		c.Redis.Stream = v
	}
	if v := os.Getenv("REDIS_GROUP"); v != "" {
		c.Redis.Group = v
	}
	if v := os.Getenv("REDIS_CONSUMER"); v != "" {
		c.Redis.Consumer = v
	}
	if v := os.Getenv("DB_URI"); v != "" {
		c.DBURI = v
	}
	if v := os.Getenv("EMBEDDINGS_MODEL"); v != "" {
		c.EmbeddingsModel = v
	}
	if v := os.Getenv("SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			c.SimilarityThreshold = float32(f)
		}
	}
	if v := os.Getenv("ALERT_MODE"); v != "" {
		c.AlertMode = NormalizeMode(v)
	}
	if v := os.Getenv("ALERT_CHANNEL"); v != "" {
		c.AlertChannel = v
	}
	if v := os.Getenv("DIGEST_TOP_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DigestTopN = n
		}
	}
	if v := os.Getenv("NOTIFICATION_CHANNEL"); v != "" {
		c.NotificationChannel = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.AdminToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) applyDefaults() {
	if c.Redis.Stream == "" {
		c.Redis.Stream = "tgsentinel:messages"
	}
	if c.Redis.Group == "" {
		c.Redis.Group = "tgsentinel-workers"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.DigestTopN == 0 {
		c.DigestTopN = 10
	}
	if c.Retention.RetentionDays == 0 {
		c.Retention.RetentionDays = 30
	}
	if c.Retention.AlertMultiplier == 0 {
		c.Retention.AlertMultiplier = 2
	}
	if c.Retention.SweepInterval == 0 {
		c.Retention.SweepInterval = time.Hour
	}
	if c.Retention.VacuumInterval == 0 {
		c.Retention.VacuumInterval = 24 * time.Hour
	}
	if c.AlertRateLimit.EventsPerSecond == 0 {
		c.AlertRateLimit.EventsPerSecond = 1
	}
	if c.AlertRateLimit.Burst == 0 {
		c.AlertRateLimit.Burst = 5
	}
}

// Store holds the immutable current Config behind an atomic pointer so
// readers never observe a torn reload (spec.md §5: "AppCfg is immutable
// once loaded; reload replaces the reference atomically").
type Store struct {
	path string
	cur  atomic.Pointer[Config]

	mu        sync.Mutex
	watchers  []chan struct{}
}

// NewStore loads path once and returns a Store ready for hot-reload watching.
func NewStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.cur.Store(cfg)
	return s, nil
}

// NewStoreWithConfig wraps an already-loaded Config, skipping the file
// read — used by tests and by callers that build Config from something
// other than a YAML document on disk.
func NewStoreWithConfig(cfg *Config) *Store {
	s := &Store{}
	s.cur.Store(cfg)
	return s
}

// Current returns the presently active config. Safe for concurrent use.
func (s *Store) Current() *Config {
	return s.cur.Load()
}

// Path returns the on-disk location of the config document.
func (s *Store) Path() string {
	return s.path
}

// SaveAtomic writes cfg to the config document via temp-file + rename
// (preventing corruption from a crash mid-write), then swaps it in as the
// active config immediately rather than waiting for the next fsnotify
// event. Callers that mutate a profile must pass a copy with its own
// Profiles map — see internal/tuner.
func (s *Store) SaveAtomic(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "tgsentinel-config-*.yml.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename temp config file: %w", err)
	}

	s.cur.Store(cfg)
	s.notify()
	return nil
}

// Subscribe returns a channel that receives a value every time the config is
// successfully reloaded. In-flight work keeps its captured *Config and is
// unaffected; only new work observes the new reference.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Watch runs until ctx is cancelled, reloading the config file on every
// filesystem change event and keeping the previous config on any parse
// failure (spec.md §7: "Config error at reload — keep previous config; log").
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.path); err != nil {
		return fmt.Errorf("watch config %s: %w", s.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config: watcher error", "error", err)
		}
	}
}

func (s *Store) reload() {
	cfg, err := Load(s.path)
	if err != nil {
		slog.Warn("config: reload failed, keeping previous config", "path", s.path, "error", err)
		return
	}
	s.cur.Store(cfg)
	slog.Info("config: reloaded", "path", s.path, "profiles", len(cfg.Profiles), "channels", len(cfg.Channels))
	s.notify()
}
