package config

import (
	"errors"
	"fmt"
	"time"

	"bidding-engine/internal/actor"
	"bidding-engine/internal/registry"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Config is the server configuration, read from the environment and an
// optional .env file
type Config struct {
	Port     int    `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
	GinMode  string `env:"GIN_MODE,default=release"`

	StoreBackend string `env:"STORE_BACKEND,default=memory"`
	BadgerPath   string `env:"BADGER_PATH,default=./data/auctions"`

	// RedisAddr enables cross-process event notification when set
	RedisAddr          string `env:"REDIS_ADDR"`
	RedisChannelPrefix string `env:"REDIS_CHANNEL_PREFIX,default=auction-events:"`

	SnipeWindow     time.Duration `env:"SNIPE_WINDOW,default=60s"`
	SnipeExtension  time.Duration `env:"SNIPE_EXTENSION,default=60s"`
	MaxExtensions   int           `env:"MAX_EXTENSIONS,default=0"`
	CancelWindow    time.Duration `env:"CANCEL_WINDOW,default=10m"`
	AllowSelfOutbid bool          `env:"ALLOW_SELF_OUTBID,default=false"`
	MailboxSize     int           `env:"MAILBOX_SIZE,default=64"`
	RetryDelay      time.Duration `env:"TRANSITION_RETRY_DELAY,default=1s"`

	MaxActiveAuctions int           `env:"MAX_ACTIVE_AUCTIONS,default=10000"`
	RetireAfter       time.Duration `env:"RETIRE_AFTER,default=5m"`
	JanitorInterval   time.Duration `env:"JANITOR_INTERVAL,default=30s"`

	ReplayBufferSize    int `env:"REPLAY_BUFFER_SIZE,default=256"`
	SubscriberQueueSize int `env:"SUBSCRIBER_QUEUE_SIZE,default=64"`

	// SeedDemo creates a few open auctions at startup
	SeedDemo bool `env:"SEED_DEMO_AUCTIONS,default=false"`
}

// Load reads .env if present, then the process environment
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.StoreBackend != BackendMemory && c.StoreBackend != BackendBadger {
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendMemory, BackendBadger, c.StoreBackend))
	}
	if c.StoreBackend == BackendBadger && c.BadgerPath == "" {
		errs = append(errs, errors.New("BADGER_PATH is required for the badger backend"))
	}
	if c.SnipeWindow < 0 || c.SnipeExtension < 0 || c.CancelWindow < 0 {
		errs = append(errs, errors.New("SNIPE_WINDOW, SNIPE_EXTENSION and CANCEL_WINDOW must not be negative"))
	}
	if c.MaxExtensions < 0 {
		errs = append(errs, fmt.Errorf("MAX_EXTENSIONS must not be negative: %d", c.MaxExtensions))
	}
	if c.MailboxSize <= 0 || c.MaxActiveAuctions <= 0 || c.ReplayBufferSize <= 0 || c.SubscriberQueueSize <= 0 {
		errs = append(errs, errors.New("buffer and capacity sizes must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c Config) Rules() actor.Rules {
	return actor.Rules{
		SnipeWindow:     c.SnipeWindow,
		Extension:       c.SnipeExtension,
		MaxExtensions:   c.MaxExtensions,
		CancelWindow:    c.CancelWindow,
		AllowSelfOutbid: c.AllowSelfOutbid,
		MailboxSize:     c.MailboxSize,
		RetryDelay:      c.RetryDelay,
	}
}

func (c Config) Registry() registry.Config {
	return registry.Config{
		MaxActive:       c.MaxActiveAuctions,
		RetireAfter:     c.RetireAfter,
		JanitorInterval: c.JanitorInterval,
	}
}

// WatcherConfig configures the stream watcher command
type WatcherConfig struct {
	StreamURL            string        `env:"STREAM_URL,default=ws://localhost:8080"`
	AuctionID            string        `env:"AUCTION_ID"`
	FromSequence         int           `env:"FROM_SEQUENCE,default=0"`
	ReconnectBaseDelay   time.Duration `env:"RECONNECT_BASE_DELAY,default=1s"`
	ReconnectMaxDelay    time.Duration `env:"RECONNECT_MAX_DELAY,default=30s"`
	ReconnectMaxAttempts int           `env:"RECONNECT_MAX_ATTEMPTS,default=10"`
	LogLevel             string        `env:"LOG_LEVEL,default=info"`
}

func LoadWatcher() (WatcherConfig, error) {
	_ = godotenv.Load()

	var cfg WatcherConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return WatcherConfig{}, fmt.Errorf("config: %w", err)
	}
	if cfg.AuctionID == "" {
		return WatcherConfig{}, errors.New("config: AUCTION_ID is required")
	}
	if cfg.FromSequence < 0 {
		return WatcherConfig{}, fmt.Errorf("config: FROM_SEQUENCE must not be negative: %d", cfg.FromSequence)
	}
	return cfg, nil
}
