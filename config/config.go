// Package config loads the service configuration from defaults, an optional
// YAML file, REALTIME_HUB_* environment variables (a local .env file is
// honoured) and command line overrides, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "REALTIME_HUB"

const (
	MissedPolicyDrop    = "drop"
	MissedPolicyLog     = "log"
	MissedPolicyPublish = "publish"
)

const AcceptAll = "accept-all"

type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	Log     LogConfig     `mapstructure:"log"`
	Socket  SocketConfig  `mapstructure:"socket"`
	AMQP    AMQPConfig    `mapstructure:"amqp"`
	Tracing TracingConfig `mapstructure:"tracing"`

	v        *viper.Viper
	watchMu  sync.Mutex
	watchers []func(*Config)
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SocketConfig drives the realtime server built on the first inbound connection.
type SocketConfig struct {
	Path           string        `mapstructure:"path"`
	Transports     []string      `mapstructure:"transports"`
	CORSOrigin     string        `mapstructure:"cors_origin"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PingTimeout    time.Duration `mapstructure:"ping_timeout"`
	UpgradeTimeout time.Duration `mapstructure:"upgrade_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxPayload     int64         `mapstructure:"max_payload"`
	AcceptPolicy   string        `mapstructure:"accept_policy"`
	OutboxSize     int           `mapstructure:"outbox_size"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	MessageRate    float64       `mapstructure:"message_rate"`
	MessageBurst   int           `mapstructure:"message_burst"`

	MissedPolicy      string `mapstructure:"missed_policy"`
	MissedTrackerSize int    `mapstructure:"missed_tracker_size"`
}

// AMQPConfig enables the command ingress and the missed-notification sink.
// An empty URL keeps both on an in-process channel.
type AMQPConfig struct {
	URL              string `mapstructure:"url"`
	CommandsExchange string `mapstructure:"commands_exchange"`
	CommandsQueue    string `mapstructure:"commands_queue"`
	MissedExchange   string `mapstructure:"missed_exchange"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":3000")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("socket.path", "/api/socket")
	v.SetDefault("socket.transports", []string{"polling", "websocket"})
	v.SetDefault("socket.cors_origin", "*")
	v.SetDefault("socket.ping_interval", 25*time.Second)
	v.SetDefault("socket.ping_timeout", 60*time.Second)
	v.SetDefault("socket.upgrade_timeout", 30*time.Second)
	v.SetDefault("socket.connect_timeout", 45*time.Second)
	v.SetDefault("socket.max_payload", 1<<20)
	v.SetDefault("socket.accept_policy", AcceptAll)
	v.SetDefault("socket.outbox_size", 256)
	v.SetDefault("socket.sweep_interval", 5*time.Second)
	v.SetDefault("socket.message_rate", 20.0)
	v.SetDefault("socket.message_burst", 40)
	v.SetDefault("socket.missed_policy", MissedPolicyDrop)
	v.SetDefault("socket.missed_tracker_size", 10000)

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.commands_exchange", "realtime_hub.commands")
	v.SetDefault("amqp.commands_queue", "notify-processor.v1")
	v.SetDefault("amqp.missed_exchange", "realtime_hub.missed")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Flags returns the command line overrides understood by LoadConfig.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("realtime-hub", pflag.ContinueOnError)
	fs.String("http.addr", ":3000", "HTTP listen address")
	fs.String("log.level", "info", "log level (debug, info, warn, error)")
	fs.String("socket.missed_policy", MissedPolicyDrop, "what to do with dispatches nobody receives (drop, log, publish)")
	fs.String("amqp.url", "", "AMQP broker URL; empty disables the broker integration")
	return fs
}

type loadOptions struct {
	file    string
	envFile string
	flags   *pflag.FlagSet
}

type LoadOption func(*loadOptions)

func WithFile(path string) LoadOption {
	return func(o *loadOptions) { o.file = path }
}

func WithEnvFile(path string) LoadOption {
	return func(o *loadOptions) { o.envFile = path }
}

func WithFlags(fs *pflag.FlagSet) LoadOption {
	return func(o *loadOptions) { o.flags = fs }
}

// LoadConfig builds and validates the configuration.
func LoadConfig(opts ...LoadOption) (*Config, error) {
	o := loadOptions{envFile: ".env"}
	for _, opt := range opts {
		opt(&o)
	}

	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load env file %s: %w", o.envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.flags != nil {
		if err := v.BindPFlags(o.flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	if o.file != "" {
		v.SetConfigFile(o.file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", o.file, err)
		}
	}

	cfg := &Config{v: v}
	if err := cfg.decode(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode() error {
	if err := c.v.Unmarshal(c); err != nil {
		return fmt.Errorf("config: decode: %w", err)
	}
	return c.Validate()
}

// Validate rejects configurations the realtime server cannot run with.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("config: http.addr is required")
	}
	if err := c.Socket.Validate(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	return nil
}

func (s SocketConfig) Validate() error {
	if !strings.HasPrefix(s.Path, "/") {
		return fmt.Errorf("config: socket.path must start with '/', got %q", s.Path)
	}
	if len(s.Transports) == 0 {
		return errors.New("config: socket.transports must not be empty")
	}
	for _, t := range s.Transports {
		if t != "polling" && t != "websocket" {
			return fmt.Errorf("config: unknown socket transport %q", t)
		}
	}
	for name, d := range map[string]time.Duration{
		"ping_interval":   s.PingInterval,
		"ping_timeout":    s.PingTimeout,
		"upgrade_timeout": s.UpgradeTimeout,
		"connect_timeout": s.ConnectTimeout,
		"sweep_interval":  s.SweepInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("config: socket.%s must be positive", name)
		}
	}
	if s.PingInterval >= s.PingTimeout {
		return errors.New("config: socket.ping_interval must be shorter than socket.ping_timeout")
	}
	if s.MaxPayload <= 0 {
		return errors.New("config: socket.max_payload must be positive")
	}
	if s.AcceptPolicy != AcceptAll {
		return fmt.Errorf("config: unsupported socket.accept_policy %q", s.AcceptPolicy)
	}
	switch s.MissedPolicy {
	case MissedPolicyDrop, MissedPolicyLog, MissedPolicyPublish:
	default:
		return fmt.Errorf("config: unknown socket.missed_policy %q", s.MissedPolicy)
	}
	return nil
}

// HasTransport reports whether the named transport is enabled.
func (s SocketConfig) HasTransport(name string) bool {
	for _, t := range s.Transports {
		if t == name {
			return true
		}
	}
	return false
}

// Watch re-reads the config file on every change and hands the refreshed
// configuration to fn. It is a no-op when no file was loaded.
func (c *Config) Watch(fn func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}

	c.watchMu.Lock()
	first := len(c.watchers) == 0
	c.watchers = append(c.watchers, fn)
	c.watchMu.Unlock()

	if !first {
		return
	}

	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next := &Config{v: c.v}
		if err := next.decode(); err != nil {
			slog.Warn("config reload rejected", "file", e.Name, "err", err)
			return
		}
		slog.Info("config reloaded", "file", e.Name)

		c.watchMu.Lock()
		watchers := append([]func(*Config){}, c.watchers...)
		c.watchMu.Unlock()
		for _, w := range watchers {
			w(next)
		}
	})
	c.v.WatchConfig()
}

// ParseLevel maps a config level name onto slog.
func ParseLevel(name string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
