// Package config holds the framechat client settings and loads them from a
// TOML file.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/Zereker/framechat"
)

// Config is the client configuration.
type Config struct {
	MaxBodyLength  int
	BufferSize     int
	MaxQueueLength int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	DialTimeout    time.Duration
	LogLevel       string
	MetricsAddr    string
	HistoryFile    string
}

type fileConfig struct {
	MaxBody      int    `toml:"max_body"`
	BufferSize   int    `toml:"buffer_size"`
	MaxQueue     int    `toml:"max_queue"`
	ReadTimeout  string `toml:"read_timeout"`
	WriteTimeout string `toml:"write_timeout"`
	DialTimeout  string `toml:"dial_timeout"`
	LogLevel     string `toml:"log_level"`
	MetricsAddr  string `toml:"metrics_addr"`
	History      string `toml:"history"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		MaxBodyLength: framechat.DefaultMaxBodyLength,
		BufferSize:    64,
		DialTimeout:   10 * time.Second,
		LogLevel:      "warn",
	}
}

// LoadFile overlays the keys present in the TOML file at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	if meta.IsDefined("max_body") {
		cfg.MaxBodyLength = raw.MaxBody
	}
	if meta.IsDefined("buffer_size") {
		cfg.BufferSize = raw.BufferSize
	}
	if meta.IsDefined("max_queue") {
		cfg.MaxQueueLength = raw.MaxQueue
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
		{"dial_timeout", raw.DialTimeout, &cfg.DialTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return errors.Wrapf(err, "parse %s", d.key)
		}
		*d.dst = v
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("history") {
		cfg.HistoryFile = strings.TrimSpace(raw.History)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return errors.Errorf("load config: unknown key %q", undecoded[0].String())
	}
	return nil
}

// Validate reports the first setting the client cannot run with.
func (c Config) Validate() error {
	switch {
	case c.MaxBodyLength <= 0 || c.MaxBodyLength > framechat.MaxHeaderValue:
		return errors.Errorf("max body length must be between 1 and %d, got %d", framechat.MaxHeaderValue, c.MaxBodyLength)
	case c.BufferSize <= 0:
		return errors.Errorf("buffer size must be positive, got %d", c.BufferSize)
	case c.MaxQueueLength < 0:
		return errors.Errorf("max queue length must not be negative, got %d", c.MaxQueueLength)
	case c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.DialTimeout < 0:
		return errors.New("timeouts must not be negative")
	}

	_, err := c.Level()
	return err
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, errors.Wrapf(err, "log level %q", c.LogLevel)
	}
	return level, nil
}

// Options maps the settings onto connection options.
func (c Config) Options() []framechat.Option {
	return []framechat.Option{
		framechat.MaxBodyLengthOption(c.MaxBodyLength),
		framechat.BufferSizeOption(c.BufferSize),
		framechat.MaxQueueLengthOption(c.MaxQueueLength),
		framechat.ReadTimeoutOption(c.ReadTimeout),
		framechat.WriteTimeoutOption(c.WriteTimeout),
	}
}
