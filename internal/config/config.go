// Package config loads the server configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen            string        `yaml:"listen"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps every request body.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	// MaxConns caps concurrent connections; 0 means unlimited.
	MaxConns int `yaml:"max_conns"`

	LogLevel string `yaml:"log_level"`

	Token     TokenConfig     `yaml:"token"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type TokenConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RateLimitConfig applies per client IP to token creation. RPS 0 disables it.
type RateLimitConfig struct {
	RPS     float64       `yaml:"rps"`
	Burst   int           `yaml:"burst"`
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

const (
	DefaultListen            = "127.0.0.1:25500"
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultMaxBodyBytes      = 1 << 20
	DefaultLogLevel          = "info"
	DefaultTokenTTL          = 10 * time.Minute
	DefaultSweepInterval     = time.Minute
	DefaultRateLimitIdleTTL  = 10 * time.Minute
)

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = DefaultListen
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Token.TTL == 0 {
		c.Token.TTL = DefaultTokenTTL
	}
	if c.Token.SweepInterval == 0 {
		c.Token.SweepInterval = DefaultSweepInterval
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = int(c.RateLimit.RPS)
		if c.RateLimit.Burst < 1 {
			c.RateLimit.Burst = 1
		}
	}
	if c.RateLimit.IdleTTL == 0 {
		c.RateLimit.IdleTTL = DefaultRateLimitIdleTTL
	}
	return c
}

func (c Config) Validate() error {
	if c.MaxBodyBytes < 0 {
		return errors.New("max_body_bytes must be positive")
	}
	if c.MaxConns < 0 {
		return errors.New("max_conns must be >= 0")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Token.TTL < 0 {
		return errors.New("token.ttl must be positive")
	}
	if c.Token.SweepInterval < 0 {
		return errors.New("token.sweep_interval must be positive")
	}
	if c.RateLimit.RPS < 0 {
		return errors.New("rate_limit.rps must be >= 0")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		return errors.New("rate_limit.burst must be >= 1 when rps is set")
	}
	if c.RateLimit.IdleTTL < 0 {
		return errors.New("rate_limit.idle_ttl must be positive")
	}
	return nil
}

// Load reads and validates a config file. An empty path yields Default().
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(string(b))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML config document. Unknown keys are rejected.
func Parse(content string) (Config, error) {
	var c Config
	if strings.TrimSpace(content) != "" {
		if err := yamlDecodeStrict(content, &c); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func yamlDecodeStrict(content string, out any) error {
	dec := yaml.NewDecoder(strings.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return err
	}

	// A second document is almost always a paste error.
	var extra any
	if err := dec.Decode(&extra); err == nil {
		return errors.New("multiple YAML documents are not allowed")
	} else if !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
