package redis

import (
	"fmt"
	"net/url"
	"time"
)

const maxStatementTruncateLen = 100

// Defaults applied by [DefaultConfig] and [Config.Validate].
const (
	DefaultHost          = "localhost"
	DefaultPort          = 6379
	DefaultPoolSize      = 10
	DefaultMaxRetries    = 2
	DefaultDialTimeout   = 5 * time.Second
	DefaultReadTimeout   = 2 * time.Second
	DefaultWriteTimeout  = 2 * time.Second
	DefaultHealthTimeout = 3 * time.Second
)

// Secret is a string that never prints its value.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string { return redacted }

func (s Secret) GoString() string { return redacted }

func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Value returns the secret itself.
func (s Secret) Value() string { return string(s) }

// Config holds connection settings. URI, when set, replaces Host, Port,
// DB and Password.
type Config struct {
	URI          string        `env:"URI" yaml:"uri" json:"uri,omitempty"`
	Host         string        `env:"HOST" envDefault:"localhost" yaml:"host" json:"host,omitempty"`
	Port         int           `env:"PORT" envDefault:"6379" yaml:"port" json:"port,omitempty"`
	DB           int           `env:"DB" yaml:"db" json:"db"`
	Password     Secret        `env:"PASSWORD" yaml:"password" json:"-"`
	PoolSize     int           `env:"POOL_SIZE" yaml:"pool_size" json:"pool_size,omitempty"`
	MaxRetries   int           `env:"MAX_RETRIES" yaml:"max_retries" json:"max_retries,omitempty"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" yaml:"dial_timeout" json:"dial_timeout,omitempty"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" yaml:"read_timeout" json:"read_timeout,omitempty"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" yaml:"write_timeout" json:"write_timeout,omitempty"`
}

// DefaultConfig returns settings for a local Redis.
func DefaultConfig() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		PoolSize:     DefaultPoolSize,
		MaxRetries:   DefaultMaxRetries,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Validate applies defaults to zero fields and checks the rest.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("redis: config URI is invalid: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("redis: config URI scheme must be redis:// or rediss://, got %q", u.Scheme)
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("redis: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.DB < 0 {
		return fmt.Errorf("redis: config db must not be negative, got %d", c.DB)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("redis: config pool_size must be >= 1, got %d", c.PoolSize)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("redis: config timeouts must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// truncateStatement shortens a command for a span without splitting runes.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
