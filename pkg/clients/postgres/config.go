package postgres

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// maxSQLTruncateLen is the longest statement recorded on a span.
const maxSQLTruncateLen = 100

// Defaults applied by [DefaultConfig] and [Config.Validate].
const (
	DefaultHost              = "localhost"
	DefaultPort              = 5432
	DefaultDatabase          = "taskhub"
	DefaultUser              = "taskhub"
	DefaultMaxConns    int32 = 10
	DefaultMinConns    int32 = 1
	DefaultMaxConnLife       = time.Hour
	DefaultMaxConnIdle       = 30 * time.Minute
	DefaultHealthCheckPeriod = time.Minute
	DefaultConnectTimeout    = 10 * time.Second
	DefaultHealthTimeout     = 5 * time.Second
)

// SSLMode is a libpq sslmode value.
type SSLMode string

const (
	SSLModeDisable    SSLMode = "disable"
	SSLModePrefer     SSLMode = "prefer"
	SSLModeRequire    SSLMode = "require"
	SSLModeVerifyCA   SSLMode = "verify-ca"
	SSLModeVerifyFull SSLMode = "verify-full"
)

// Valid reports whether m is a supported sslmode.
func (m SSLMode) Valid() bool {
	switch m {
	case SSLModeDisable, SSLModePrefer, SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull:
		return true
	default:
		return false
	}
}

// Secret is a string that never prints its value. Use [Secret.Value] to
// read it.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string { return redacted }
func (s Secret) GoString() string { return redacted }
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }
func (s Secret) Value() string { return string(s) }

// Config holds connection and pool settings. Either URI or the discrete
// fields are used; URI wins when set.
type Config struct {
	URI      string  `env:"URI" yaml:"uri" json:"uri,omitempty"`
	Host     string  `env:"HOST" envDefault:"localhost" yaml:"host" json:"host,omitempty"`
	Port     int     `env:"PORT" envDefault:"5432" yaml:"port" json:"port,omitempty"`
	Database string  `env:"DATABASE" envDefault:"taskhub" yaml:"database" json:"database"`
	User     string  `env:"USER" envDefault:"taskhub" yaml:"user" json:"user"`
	Password Secret  `env:"PASSWORD" yaml:"password" json:"-"`
	SSLMode  SSLMode `env:"SSLMODE" envDefault:"prefer" yaml:"ssl_mode" json:"ssl_mode,omitempty"`

	MaxConns          int32         `env:"MAX_CONNS" yaml:"max_conns" json:"max_conns,omitempty"`
	MinConns          int32         `env:"MIN_CONNS" yaml:"min_conns" json:"min_conns,omitempty"`
	MaxConnLifetime   time.Duration `env:"MAX_CONN_LIFETIME" yaml:"max_conn_lifetime" json:"max_conn_lifetime,omitempty"`
	MaxConnIdleTime   time.Duration `env:"MAX_CONN_IDLE_TIME" yaml:"max_conn_idle_time" json:"max_conn_idle_time,omitempty"`
	HealthCheckPeriod time.Duration `env:"HEALTH_CHECK_PERIOD" yaml:"health_check_period" json:"health_check_period,omitempty"`
	ConnectTimeout    time.Duration `env:"CONNECT_TIMEOUT" yaml:"connect_timeout" json:"connect_timeout,omitempty"`
}

// DefaultConfig returns settings for a local database.
func DefaultConfig() *Config {
	return &Config{
		Host:              DefaultHost,
		Port:              DefaultPort,
		Database:          DefaultDatabase,
		User:              DefaultUser,
		SSLMode:           SSLModePrefer,
		MaxConns:          DefaultMaxConns,
		MinConns:          DefaultMinConns,
		MaxConnLifetime:   DefaultMaxConnLife,
		MaxConnIdleTime:   DefaultMaxConnIdle,
		HealthCheckPeriod: DefaultHealthCheckPeriod,
		ConnectTimeout:    DefaultConnectTimeout,
	}
}

// Validate fills zero pool settings with defaults and checks the rest.
func (c *Config) Validate() error {
	c.applyPoolDefaults()

	if c.MaxConns < 0 || c.MinConns < 0 {
		return errors.New("postgres: config pool sizes must not be negative")
	}
	if c.MaxConns < c.MinConns {
		return fmt.Errorf("postgres: config max_conns (%d) must be >= min_conns (%d)", c.MaxConns, c.MinConns)
	}

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("postgres: config URI is invalid: %w", err)
		}
		if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			return fmt.Errorf("postgres: config URI scheme %q is not postgres", u.Scheme)
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
		return fmt.Errorf("postgres: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Database == "" {
		return errors.New("postgres: config database must not be empty")
	}
	if c.User == "" {
		return errors.New("postgres: config user must not be empty")
	}
	if c.SSLMode == "" {
		c.SSLMode = SSLModePrefer
	}
	if !c.SSLMode.Valid() {
		return fmt.Errorf("postgres: config ssl_mode %q is not valid", c.SSLMode)
	}
	return nil
}

func (c *Config) applyPoolDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns == 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = DefaultMaxConnLife
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = DefaultMaxConnIdle
	}
	if c.HealthCheckPeriod == 0 {
		c.HealthCheckPeriod = DefaultHealthCheckPeriod
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
}

// ConnectionString returns URI, or a postgres:// URL built from the
// discrete fields.
func (c *Config) ConnectionString() string {
	if c.URI != "" {
		return c.URI
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password.Value()),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Database,
	}
	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", string(c.SSLMode))
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// databaseName is the database named by the config, for span attributes.
func (c *Config) databaseName() string {
	if c.URI == "" {
		return c.Database
	}
	if u, err := url.Parse(c.URI); err == nil {
		return strings.TrimPrefix(u.Path, "/")
	}
	return ""
}

// truncateSQL shortens a statement for inclusion in a span.
func truncateSQL(sql string) string {
	if len(sql) <= maxSQLTruncateLen {
		return sql
	}
	return sql[:maxSQLTruncateLen] + "..."
}
