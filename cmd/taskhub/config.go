package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/StricklySoft/taskhub/internal/server"
	"github.com/StricklySoft/taskhub/pkg/auth"
	"github.com/StricklySoft/taskhub/pkg/clients/postgres"
	"github.com/StricklySoft/taskhub/pkg/clients/redis"
	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

// Store drivers accepted in StoreConfig.Driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// AppConfig is the whole process configuration. Every field can be set
// from TASKHUB_-prefixed environment variables, e.g. TASKHUB_AUTH_REGION,
// or from the file named by TASKHUB_CONFIG.
type AppConfig struct {
	HTTP     server.Config   `env:"HTTP" yaml:"http" json:"http"`
	Auth     auth.Config     `env:"AUTH" yaml:"auth" json:"auth"`
	Store    StoreConfig     `env:"STORE" yaml:"store" json:"store"`
	Postgres postgres.Config `env:"POSTGRES" yaml:"postgres" json:"postgres"`
	Redis    redis.Config    `env:"REDIS" yaml:"redis" json:"redis"`
	Log      LogConfig       `env:"LOG" yaml:"log" json:"log"`
}

// StoreConfig selects the persistence backend. Postgres settings are only
// read with the postgres driver.
type StoreConfig struct {
	Driver string `env:"DRIVER" envDefault:"postgres" yaml:"driver" json:"driver"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info" yaml:"level" json:"level"`
	Format string `env:"FORMAT" envDefault:"json" yaml:"format" json:"format"`
}

// Validate checks each section that will actually be used.
func (c *AppConfig) Validate() error {
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if err := c.Postgres.Validate(); err != nil {
			return err
		}
	default:
		return sserr.Newf(sserr.CodeValidationFormat,
			"config: store driver must be %q or %q, got %q", DriverMemory, DriverPostgres, c.Store.Driver)
	}
	if c.Auth.RefreshLimiter == auth.LimiterRedis {
		if err := c.Redis.Validate(); err != nil {
			return err
		}
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	if f := c.Log.Format; f != "json" && f != "text" {
		return sserr.Newf(sserr.CodeValidationFormat, "config: log format must be json or text, got %q", f)
	}
	return nil
}

func (c LogConfig) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.Level))); err != nil {
		return 0, sserr.Wrapf(err, sserr.CodeValidationFormat, "config: unknown log level %q", c.Level)
	}
	return l, nil
}

// newLogger builds the process logger. The config has been validated.
func newLogger(c LogConfig) *slog.Logger {
	level, _ := c.level()
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
