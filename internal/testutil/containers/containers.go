//go:build integration

// Package containers starts throwaway PostgreSQL and Redis containers for
// integration tests. Everything here is behind the "integration" build tag.
//
//	result, err := containers.StartPostgres(ctx)
//	if err != nil { ... }
//	defer result.Container.Terminate(ctx)
//
//	cfg := postgres.Config{URI: result.ConnString}
package containers

import (
	"context"
	"fmt"
	"testing"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// ===========================================================================
// PostgreSQL
// ===========================================================================

// Settings for the PostgreSQL test container.
const (
	DefaultPostgresImage    = "docker.io/postgres:16-alpine"
	DefaultPostgresDatabase = "taskhub_test"
	DefaultPostgresUser     = "taskhub"
	DefaultPostgresPassword = "taskhub"
)

// PostgresResult is a started PostgreSQL container. ConnString carries
// sslmode=disable.
type PostgresResult struct {
	Container  *tcpostgres.PostgresContainer
	ConnString string
}

// StartPostgres starts a PostgreSQL 16 container and waits until it
// accepts connections. The caller terminates it.
func StartPostgres(ctx context.Context) (*PostgresResult, error) {
	container, err := tcpostgres.Run(ctx,
		DefaultPostgresImage,
		tcpostgres.WithDatabase(DefaultPostgresDatabase),
		tcpostgres.WithUsername(DefaultPostgresUser),
		tcpostgres.WithPassword(DefaultPostgresPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get connection string: %w", err)
	}
	return &PostgresResult{Container: container, ConnString: connStr}, nil
}

// MustStartPostgres starts PostgreSQL and terminates it when t finishes.
func MustStartPostgres(t testing.TB) *PostgresResult {
	t.Helper()
	ctx := context.Background()
	result, err := StartPostgres(ctx)
	if err != nil {
		t.Fatalf("%v", err)
	}
	t.Cleanup(func() {
		if err := result.Container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})
	return result
}

// ===========================================================================
// Redis
// ===========================================================================

// DefaultRedisImage is the Redis test container image.
const DefaultRedisImage = "docker.io/redis:7-alpine"

// RedisResult is a started Redis container. ConnString is a redis:// URI.
type RedisResult struct {
	Container  *tcredis.RedisContainer
	ConnString string
}

// StartRedis starts an unauthenticated Redis 7 container. The caller
// terminates it.
func StartRedis(ctx context.Context) (*RedisResult, error) {
	container, err := tcredis.Run(ctx, DefaultRedisImage)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start redis container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get redis connection string: %w", err)
	}
	return &RedisResult{Container: container, ConnString: connStr}, nil
}

// MustStartRedis starts Redis and terminates it when t finishes.
func MustStartRedis(t testing.TB) *RedisResult {
	t.Helper()
	ctx := context.Background()
	result, err := StartRedis(ctx)
	if err != nil {
		t.Fatalf("%v", err)
	}
	t.Cleanup(func() {
		if err := result.Container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})
	return result
}
