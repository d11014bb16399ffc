// Command taskhub serves the project and task API.
//
// Configuration comes from TASKHUB_* environment variables, optionally
// layered over the YAML or JSON file named by TASKHUB_CONFIG:
//
//	TASKHUB_AUTH_REGION=eu-west-1 \
//	TASKHUB_AUTH_USER_POOL_ID=eu-west-1_AbCdEf123 \
//	TASKHUB_STORE_DRIVER=memory \
//	go run ./cmd/taskhub
//
// The process stops gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/StricklySoft/taskhub/internal/httpapi"
	"github.com/StricklySoft/taskhub/internal/server"
	"github.com/StricklySoft/taskhub/internal/service"
	"github.com/StricklySoft/taskhub/internal/store/memstore"
	"github.com/StricklySoft/taskhub/internal/store/pgstore"
	"github.com/StricklySoft/taskhub/pkg/auth"
	"github.com/StricklySoft/taskhub/pkg/clients/postgres"
	"github.com/StricklySoft/taskhub/pkg/clients/redis"
	"github.com/StricklySoft/taskhub/pkg/config"
	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

// refreshKeyPrefix namespaces the shared key-refresh counter in Redis.
const refreshKeyPrefix = "taskhub:jwks-refresh"

func main() {
	cfg := config.MustLoad[AppConfig](
		config.New().WithEnvPrefix("TASKHUB").WithFile(os.Getenv("TASKHUB_CONFIG")),
	)
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("taskhub: exiting", "error", err, "code", sserr.GetCode(err).String())
		os.Exit(1)
	}
}

// deps is what run opens before serving. closers run on shutdown.
type deps struct {
	stores  service.Stores
	checks  []httpapi.HealthCheck
	limiter auth.RefreshLimiter
	closers []server.Hook
}

func run(ctx context.Context, cfg AppConfig, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d := &deps{}
	if err := openStore(ctx, cfg, reg, logger, d); err != nil {
		d.close(ctx, logger)
		return err
	}
	if err := openLimiter(ctx, cfg, logger, d); err != nil {
		d.close(ctx, logger)
		return err
	}

	var srv *server.Server
	handler, verifier, err := newHandler(cfg, d, reg, logger,
		func() bool { return srv.Ready() },
		func(ctx context.Context) error { return srv.Health(ctx) },
	)
	if err != nil {
		d.close(ctx, logger)
		return err
	}

	srv = server.New(cfg.HTTP, handler, logger)
	for _, c := range d.closers {
		srv.OnStop(c)
	}
	srv.OnStateChange(func(old, new server.State) {
		logger.Info("taskhub: state changed", "from", old.String(), "to", new.String())
	})

	logger.InfoContext(ctx, "taskhub: starting",
		"addr", cfg.HTTP.Addr,
		"store", cfg.Store.Driver,
		"issuer", verifier.Issuer(),
		"refresh_limiter", cfg.Auth.RefreshLimiter,
	)
	return srv.Run(ctx)
}

// newHandler assembles the auth chain and the API router over d. ready
// and health report on the server that will serve the handler; health is
// added to /healthz as the "server" check.
func newHandler(
	cfg AppConfig,
	d *deps,
	reg *prometheus.Registry,
	logger *slog.Logger,
	ready func() bool,
	health func(context.Context) error,
) (http.Handler, *auth.Verifier, error) {
	authMetrics, err := auth.NewMetrics(reg)
	if err != nil {
		return nil, nil, err
	}
	httpMetrics, err := httpapi.NewMetrics(reg)
	if err != nil {
		return nil, nil, err
	}

	keys := auth.NewKeyCache(auth.KeyCacheConfig{
		URL:          cfg.Auth.KeySetURL(),
		TTL:          cfg.Auth.KeyCacheTTL,
		Capacity:     cfg.Auth.KeyCacheCapacity,
		FetchTimeout: cfg.Auth.FetchTimeout,
		Limiter:      d.limiter,
		Metrics:      authMetrics,
		Logger:       logger,
	})
	verifier := auth.NewVerifier(keys, cfg.Auth.Issuer(), cfg.Auth.ClockSkew)
	guard := auth.NewGuard(d.stores.Users, logger, authMetrics)

	checks := append([]httpapi.HealthCheck{{Name: "server", Check: health}}, d.checks...)
	router := httpapi.NewRouter(httpapi.Deps{
		Authenticator: auth.NewAuthenticator(verifier, logger, authMetrics),
		Users:         service.NewUsers(guard, d.stores.Users),
		Projects:      service.NewProjects(guard, d.stores, logger),
		Tasks:         service.NewTasks(guard, d.stores, logger),
		Logger:        logger,
		Metrics:       httpMetrics,
		Gatherer:      reg,
		HealthChecks:  checks,
		Ready:         ready,
	})
	return router, verifier, nil
}

func openStore(ctx context.Context, cfg AppConfig, reg prometheus.Registerer, logger *slog.Logger, d *deps) error {
	if cfg.Store.Driver == DriverMemory {
		s := memstore.New()
		d.stores = service.Stores{Users: s.Users(), Projects: s.Projects(), Tasks: s.Tasks()}
		logger.WarnContext(ctx, "taskhub: using in-memory store, data is lost on exit")
		return nil
	}

	db, err := postgres.NewClient(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	d.closers = append(d.closers, func(context.Context) error {
		db.Close()
		return nil
	})
	if err := pgstore.Migrate(ctx, db); err != nil {
		return err
	}
	if pool, ok := db.Pool().(*pgxpool.Pool); ok {
		if err := reg.Register(httpapi.NewPoolCollector(pool.Stat)); err != nil {
			return sserr.Wrap(err, sserr.CodeInternal, "taskhub: register pool metrics")
		}
	}
	d.stores = service.Stores{
		Users:    pgstore.NewUsers(db),
		Projects: pgstore.NewProjects(db),
		Tasks:    pgstore.NewTasks(db),
	}
	d.checks = append(d.checks, httpapi.HealthCheck{Name: "postgres", Check: db.Health})
	return nil
}

func openLimiter(ctx context.Context, cfg AppConfig, logger *slog.Logger, d *deps) error {
	local := auth.NewLocalRefreshLimiter(cfg.Auth.RefreshLimit, cfg.Auth.RefreshWindow)
	if cfg.Auth.RefreshLimiter != auth.LimiterRedis {
		d.limiter = local
		return nil
	}

	rc, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	d.closers = append(d.closers, func(context.Context) error { return rc.Close() })
	d.checks = append(d.checks, httpapi.HealthCheck{Name: "redis", Check: rc.Health})
	d.limiter = auth.NewRedisRefreshLimiter(rc, refreshKeyPrefix,
		cfg.Auth.RefreshLimit, cfg.Auth.RefreshWindow, local, logger)
	return nil
}

// close runs the closers of a partially opened deps in reverse.
func (d *deps) close(ctx context.Context, logger *slog.Logger) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			logger.WarnContext(ctx, "taskhub: close failed", "error", err)
		}
	}
}
