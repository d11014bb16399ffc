// Package server runs the taskhub HTTP listener under a small lifecycle
// state machine.
//
// A [Server] is started once and stopped once. [Server.Ready] is true only
// while it is Running, which is what /readyz reports, so a load balancer
// stops routing to a replica as soon as shutdown begins. Stop drains
// in-flight requests for up to [Config.ShutdownTimeout] and then runs the
// registered stop hooks, which close the database pool and Redis client.
//
// Lifecycle operations create OpenTelemetry spans under the tracer scope
// "github.com/StricklySoft/taskhub/internal/server".
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

const tracerName = "github.com/StricklySoft/taskhub/internal/server"

// Defaults applied by [New] to zero fields of [Config].
const (
	DefaultAddr              = ":8080"
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 15 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultShutdownTimeout   = 20 * time.Second
)

// Config holds the listener settings.
type Config struct {
	Addr              string        `env:"ADDR" envDefault:":8080" yaml:"addr" json:"addr"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s" yaml:"read_header_timeout" json:"read_header_timeout"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"15s" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s" yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s" yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"20s" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// StateChangeHandler is called after every transition. Handlers run
// synchronously under the server's state lock and must not call back
// into the server. A panicking handler is recovered and logged.
type StateChangeHandler func(old, new State)

// Hook runs during Stop, after the listener has drained.
type Hook func(ctx context.Context) error

// Server is an http.Server with a lifecycle. It is safe for concurrent
// use.
type Server struct {
	cfg    Config
	http   *http.Server
	logger *slog.Logger
	tracer trace.Tracer

	// serveErr receives the error of a listener that stopped on its own.
	serveErr chan error

	mu       sync.RWMutex
	state    State
	listener net.Listener
	handlers []StateChangeHandler
	onStop   []Hook
}

// New returns an unstarted server serving handler.
func New(cfg Config, handler http.Handler, logger *slog.Logger) *Server {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		serveErr: make(chan error, 1),
		state:    StateUnknown,
	}
}

// OnStateChange registers a transition handler.
func (s *Server) OnStateChange(h StateChangeHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// OnStop registers a shutdown hook. Hooks run in reverse registration
// order, like deferred calls, so a dependency opened first closes last.
func (s *Server) OnStop(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStop = append(s.onStop, h)
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Ready reports whether the server is Running.
func (s *Server) Ready() bool { return s.State() == StateRunning }

// Health fails unless the server is Running. It has the shape of an
// HTTP health check.
func (s *Server) Health(context.Context) error {
	if st := s.State(); st != StateRunning {
		return sserr.Newf(sserr.CodeUnavailable, "server: %s", st)
	}
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

func (s *Server) setState(new State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, new) {
		return sserr.Newf(sserr.CodeConflict, "server: invalid state transition from %q to %q", old, new)
	}
	s.state = new

	for _, h := range s.handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("server: state change handler panicked",
						"panic", r,
						"old_state", old.String(),
						"new_state", new.String(),
					)
				}
			}()
			h(old, new)
		}()
	}
	return nil
}

func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("server.addr", s.cfg.Addr)),
	)
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Start opens the listener and begins serving in the background. It
// returns once the server is Running.
func (s *Server) Start(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "server.Start")
	defer span.End()

	if err := ctx.Err(); err != nil {
		failSpan(span, err)
		return sserr.Wrap(err, sserr.CodeTimeout, "server: start canceled before execution")
	}
	if err := s.setState(StateStarting); err != nil {
		failSpan(span, err)
		return err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		_ = s.setState(StateFailed)
		failSpan(span, err)
		return sserr.Wrapf(err, sserr.CodeUnavailable, "server: listen on %s", s.cfg.Addr)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	if err := s.setState(StateRunning); err != nil {
		_ = ln.Close()
		failSpan(span, err)
		return err
	}

	go func() {
		err := s.http.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			return
		}
		s.logger.Error("server: listener stopped", "error", err)
		_ = s.setState(StateFailed)
		s.serveErr <- err
	}()

	s.logger.InfoContext(ctx, "server: listening", "addr", ln.Addr().String())
	span.SetStatus(codes.Ok, "")
	return nil
}

// Stop drains in-flight requests and runs the stop hooks. Stopping a
// server that never started, or has already stopped or failed, is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "server.Stop")
	defer span.End()

	if st := s.State(); st == StateUnknown || st.IsTerminal() {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if err := ctx.Err(); err != nil {
		failSpan(span, err)
		return sserr.Wrap(err, sserr.CodeTimeout, "server: stop canceled before execution")
	}
	if err := s.setState(StateStopping); err != nil {
		failSpan(span, err)
		return err
	}
	s.logger.InfoContext(ctx, "server: shutting down", "timeout", s.cfg.ShutdownTimeout.String())

	drainCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.http.Shutdown(drainCtx); err != nil {
		s.logger.WarnContext(ctx, "server: drain incomplete, closing connections", "error", err)
		errs = append(errs, err, s.http.Close())
	}
	errs = append(errs, s.runStopHooks(ctx))

	if err := errors.Join(errs...); err != nil {
		_ = s.setState(StateFailed)
		failSpan(span, err)
		return sserr.Wrap(err, sserr.CodeInternal, "server: shutdown incomplete")
	}
	if err := s.setState(StateStopped); err != nil {
		failSpan(span, err)
		return err
	}
	s.logger.InfoContext(ctx, "server: stopped")
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *Server) runStopHooks(ctx context.Context) error {
	s.mu.RLock()
	hooks := make([]Hook, len(s.onStop))
	copy(hooks, s.onStop)
	s.mu.RUnlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			s.logger.ErrorContext(ctx, "server: stop hook failed", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run starts the server and blocks until ctx is done or the listener
// fails, then shuts down. Shutdown gets its own ShutdownTimeout budget,
// independent of ctx.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-s.serveErr:
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	if serveErr != nil {
		hookErr := s.runStopHooks(stopCtx)
		return sserr.Wrap(errors.Join(serveErr, hookErr), sserr.CodeInternal, "server: listener stopped unexpectedly")
	}
	return s.Stop(stopCtx)
}
