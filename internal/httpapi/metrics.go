package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests that matched no route, so arbitrary
// paths cannot grow label cardinality.
const unmatchedRoute = "unmatched"

// Metrics records HTTP request counts, latency and in-flight requests.
// Routes are labelled by their chi pattern, never by the raw path. A nil
// *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

// NewMetrics creates the HTTP collectors and registers them with reg.
// Collectors already registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskhub",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskhub",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
	inflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskhub",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "HTTP requests currently being served.",
	})

	c, err := registerCollector(reg, requests)
	if err != nil {
		return nil, err
	}
	m.requests = c.(*prometheus.CounterVec)
	if c, err = registerCollector(reg, duration); err != nil {
		return nil, err
	}
	m.duration = c.(*prometheus.HistogramVec)
	if c, err = registerCollector(reg, inflight); err != nil {
		return nil, err
	}
	m.inflight = c.(prometheus.Gauge)
	return m, nil
}

// registerCollector registers c, returning the existing collector when an
// identical one is already registered.
func registerCollector(reg prometheus.Registerer, c prometheus.Collector) (prometheus.Collector, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector, nil
		}
		return nil, err
	}
	return c, nil
}

// Middleware instruments next. It must be installed on the root router so
// the route pattern is complete once the request has been served.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inflight.Inc()
		defer m.inflight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

// poolCollector exports pgxpool connection gauges.
type poolCollector struct {
	stat func() *pgxpool.Stat

	acquired *prometheus.Desc
	idle     *prometheus.Desc
	total    *prometheus.Desc
	max      *prometheus.Desc
}

// NewPoolCollector returns a collector reading stat on every scrape.
func NewPoolCollector(stat func() *pgxpool.Stat) prometheus.Collector {
	return &poolCollector{
		stat:     stat,
		acquired: prometheus.NewDesc("taskhub_pgxpool_acquired_conns", "Connections currently in use.", nil, nil),
		idle:     prometheus.NewDesc("taskhub_pgxpool_idle_conns", "Idle connections.", nil, nil),
		total:    prometheus.NewDesc("taskhub_pgxpool_total_conns", "Open connections.", nil, nil),
		max:      prometheus.NewDesc("taskhub_pgxpool_max_conns", "Configured pool size.", nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquired
	ch <- c.idle
	ch <- c.total
	ch <- c.max
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stat()
	if s == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.MaxConns()))
}
