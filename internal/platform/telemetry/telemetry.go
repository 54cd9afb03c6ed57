// Package telemetry exposes Prometheus metrics for the scoring service: HTTP
// request counts and latencies, scoring outcomes per rule table and database
// pool gauges. Codes, categories and scores are never recorded.
package telemetry

import (
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "comorbidity"

// Config holds telemetry settings.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// RuntimeMetrics adds Go runtime and process collectors.
	RuntimeMetrics bool
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "comorbidity"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

var durationBuckets = []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

// Provider owns a metrics registry and the collectors registered on it.
type Provider struct {
	cfg Config
	reg *prometheus.Registry

	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	active     prometheus.Gauge
	scores     *prometheus.CounterVec
	batchItems prometheus.Histogram
	batchFails prometheus.Counter
}

func NewProvider(cfg Config) *Provider {
	cfg.applyDefaults()
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": cfg.ServiceName, "env": cfg.Environment}

	p := &Provider{
		cfg: cfg,
		reg: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "HTTP requests by method, route and status.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency by method and route.",
			Buckets:     durationBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "http_active_requests",
			Help:        "Requests currently being served.",
			ConstLabels: constLabels,
		}),
		scores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "score_evaluations_total",
			Help:        "Score evaluations by scheme, code version and outcome.",
			ConstLabels: constLabels,
		}, []string{"scheme", "version", "outcome"}),
		batchItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "batch_items",
			Help:        "Items per batch request.",
			Buckets:     prometheus.ExponentialBuckets(1, 4, 6),
			ConstLabels: constLabels,
		}),
		batchFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "batch_item_failures_total",
			Help:        "Batch items that could not be scored.",
			ConstLabels: constLabels,
		}),
	}

	reg.MustRegister(p.requests, p.duration, p.active, p.scores, p.batchItems, p.batchFails)
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Build information.",
		ConstLabels: prometheus.Labels{"service": cfg.ServiceName, "version": cfg.ServiceVersion},
	}, func() float64 { return 1 }))
	if cfg.RuntimeMetrics {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return p
}

// Registry returns the registry backing the provider.
func (p *Provider) Registry() *prometheus.Registry { return p.reg }

// ObserveScore counts one evaluation.
func (p *Provider) ObserveScore(scheme, version, outcome string) {
	p.scores.WithLabelValues(scheme, version, outcome).Inc()
}

// ObserveBatch records the size of a batch and how many of its items failed.
func (p *Provider) ObserveBatch(items, failed int) {
	p.batchItems.Observe(float64(items))
	p.batchFails.Add(float64(failed))
}

// RegisterPool exposes connection pool gauges for pool.
func (p *Provider) RegisterPool(pool *pgxpool.Pool) error {
	gauges := []struct {
		name, help string
		fn         func(*pgxpool.Stat) float64
	}{
		{"db_pool_total_connections", "Open connections in the pool.", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }},
		{"db_pool_idle_connections", "Idle connections in the pool.", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }},
		{"db_pool_acquired_connections", "Connections currently in use.", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }},
		{"db_pool_max_connections", "Maximum pool size.", func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }},
	}
	for _, g := range gauges {
		fn := g.fn
		err := p.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      g.name,
			Help:      g.help,
		}, func() float64 { return fn(pool.Stat()) }))
		if err != nil {
			return err
		}
	}
	return nil
}

// MetricsMiddleware records request counts and latencies by route pattern.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.active.Inc()
			defer p.active.Dec()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			p.duration.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
			p.requests.WithLabelValues(req.Method, route, strconv.Itoa(c.Response().Status)).Inc()
			return nil
		}
	}
}

// PrometheusHandler serves the registry in the Prometheus exposition format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg}))
}
