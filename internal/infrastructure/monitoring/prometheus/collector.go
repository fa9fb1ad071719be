// Package prometheus exposes planner metrics through a private Prometheus
// registry.
package prometheus

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// MetricsCollector creates labelled metric vectors on one registry and serves
// the registry over HTTP.
type MetricsCollector interface {
	RegisterCounter(name, help string, labels ...string) CounterVec
	RegisterGauge(name, help string, labels ...string) GaugeVec
	RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec
	Handler() http.Handler
}

// Metric handles returned by the vectors. They are satisfied by the
// client_golang types and by a no-op used when registration fails.
type (
	Counter interface {
		Inc()
		Add(delta float64)
	}
	Gauge interface {
		Counter
		Set(value float64)
		Dec()
	}
	Histogram interface {
		Observe(value float64)
	}

	CounterVec   interface{ WithLabelValues(lvs ...string) Counter }
	GaugeVec     interface{ WithLabelValues(lvs ...string) Gauge }
	HistogramVec interface {
		WithLabelValues(lvs ...string) Histogram
	}
)

// CollectorConfig names the metrics and picks the runtime collectors.
type CollectorConfig struct {
	Namespace            string
	Subsystem            string
	EnableProcessMetrics bool
	EnableGoMetrics      bool
	// DefaultHistogramBuckets applies when RegisterHistogram gets nil buckets.
	DefaultHistogramBuckets []float64
	ConstLabels             map[string]string
}

type prometheusCollector struct {
	cfg      CollectorConfig
	registry *prometheus.Registry
	logger   logging.Logger

	mu   sync.Mutex
	vecs map[string]prometheus.Collector // by fully qualified name
}

// NewMetricsCollector creates a collector with its own registry.
func NewMetricsCollector(cfg CollectorConfig, logger logging.Logger) (MetricsCollector, error) {
	if cfg.Namespace == "" {
		return nil, errors.New(errors.ErrCodeValidation, "metrics namespace is required")
	}
	if cfg.DefaultHistogramBuckets == nil {
		cfg.DefaultHistogramBuckets = prometheus.DefBuckets
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	reg := prometheus.NewRegistry()
	var runtime []prometheus.Collector
	if cfg.EnableProcessMetrics {
		runtime = append(runtime, collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: cfg.Namespace}))
	}
	if cfg.EnableGoMetrics {
		runtime = append(runtime, collectors.NewGoCollector())
	}
	for _, rc := range runtime {
		if err := reg.Register(rc); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "register runtime collector")
		}
	}
	return &prometheusCollector{cfg: cfg, registry: reg, logger: logger, vecs: map[string]prometheus.Collector{}}, nil
}

func (c *prometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (c *prometheusCollector) opts(name, help string) prometheus.Opts {
	return prometheus.Opts{
		Namespace:   c.cfg.Namespace,
		Subsystem:   c.cfg.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.cfg.ConstLabels,
	}
}

// register adds v under name, or returns the vector registered earlier under
// the same name so repeated registrations share it. ok is false when the
// registry refuses v or the earlier vector is of another type.
func register[V prometheus.Collector](c *prometheusCollector, name string, v V) (_ V, ok bool) {
	fq := prometheus.BuildFQName(c.cfg.Namespace, c.cfg.Subsystem, name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, found := c.vecs[fq]; found {
		typed, same := prev.(V)
		if !same {
			c.logger.Warn("metric registered with another type", logging.String("name", fq))
		}
		return typed, same
	}
	if err := c.registry.Register(v); err != nil {
		c.logger.Error("metric registration failed", logging.String("name", fq), logging.Err(err))
		return v, false
	}
	c.vecs[fq] = v
	return v, true
}

func (c *prometheusCollector) RegisterCounter(name, help string, labels ...string) CounterVec {
	v, ok := register(c, name, prometheus.NewCounterVec(prometheus.CounterOpts(c.opts(name, help)), labels))
	if !ok {
		return vec[Counter]{with: func(...string) Counter { return noop{} }}
	}
	return vec[Counter]{with: func(lvs ...string) Counter { return v.WithLabelValues(lvs...) }}
}

func (c *prometheusCollector) RegisterGauge(name, help string, labels ...string) GaugeVec {
	v, ok := register(c, name, prometheus.NewGaugeVec(prometheus.GaugeOpts(c.opts(name, help)), labels))
	if !ok {
		return vec[Gauge]{with: func(...string) Gauge { return noop{} }}
	}
	return vec[Gauge]{with: func(lvs ...string) Gauge { return v.WithLabelValues(lvs...) }}
}

func (c *prometheusCollector) RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec {
	if buckets == nil {
		buckets = c.cfg.DefaultHistogramBuckets
	}
	o := c.opts(name, help)
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   o.Namespace,
		Subsystem:   o.Subsystem,
		Name:        o.Name,
		Help:        o.Help,
		ConstLabels: o.ConstLabels,
		Buckets:     buckets,
	}, labels)
	v, ok := register(c, name, hv)
	if !ok {
		return vec[Histogram]{with: func(...string) Histogram { return noop{} }}
	}
	return vec[Histogram]{with: func(lvs ...string) Histogram { return v.WithLabelValues(lvs...) }}
}

// vec adapts a client_golang vector, or the no-op, to the handle interfaces.
type vec[M any] struct {
	with func(lvs ...string) M
}

func (v vec[M]) WithLabelValues(lvs ...string) M { return v.with(lvs...) }

type noop struct{}

func (noop) Inc()            {}
func (noop) Dec()            {}
func (noop) Add(float64)     {}
func (noop) Set(float64)     {}
func (noop) Observe(float64) {}
