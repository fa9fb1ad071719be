package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds every metric the planner records.
type AppMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// gRPC
	RPCRequestsTotal   CounterVec
	RPCRequestDuration HistogramVec

	// Simulation
	SimulationRunsTotal    CounterVec
	SimulationRunDuration  HistogramVec
	ElementsAddedTotal     CounterVec
	StreamSubscribers      GaugeVec
	ReportExportsTotal     CounterVec
	PlanningEventsTotal    CounterVec
	CacheLookupsTotal      CounterVec
	ErrorsTotal            CounterVec
	BuildInfo              GaugeVec
	ServiceStartTimeSecond GaugeVec
}

var (
	DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	// Runs range from milliseconds for short horizons to tens of seconds.
	DefaultRunDurationBuckets = []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}
)

// NewAppMetrics registers all metrics on c.
func NewAppMetrics(c MetricsCollector) *AppMetrics {
	m := &AppMetrics{
		HTTPRequestsTotal:   c.RegisterCounter("http_requests_total", "Total HTTP requests.", "method", "route", "status"),
		HTTPRequestDuration: c.RegisterHistogram("http_request_duration_seconds", "HTTP request latency.", DefaultHTTPDurationBuckets, "method", "route"),
		HTTPActiveRequests:  c.RegisterGauge("http_active_requests", "HTTP requests in flight."),

		RPCRequestsTotal:   c.RegisterCounter("grpc_requests_total", "Handled gRPC calls.", "service", "method", "code"),
		RPCRequestDuration: c.RegisterHistogram("grpc_request_duration_seconds", "gRPC call latency.", DefaultHTTPDurationBuckets, "service", "method"),

		SimulationRunsTotal:   c.RegisterCounter("simulation_runs_total", "Finished simulation runs by status.", "status"),
		SimulationRunDuration: c.RegisterHistogram("simulation_run_duration_seconds", "Wall time of simulation runs.", DefaultRunDurationBuckets, "status"),
		ElementsAddedTotal:    c.RegisterCounter("elements_added_total", "Terminal elements added by the planner.", "kind"),
		StreamSubscribers:     c.RegisterGauge("stream_subscribers", "Connected live-stream clients."),
		ReportExportsTotal:    c.RegisterCounter("report_exports_total", "Report export attempts by result.", "result"),
		PlanningEventsTotal:   c.RegisterCounter("planning_events_published_total", "Planning events published by type.", "event_type"),
		CacheLookupsTotal:     c.RegisterCounter("cache_lookups_total", "Result cache lookups by outcome.", "result"),
		ErrorsTotal:           c.RegisterCounter("errors_total", "Errors by code.", "code"),

		BuildInfo:              c.RegisterGauge("build_info", "Build information.", "version", "commit"),
		ServiceStartTimeSecond: c.RegisterGauge("start_time_seconds", "Unix time the service started."),
	}
	m.ServiceStartTimeSecond.WithLabelValues().Set(float64(time.Now().Unix()))
	return m
}

// ObserveRun records a finished run.
func (m *AppMetrics) ObserveRun(status string, d time.Duration) {
	m.SimulationRunsTotal.WithLabelValues(status).Inc()
	m.SimulationRunDuration.WithLabelValues(status).Observe(d.Seconds())
}

// IncElementsAdded counts n elements of kind.
func (m *AppMetrics) IncElementsAdded(kind string, n int) {
	if n <= 0 {
		return
	}
	m.ElementsAddedTotal.WithLabelValues(kind).Add(float64(n))
}

// IncCacheLookup counts a cache hit or miss.
func (m *AppMetrics) IncCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTP records one handled request. route is the matched route
// template, never the raw path.
func (m *AppMetrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveRPC records one finished unary call or stream. code is the gRPC
// status code name.
func (m *AppMetrics) ObserveRPC(service, method, code string, d time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(service, method, code).Inc()
	m.RPCRequestDuration.WithLabelValues(service, method).Observe(d.Seconds())
}

// TrackActive counts a request in flight until the returned func is called.
func (m *AppMetrics) TrackActive() func() {
	g := m.HTTPActiveRequests.WithLabelValues()
	g.Inc()
	return g.Dec
}

func (m *AppMetrics) RecordExport(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.ReportExportsTotal.WithLabelValues(result).Inc()
}

func (m *AppMetrics) RecordEvent(eventType string) {
	m.PlanningEventsTotal.WithLabelValues(eventType).Inc()
}

func (m *AppMetrics) RecordError(code string) {
	m.ErrorsTotal.WithLabelValues(code).Inc()
}

// SetBuildInfo publishes the running version.
func (m *AppMetrics) SetBuildInfo(version, commit string) {
	m.BuildInfo.WithLabelValues(version, commit).Set(1)
}
