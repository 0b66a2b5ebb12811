package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stockapi"

// PrometheusRecorder exports metrics on its own registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	authRejected      *prometheus.CounterVec
	apiKeyCache       *prometheus.CounterVec
	quotaDecisions    *prometheus.CounterVec
	usagePublished    *prometheus.CounterVec
	usageProcessed    *prometheus.CounterVec
	usageBatchSize    prometheus.Histogram
	usageBatchLatency prometheus.Histogram
	usageQueueDepth   prometheus.Gauge
	stockEvents       *prometheus.CounterVec
}

// NewPrometheus creates a recorder with Go runtime and process collectors
// registered alongside the application metrics.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p := &PrometheusRecorder{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejected_total",
			Help:      "Requests rejected by the authentication gate",
		}, []string{"reason"}),
		apiKeyCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_key_cache_lookups_total",
			Help:      "API key identity cache lookups",
		}, []string{"result"}),
		quotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Quota accounting outcomes",
		}, []string{"outcome"}),
		usagePublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_events_published_total",
			Help:      "Usage records published to the audit stream",
		}, []string{"status"}),
		usageProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_events_processed_total",
			Help:      "Usage records processed by the audit worker",
		}, []string{"status"}),
		usageBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "usage_batch_size",
			Help:      "Usage records per persisted batch",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
		}),
		usageBatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "usage_batch_duration_seconds",
			Help:      "Time to persist a usage batch",
			Buckets:   prometheus.DefBuckets,
		}),
		usageQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "usage_queue_depth",
			Help:      "Length of the usage audit stream",
		}),
		stockEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_events_total",
			Help:      "Stock change events by type and delivery status",
		}, []string{"type", "status"}),
	}

	reg.MustRegister(
		p.httpRequests, p.httpDuration, p.authRejected, p.apiKeyCache,
		p.quotaDecisions, p.usagePublished, p.usageProcessed,
		p.usageBatchSize, p.usageBatchLatency, p.usageQueueDepth, p.stockEvents,
	)
	return p
}

// Handler serves the registry in Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry returns the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncAuthRejected(reason string) {
	p.authRejected.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncAPIKeyCacheHit()  { p.apiKeyCache.WithLabelValues("hit").Inc() }
func (p *PrometheusRecorder) IncAPIKeyCacheMiss() { p.apiKeyCache.WithLabelValues("miss").Inc() }

func (p *PrometheusRecorder) IncQuotaDecision(outcome string) {
	p.quotaDecisions.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncUsagePublished(status string) {
	p.usagePublished.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncUsageProcessed(status string) {
	p.usageProcessed.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveUsageBatchSize(size int) {
	p.usageBatchSize.Observe(float64(size))
}

func (p *PrometheusRecorder) ObserveUsageBatchDuration(d time.Duration) {
	p.usageBatchLatency.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetUsageQueueDepth(depth int64) {
	p.usageQueueDepth.Set(float64(depth))
}

func (p *PrometheusRecorder) IncStockEvent(eventType, status string) {
	p.stockEvents.WithLabelValues(eventType, status).Inc()
}
