// Package metrics holds the Prometheus collectors of one replica node.
// Every node owns its own registry so several nodes can share a process.
// All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "viewsync"

type Metrics struct {
	registry *prometheus.Registry

	viewsRecorded  prometheus.Counter
	ingestRetries  prometheus.Counter
	rowsMerged     *prometheus.CounterVec
	exchanges      *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	peerHealth     *prometheus.GaugeVec
	viewsFlushed   prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	activeRequests prometheus.Gauge
}

// New creates a registry labelled with the replica id. withRuntime adds the Go
// and process collectors, which only make sense once per process.
func New(replicaID string, withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"replica": replicaID}

	m := &Metrics{
		registry: reg,
		viewsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "views_recorded_total",
			Help: "Views recorded on the local replica row", ConstLabels: constLabels,
		}),
		ingestRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ingest_cas_retries_total",
			Help: "Increment attempts lost to a concurrent writer", ConstLabels: constLabels,
		}),
		rowsMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rows_merged_total",
			Help: "Rows changed by merging peer snapshots", ConstLabels: constLabels,
		}, []string{"direction"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sync_exchanges_total",
			Help: "Anti-entropy exchanges by peer and result", ConstLabels: constLabels,
		}, []string{"peer", "result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sync_cycle_duration_seconds",
			Help: "Duration of one sync cycle", ConstLabels: constLabels,
			Buckets: prometheus.DefBuckets,
		}),
		peerHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "peer_health",
			Help: "Peer health state (0 healthy, 1 suspect, 2 unhealthy)", ConstLabels: constLabels,
		}, []string{"peer"}),
		viewsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "views_flushed_total",
			Help: "Video totals written to the catalog database", ConstLabels: constLabels,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "Total number of HTTP requests", ConstLabels: constLabels,
		}, []string{"method", "endpoint", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help: "HTTP request duration in seconds", ConstLabels: constLabels,
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "http_active_requests",
			Help: "Number of in-flight HTTP requests", ConstLabels: constLabels,
		}),
	}

	reg.MustRegister(
		m.viewsRecorded, m.ingestRetries, m.rowsMerged, m.exchanges,
		m.cycleDuration, m.peerHealth, m.viewsFlushed,
		m.httpRequests, m.httpDuration, m.activeRequests,
	)
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ViewRecorded() {
	if m == nil {
		return
	}
	m.viewsRecorded.Inc()
}

func (m *Metrics) IngestRetry() {
	if m == nil {
		return
	}
	m.ingestRetries.Inc()
}

// RowsMerged counts rows changed by a merge. direction is "pull" for rows
// received in a reply and "push" for rows received from a caller.
func (m *Metrics) RowsMerged(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsMerged.WithLabelValues(direction).Add(float64(n))
}

func (m *Metrics) Exchange(peerID, result string) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(peerID, result).Inc()
}

func (m *Metrics) CycleDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) PeerHealth(peerID string, state int) {
	if m == nil {
		return
	}
	m.peerHealth.WithLabelValues(peerID).Set(float64(state))
}

func (m *Metrics) ForgetPeer(peerID string) {
	if m == nil {
		return
	}
	m.peerHealth.DeleteLabelValues(peerID)
}

func (m *Metrics) ViewsFlushed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.viewsFlushed.Add(float64(n))
}

// Middleware records request counts and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		m.activeRequests.Inc()
		defer m.activeRequests.Dec()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequests.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves this node's registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
