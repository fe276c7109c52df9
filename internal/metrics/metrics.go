// Package metrics registers the node daemon's Prometheus series,
// grounded on storage-node/internal/metrics/prometheus.go's
// promauto-constructed counter/histogram/gauge group and
// api-gateway/internal/metrics' MetricsServer exposition pattern,
// generalized from storage-engine internals (memtable, SSTable,
// compaction) to the cluster-coordination-core concerns this repository
// actually owns: reads, writes, digest mismatches, repairs, hints, and
// ring mutations.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every series this node registers.
type Metrics struct {
	ReadRequestsTotal     prometheus.Counter
	ReadRequestsDuration  prometheus.Histogram
	WriteRequestsTotal    prometheus.Counter
	WriteRequestsDuration prometheus.Histogram

	DigestMismatchesTotal prometheus.Counter
	ReadRepairsTotal      prometheus.Counter

	HintsStoredTotal   prometheus.Counter
	HintsReplayedTotal prometheus.Counter
	HintQueueDepth     prometheus.Gauge

	RingMutationsTotal   *prometheus.CounterVec
	PendingRangesGauge   prometheus.Gauge
	GossipMembersHealthy prometheus.Gauge
}

// New constructs and registers Metrics for nodeID against the default
// registry, mirroring NewMetrics(nodeID)'s per-node ConstLabels.
func New(nodeID string) *Metrics {
	labels := prometheus.Labels{"node_id": nodeID}

	return &Metrics{
		ReadRequestsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "ringdb",
			Subsystem:   "coordinator",
			Name:        "read_requests_total",
			Help:        "Total number of read requests coordinated by this node",
			ConstLabels: labels,
		}),
		ReadRequestsDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "ringdb",
			Subsystem:   "coordinator",
			Name:        "read_requests_duration_seconds",
			Help:        "Histogram of read coordination durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		WriteRequestsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "ringdb",
			Subsystem:   "coordinator",
			Name:        "write_requests_total",
			Help:        "Total number of write requests coordinated by this node",
			ConstLabels: labels,
		}),
		WriteRequestsDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "ringdb",
			Subsystem:   "coordinator",
			Name:        "write_requests_duration_seconds",
			Help:        "Histogram of write coordination durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		DigestMismatchesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "ringdb",
			Subsystem:   "coordinator",
			Name:        "digest_mismatches_total",
			Help:        "Total number of read-path digest mismatches detected",
			ConstLabels: labels,
		}),
		ReadRepairsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "ringdb",
			Subsystem:   "coordinator",
			Name:        "read_repairs_total",
			Help:        "Total number of asynchronous read-repair mutations issued",
			ConstLabels: labels,
		}),
		HintsStoredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "ringdb",
			Subsystem:   "hints",
			Name:        "stored_total",
			Help:        "Total number of hints stored for down replicas",
			ConstLabels: labels,
		}),
		HintsReplayedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "ringdb",
			Subsystem:   "hints",
			Name:        "replayed_total",
			Help:        "Total number of hints successfully replayed",
			ConstLabels: labels,
		}),
		HintQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ringdb",
			Subsystem:   "hints",
			Name:        "queue_depth",
			Help:        "Current total hint count across all endpoints",
			ConstLabels: labels,
		}),
		RingMutationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ringdb",
			Subsystem:   "ring",
			Name:        "mutations_total",
			Help:        "Total number of ring topology mutations applied, by gossip state",
			ConstLabels: labels,
		}, []string{"state"}),
		PendingRangesGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ringdb",
			Subsystem:   "ring",
			Name:        "pending_ranges",
			Help:        "Current total pending-range count across all tables",
			ConstLabels: labels,
		}),
		GossipMembersHealthy: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ringdb",
			Subsystem:   "gossip",
			Name:        "members_healthy",
			Help:        "Current count of gossip members considered alive",
			ConstLabels: labels,
		}),
	}
}

// Server exposes the /metrics endpoint on its own listener, mirroring
// api-gateway's MetricsServer.
type Server struct {
	httpServer *http.Server
}

// NewServer constructs a metrics HTTP server bound to addr, serving path.
func NewServer(addr, path string) *Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Start runs the metrics server until it errors or is shut down.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
