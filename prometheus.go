package synet

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector exports network metrics through a Prometheus
// registry.
type PrometheusMetricsCollector struct {
	connects      *prometheus.CounterVec
	edgesCreated  prometheus.Counter
	edgesRemoved  prometheus.Counter
	rebuilds      *prometheus.CounterVec
	rebuildRounds prometheus.Histogram
	tableEntries  prometheus.Gauge
	queries       prometheus.Counter
	queryDuration prometheus.Histogram
	growth        prometheus.Counter
}

// NewPrometheusMetricsCollector creates a collector and registers its
// metrics with reg (prometheus.DefaultRegisterer when nil).
func NewPrometheusMetricsCollector(reg prometheus.Registerer) (*PrometheusMetricsCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &PrometheusMetricsCollector{
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synet",
			Name:      "connect_requests_total",
			Help:      "Connect requests, by outcome.",
		}, []string{"outcome"}),
		edgesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synet",
			Name:      "edges_created_total",
			Help:      "Edges stored on this rank.",
		}),
		edgesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synet",
			Name:      "edges_removed_total",
			Help:      "Edges tombstoned on this rank.",
		}),
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synet",
			Name:      "routing_rebuilds_total",
			Help:      "Routing table rebuilds, by outcome.",
		}, []string{"outcome"}),
		rebuildRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "synet",
			Name:      "rebuild_exchange_rounds",
			Help:      "Collective rounds per routing rebuild.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		tableEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "synet",
			Name:      "routing_table_entries",
			Help:      "Entries in the current routing table.",
		}),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synet",
			Name:      "connection_queries_total",
			Help:      "Connections queries served.",
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "synet",
			Name:      "connection_query_seconds",
			Help:      "Connections query latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		growth: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synet",
			Name:      "plasticity_edges_grown_total",
			Help:      "Edges grown by structural plasticity on this rank.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.connects, c.edgesCreated, c.edgesRemoved, c.rebuilds,
		c.rebuildRounds, c.tableEntries, c.queries, c.queryDuration,
		c.growth,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordConnect implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordConnect(created int, _ time.Duration, err error) {
	c.connects.WithLabelValues(outcome(err)).Inc()
	c.edgesCreated.Add(float64(created))
}

// RecordDisconnect implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordDisconnect(removed int, _ time.Duration, _ error) {
	c.edgesRemoved.Add(float64(removed))
}

// RecordRebuild implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordRebuild(rounds, tableEntries int, _ time.Duration, err error) {
	c.rebuilds.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		c.rebuildRounds.Observe(float64(rounds))
		c.tableEntries.Set(float64(tableEntries))
	}
}

// RecordQuery implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordQuery(_ int, duration time.Duration, _ error) {
	c.queries.Inc()
	c.queryDuration.Observe(duration.Seconds())
}

// RecordPlasticityStep implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordPlasticityStep(created int, _ time.Duration, _ error) {
	c.growth.Add(float64(created))
}
