package synet

import (
	"sync/atomic"
	"time"
)

// MetricsCollector receives operational metrics from a Network. Implement
// it to integrate with monitoring systems; PrometheusMetricsCollector is
// provided for the common case. Implementations must be safe for
// concurrent use.
type MetricsCollector interface {
	// RecordConnect is called after each bulk or single connect.
	// created is the number of edges stored on this rank.
	RecordConnect(created int, duration time.Duration, err error)

	// RecordDisconnect is called after each disconnect or retraction.
	// removed is the number of edges tombstoned.
	RecordDisconnect(removed int, duration time.Duration, err error)

	// RecordRebuild is called after each routing-table rebuild with the
	// number of collective rounds and the resulting table size.
	RecordRebuild(rounds, tableEntries int, duration time.Duration, err error)

	// RecordQuery is called after each Connections query.
	RecordQuery(results int, duration time.Duration, err error)

	// RecordPlasticityStep is called after each structural plasticity
	// update with the number of edges grown on this rank.
	RecordPlasticityStep(created int, duration time.Duration, err error)
}

// NoopMetricsCollector discards all metrics.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordConnect(int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordDisconnect(int, time.Duration, error)     {}
func (NoopMetricsCollector) RecordRebuild(int, int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordQuery(int, time.Duration, error)          {}
func (NoopMetricsCollector) RecordPlasticityStep(int, time.Duration, error) {}

// BasicMetricsCollector keeps in-memory counters. Useful for debugging and
// tests without external dependencies.
type BasicMetricsCollector struct {
	ConnectCount     atomic.Int64
	ConnectErrors    atomic.Int64
	EdgesCreated     atomic.Int64
	DisconnectCount  atomic.Int64
	EdgesRemoved     atomic.Int64
	RebuildCount     atomic.Int64
	RebuildErrors    atomic.Int64
	RebuildRounds    atomic.Int64
	TableEntries     atomic.Int64
	QueryCount       atomic.Int64
	QueryResults     atomic.Int64
	PlasticitySteps  atomic.Int64
	PlasticityGrowth atomic.Int64
}

// RecordConnect implements MetricsCollector.
func (b *BasicMetricsCollector) RecordConnect(created int, _ time.Duration, err error) {
	b.ConnectCount.Add(1)
	b.EdgesCreated.Add(int64(created))
	if err != nil {
		b.ConnectErrors.Add(1)
	}
}

// RecordDisconnect implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDisconnect(removed int, _ time.Duration, _ error) {
	b.DisconnectCount.Add(1)
	b.EdgesRemoved.Add(int64(removed))
}

// RecordRebuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRebuild(rounds, tableEntries int, _ time.Duration, err error) {
	b.RebuildCount.Add(1)
	b.RebuildRounds.Add(int64(rounds))
	b.TableEntries.Store(int64(tableEntries))
	if err != nil {
		b.RebuildErrors.Add(1)
	}
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(results int, _ time.Duration, _ error) {
	b.QueryCount.Add(1)
	b.QueryResults.Add(int64(results))
}

// RecordPlasticityStep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPlasticityStep(created int, _ time.Duration, _ error) {
	b.PlasticitySteps.Add(1)
	b.PlasticityGrowth.Add(int64(created))
}
