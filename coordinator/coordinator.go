// Package coordinator orchestrates the connection infrastructure: it
// validates connect requests, dispatches builders into thread-parallel
// regions, tracks topology dirtiness, rebuilds routing tables through the
// distributed exchange and serves introspection queries.
//
// Partial-commit semantics: a bulk Connect runs every thread to completion
// and aggregates their errors afterwards. Edges committed by threads that
// did not fail remain in place; there is no rollback. Callers that need
// atomicity must validate inputs up front.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nest/nest-simulator-sub010/builder"
	"github.com/nest/nest-simulator-sub010/delay"
	"github.com/nest/nest-simulator-sub010/device"
	"github.com/nest/nest-simulator-sub010/exchange"
	"github.com/nest/nest-simulator-sub010/model"
	"github.com/nest/nest-simulator-sub010/node"
	"github.com/nest/nest-simulator-sub010/routing"
	"github.com/nest/nest-simulator-sub010/store"
	"github.com/nest/nest-simulator-sub010/synapse"
	"github.com/nest/nest-simulator-sub010/vp"
)

// ErrNotFound is returned by Disconnect when the edge does not exist.
var ErrNotFound = errors.New("coordinator: connection not found")

// ErrStale is returned by delivery helpers while the topology is dirty.
var ErrStale = errors.New("coordinator: routing tables are stale, rebuild required")

// BuildError aggregates per-thread failures of one bulk connect. Edges
// committed by other threads before the failure remain stored.
type BuildError struct {
	Rule string
	Errs []error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("coordinator: rule %q failed on %d thread(s): %v",
		e.Rule, len(e.Errs), errors.Join(e.Errs...))
}

// Unwrap exposes the per-thread causes to errors.Is/As.
func (e *BuildError) Unwrap() []error { return e.Errs }

// Metrics receives counters from the coordinator. Implementations must be
// safe for concurrent use; they are called from parallel build regions.
type Metrics interface {
	ConnectionsCreated(n int)
	ConnectionsDisabled(n int)
	RebuildObserved(rounds, tableEntries int)
	QueryObserved(results int)
}

type noopMetrics struct{}

func (noopMetrics) ConnectionsCreated(int)   {}
func (noopMetrics) ConnectionsDisabled(int)  {}
func (noopMetrics) RebuildObserved(int, int) {}
func (noopMetrics) QueryObserved(int)        {}

// NoopMetrics discards everything.
func NoopMetrics() Metrics { return noopMetrics{} }

// Config assembles the coordinator's collaborators.
type Config struct {
	Layout   vp.Layout
	Comm     exchange.Communicator
	Checker  *delay.Checker
	Synapses *synapse.Registry
	Rules    *builder.Registry
	Nodes    node.Lookup

	// Seed drives all probabilistic builders. Every rank must use the
	// same value.
	Seed uint64

	// ExchangeChunk is the per-rank record budget of one exchange round.
	ExchangeChunk int

	Logger  *slog.Logger
	Metrics Metrics
}

// Coordinator is the per-rank orchestrator. Bulk operations (Connect,
// Rebuild, queries, sort/compact) are collective and must be called in the
// same order on every rank; they serialize internally.
type Coordinator struct {
	layout   vp.Layout
	rank     int
	comm     exchange.Communicator
	checker  *delay.Checker
	synapses *synapse.Registry
	rules    *builder.Registry
	nodes    node.Lookup
	seed     uint64
	logger   *slog.Logger
	metrics  Metrics

	st      *store.Store
	devices *device.Table
	cm      *routing.Map
	soc     *routing.SecondaryOffsetCache
	proto   *exchange.Protocol

	table atomic.Pointer[routing.Table]
	dirty atomic.Bool
	seq   atomic.Uint64
}

// New creates a coordinator for one rank.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Checker == nil {
		return nil, delay.ErrInvalidResolution
	}
	if cfg.Comm == nil {
		cfg.Comm = exchange.Single()
	}
	if cfg.Rules == nil {
		cfg.Rules = builder.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetrics()
	}
	threads := cfg.Layout.ThreadsPerRank()
	if cfg.ExchangeChunk < threads {
		cfg.ExchangeChunk = 64 * threads
	}

	proto, err := exchange.NewProtocol(cfg.Comm, cfg.Layout, cfg.ExchangeChunk, cfg.Logger)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		layout:   cfg.Layout,
		rank:     cfg.Comm.Rank(),
		comm:     cfg.Comm,
		checker:  cfg.Checker,
		synapses: cfg.Synapses,
		rules:    cfg.Rules,
		nodes:    cfg.Nodes,
		seed:     cfg.Seed,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		st:       store.New(threads),
		devices:  device.NewTable(threads),
		cm:       routing.NewMap(threads),
		soc:      routing.NewSecondaryOffsetCache(),
		proto:    proto,
	}
	c.table.Store(routing.NewTable(threads))
	return c, nil
}

// Rank returns this coordinator's rank.
func (c *Coordinator) Rank() int { return c.rank }

// Store exposes the connection storage for read-only inspection.
func (c *Coordinator) Store() *store.Store { return c.st }

// Devices exposes the device connection table for read-only inspection.
func (c *Coordinator) Devices() *device.Table { return c.devices }

// Table returns the current routing table. Delivery reads it directly; it
// is replaced wholesale by Rebuild.
func (c *Coordinator) Table() *routing.Table { return c.table.Load() }

// Dirty reports whether topology changed since the last rebuild.
func (c *Coordinator) Dirty() bool { return c.dirty.Load() }

// Connect runs one bulk connect request. All ranks must call it with
// identical arguments; each rank stores only the edges whose targets it
// owns.
func (c *Coordinator) Connect(sources, targets []model.NodeID, cs builder.ConnSpec, spec synapse.Spec) error {
	seed := c.seed ^ (c.seq.Add(1) * 0x9e3779b97f4a7c15)
	b, err := c.rules.Create(sources, targets, cs, spec, seed)
	if err != nil {
		return err
	}

	threads := c.layout.ThreadsPerRank()
	perThread := make([]error, threads)
	runErr := vp.Run(threads, func(tid int) error {
		perThread[tid] = b.Connect(tid, &threadConnector{c: c})
		return perThread[tid]
	})

	var failed []error
	for _, err := range perThread {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if failed == nil && runErr != nil {
		// A panic recovered inside the region, not a builder error.
		failed = []error{runErr}
	}
	if failed != nil {
		return &BuildError{Rule: cs.Rule, Errs: failed}
	}

	c.logger.Debug("bulk connect",
		slog.String("rule", cs.Rule),
		slog.String("model", spec.Model),
		slog.Int("sources", len(sources)),
		slog.Int("targets", len(targets)))
	return nil
}

// threadConnector adapts the coordinator to the builder.Connector seam for
// one build region.
type threadConnector struct {
	c *Coordinator
}

func (t *threadConnector) OwnsTarget(tid int, target model.NodeID) bool {
	_, ok := t.c.nodes.Get(tid, target)
	return ok
}

func (t *threadConnector) ConnectOne(tid int, source, target model.NodeID, spec synapse.Spec) error {
	_, err := t.c.connectOne(tid, source, target, spec)
	return err
}

// ConnectOne is the single-edge primitive used by array and file-based
// importers. Every rank calls it for every edge; ranks that do not own the
// target validate and return without storing.
func (c *Coordinator) ConnectOne(source, target model.NodeID, spec synapse.Spec) error {
	_, m, err := c.resolveModel(spec.Model)
	if err != nil {
		return err
	}
	if _, err := c.validateDelay(m, spec.DelayMS); err != nil {
		return err
	}

	for tid := 0; tid < c.layout.ThreadsPerRank(); tid++ {
		if _, ok := c.nodes.Get(tid, target); !ok {
			continue
		}
		if _, err := c.connectOne(tid, source, target, spec); err != nil {
			return err
		}
	}
	return nil
}

// connectOne validates, classifies and stores one edge on thread tid. It
// returns false without error when the edge belongs to a different thread
// (device targets are visible on every thread but anchored once).
func (c *Coordinator) connectOne(tid int, source, target model.NodeID, spec synapse.Spec) (bool, error) {
	syn, m, err := c.resolveModel(spec.Model)
	if err != nil {
		return false, err
	}
	steps, err := c.validateDelay(m, spec.DelayMS)
	if err != nil {
		return false, fmt.Errorf("connect %d -> %d (%s): %w", source, target, spec.Model, err)
	}

	conn, err := m.Factory(spec)
	if err != nil {
		return false, fmt.Errorf("connect %d -> %d (%s): %w", source, target, spec.Model, err)
	}
	conn.Target = target
	conn.Receptor = spec.Receptor
	conn.DelaySteps = int32(steps)
	conn.Weight = spec.Weight
	conn.Label = spec.Label
	if spec.Label == 0 {
		conn.Label = -1
	}

	tgtNode, tgtOK := c.nodes.Get(tid, target)
	if !tgtOK {
		return false, nil
	}
	srcNode, srcOK := c.nodes.Get(tid, source)
	srcDevice := srcOK && srcNode.IsDevice()

	switch {
	case tgtNode.IsDevice():
		// Neuron-to-device edges anchor at the device on the thread owning
		// the source neuron, so recording happens where spikes originate.
		// Device-to-device edges anchor once, on thread 0.
		if srcDevice {
			if tid != 0 {
				return false, nil
			}
		} else if !srcOK || srcNode.Thread() != tid {
			return false, nil
		}
		c.devices.Add(tid, device.ToDevice, target, source, syn, conn)

	case srcDevice:
		// Device sources are replicated; their edges live in the device
		// table on the target's thread and bypass the spike exchange.
		c.devices.Add(tid, device.FromDevice, source, source, syn, conn)

	default:
		if _, err := c.st.Append(tid, syn, source, conn); err != nil {
			return false, err
		}
	}

	c.dirty.Store(true)
	c.metrics.ConnectionsCreated(1)
	return true, nil
}

func (c *Coordinator) resolveModel(name string) (model.SynapseTypeID, synapse.Model, error) {
	syn, err := c.synapses.ByName(name)
	if err != nil {
		return 0, synapse.Model{}, err
	}
	m, err := c.synapses.Get(syn)
	if err != nil {
		return 0, synapse.Model{}, err
	}
	return syn, m, nil
}

// validateDelay converts and registers the delay of one edge. Models
// without delay semantics resolve within the communication interval and
// never widen the extrema.
func (c *Coordinator) validateDelay(m synapse.Model, delayMS float64) (int64, error) {
	ms := delayMS
	if ms == 0 {
		ms = c.checker.ResolutionMS()
	}
	if !m.HasDelay {
		return 1, nil
	}
	return c.checker.AssertValidDelayMS(ms)
}

// Disconnect tombstones one edge. The routing tables go stale; delivery
// must wait for the next rebuild.
func (c *Coordinator) Disconnect(source, target model.NodeID, modelName string) error {
	syn, _, err := c.resolveModel(modelName)
	if err != nil {
		return err
	}

	for tid := 0; tid < c.layout.ThreadsPerRank(); tid++ {
		var found model.LCID = model.InvalidLCID
		c.st.ForEachEnabled(tid, syn, func(lcid model.LCID, src model.NodeID, conn *model.Connection) bool {
			if src == source && conn.Target == target {
				found = lcid
				return false
			}
			return true
		})
		if found != model.InvalidLCID {
			if err := c.st.Disable(tid, syn, found); err != nil {
				return err
			}
			c.dirty.Store(true)
			c.metrics.ConnectionsDisabled(1)
			return nil
		}

		if c.disconnectDevice(tid, syn, source, target) {
			c.dirty.Store(true)
			c.metrics.ConnectionsDisabled(1)
			return nil
		}
	}
	return fmt.Errorf("%w: %d -> %d (%s)", ErrNotFound, source, target, modelName)
}

func (c *Coordinator) disconnectDevice(tid int, syn model.SynapseTypeID, source, target model.NodeID) bool {
	for _, dir := range []device.Direction{device.FromDevice, device.ToDevice} {
		var anchor model.NodeID
		var found model.LCID = model.InvalidLCID
		c.devices.ForEach(tid, dir, func(dev model.NodeID, lcid model.LCID, s model.SynapseTypeID, src model.NodeID, conn *model.Connection) bool {
			if s == syn && src == source && conn.Target == target {
				anchor, found = dev, lcid
				return false
			}
			return true
		})
		if found != model.InvalidLCID {
			if err := c.devices.Disable(tid, dir, anchor, found); err == nil {
				return true
			}
		}
	}
	return false
}

// RetractOutgoing tombstones up to n outgoing neuron edges of one model
// from source, for structural plasticity pruning. Returns the number
// removed.
func (c *Coordinator) RetractOutgoing(source model.NodeID, modelName string, n int) (int, error) {
	syn, _, err := c.resolveModel(modelName)
	if err != nil {
		return 0, err
	}

	removed := 0
	for tid := 0; tid < c.layout.ThreadsPerRank() && removed < n; tid++ {
		var victims []model.LCID
		c.st.ForEachEnabled(tid, syn, func(lcid model.LCID, src model.NodeID, _ *model.Connection) bool {
			if src == source {
				victims = append(victims, lcid)
			}
			return removed+len(victims) < n
		})
		for _, lcid := range victims {
			if err := c.st.Disable(tid, syn, lcid); err != nil {
				return removed, err
			}
			removed++
		}
	}
	if removed > 0 {
		c.dirty.Store(true)
		c.metrics.ConnectionsDisabled(removed)
	}
	return removed, nil
}

// CreateEdge stores one edge on the thread owning the target, for
// structural plasticity growth. The caller guarantees this rank owns the
// target.
func (c *Coordinator) CreateEdge(source, target model.NodeID, spec synapse.Spec) error {
	if !c.layout.IsLocal(target, c.rank) {
		return fmt.Errorf("coordinator: target %d is not local to rank %d", target, c.rank)
	}
	committed, err := c.connectOne(c.layout.ThreadOf(target), source, target, spec)
	if err != nil {
		return err
	}
	if !committed {
		return fmt.Errorf("coordinator: target %d has no local handle", target)
	}
	return nil
}

// SortConnections sorts every thread's slabs by source id, tombstones to
// the tail. Collective; prerequisite for compressed-map rebuilds.
func (c *Coordinator) SortConnections() error {
	return vp.Run(c.layout.ThreadsPerRank(), func(tid int) error {
		c.st.Sort(tid)
		return nil
	})
}

// StartSimulation freezes the mutable registries and delay extrema and
// brings the routing tables up to date. Called once before the first
// delivery phase.
func (c *Coordinator) StartSimulation(ctx context.Context) error {
	c.checker.Freeze()
	c.synapses.Freeze()
	c.rules.Freeze()
	if c.dirty.Load() {
		return c.Rebuild(ctx)
	}
	return nil
}

// Reset drops all connection state for a finalize/initialize cycle after a
// thread-count or resolution change.
func (c *Coordinator) Reset(checker *delay.Checker) {
	threads := c.layout.ThreadsPerRank()
	if checker != nil {
		c.checker = checker
	}
	c.st.Reset(threads)
	c.devices.Reset(threads)
	c.cm = routing.NewMap(threads)
	c.soc = routing.NewSecondaryOffsetCache()
	c.table.Store(routing.NewTable(threads))
	c.dirty.Store(false)
	c.seq.Store(0)
}
