package synet

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/nest/nest-simulator-sub010/builder"
	"github.com/nest/nest-simulator-sub010/coordinator"
	"github.com/nest/nest-simulator-sub010/delay"
	"github.com/nest/nest-simulator-sub010/exchange"
	"github.com/nest/nest-simulator-sub010/model"
	"github.com/nest/nest-simulator-sub010/node"
	"github.com/nest/nest-simulator-sub010/plasticity"
	"github.com/nest/nest-simulator-sub010/synapse"
	"github.com/nest/nest-simulator-sub010/vp"
)

// Convenience aliases so callers rarely need the internal packages.
type (
	// NodeID is the global identifier of a neuron or device.
	NodeID = model.NodeID

	// Descriptor identifies one connection in query results.
	Descriptor = model.Descriptor

	// ConnSpec describes a bulk connect request.
	ConnSpec = builder.ConnSpec

	// SynSpec carries the per-edge synapse parameters.
	SynSpec = synapse.Spec

	// SynapseModel describes one registered synapse type.
	SynapseModel = synapse.Model

	// Filter narrows Connections queries.
	Filter = coordinator.Filter

	// PlasticityConfig controls structural plasticity.
	PlasticityConfig = plasticity.Config
)

// NewConnSpec returns a ConnSpec for the rule with conventional defaults
// (autapses and multapses allowed).
func NewConnSpec(rule string) ConnSpec { return builder.NewConnSpec(rule) }

// Network is the per-rank facade over the connection infrastructure. One
// instance serves one rank; collective operations must be issued in the
// same order on every rank.
type Network struct {
	layout   vp.Layout
	comm     exchange.Communicator
	checker  *delay.Checker
	synapses *synapse.Registry
	rules    *builder.Registry
	nodes    *node.Table
	coord    *coordinator.Coordinator
	plast    *plasticity.Engine

	logger  *Logger
	metrics MetricsCollector
	opts    options

	nextID atomic.Uint64
	bridge *counterBridge
}

// counterBridge adapts coordinator counters to the facade collector. The
// facade owns operation timing; the bridge only tracks edge counts and
// forwards rebuilds triggered inside the coordinator (dirty queries).
type counterBridge struct {
	created atomic.Int64
	removed atomic.Int64
	mc      MetricsCollector
}

func (b *counterBridge) ConnectionsCreated(n int)  { b.created.Add(int64(n)) }
func (b *counterBridge) ConnectionsDisabled(n int) { b.removed.Add(int64(n)) }
func (b *counterBridge) RebuildObserved(rounds, entries int) {
	b.mc.RecordRebuild(rounds, entries, 0, nil)
}
func (b *counterBridge) QueryObserved(int) {}

// New creates a Network.
func New(optFns ...Option) (*Network, error) {
	o := applyOptions(optFns)
	comm := o.comm
	if comm == nil {
		comm = exchange.Single()
	}

	layout, err := vp.NewLayout(comm.NumRanks(), o.threads)
	if err != nil {
		return nil, err
	}
	checker, err := delay.NewChecker(o.resolutionMS)
	if err != nil {
		return nil, err
	}

	synapses := synapse.NewRegistry()
	for _, m := range []synapse.Model{
		{Name: "static_synapse", Primary: true, HasDelay: true, Factory: synapse.StaticFactory},
		{Name: "gap_junction", RequiresSymmetric: true, Factory: synapse.StaticFactory},
		{Name: "rate_connection", Factory: synapse.StaticFactory},
	} {
		if _, err := synapses.Register(m); err != nil {
			return nil, err
		}
	}

	nodes := node.NewTable(layout, comm.Rank())
	bridge := &counterBridge{mc: o.metricsCollector}
	rules := builder.NewRegistry()

	coord, err := coordinator.New(coordinator.Config{
		Layout:        layout,
		Comm:          comm,
		Checker:       checker,
		Synapses:      synapses,
		Rules:         rules,
		Nodes:         nodes,
		Seed:          o.seed,
		ExchangeChunk: o.exchangeChunk,
		Logger:        o.logger.Logger,
		Metrics:       bridge,
	})
	if err != nil {
		return nil, err
	}

	return &Network{
		layout:   layout,
		comm:     comm,
		checker:  checker,
		synapses: synapses,
		rules:    rules,
		nodes:    nodes,
		coord:    coord,
		logger:   o.logger.WithRank(comm.Rank()),
		metrics:  o.metricsCollector,
		opts:     o,
		bridge:   bridge,
	}, nil
}

// Rank returns this network's rank.
func (n *Network) Rank() int { return n.comm.Rank() }

// NumRanks returns the number of ranks in the run.
func (n *Network) NumRanks() int { return n.comm.NumRanks() }

// ThreadsPerRank returns the configured thread count.
func (n *Network) ThreadsPerRank() int { return n.layout.ThreadsPerRank() }

// CreateNeurons allocates count new neuron ids. Every rank must make the
// same creation calls in the same order; each rank instantiates only its
// local handles.
func (n *Network) CreateNeurons(count int) []NodeID {
	ids := make([]NodeID, count)
	for i := range ids {
		id := NodeID(n.nextID.Add(1))
		ids[i] = id
		n.nodes.AddNeuron(id)
	}
	return ids
}

// CreateDevices allocates count new device ids, replicated on every local
// thread.
func (n *Network) CreateDevices(count int) []NodeID {
	ids := make([]NodeID, count)
	for i := range ids {
		id := NodeID(n.nextID.Add(1))
		ids[i] = id
		n.nodes.AddDevice(id)
	}
	return ids
}

// Nodes exposes the node table, the Lookup used for delivery.
func (n *Network) Nodes() *node.Table { return n.nodes }

// RegisterSynapseModel adds a synapse model. Must happen before
// StartSimulation freezes the registry.
func (n *Network) RegisterSynapseModel(m SynapseModel) (model.SynapseTypeID, error) {
	id, err := n.synapses.Register(m)
	return id, translateError(err)
}

// RegisterRule adds a connection rule. Must happen before StartSimulation
// freezes the registry.
func (n *Network) RegisterRule(name string, f builder.Factory) error {
	return translateError(n.rules.Register(name, f))
}

// SetDelayExtrema fixes the delay bounds explicitly. Delays outside the
// fixed interval become hard errors immediately.
func (n *Network) SetDelayExtrema(minMS, maxMS float64) error {
	return translateError(n.checker.SetExtremaMS(minMS, maxMS))
}

// Connect creates edges between two populations under a rule. Collective.
func (n *Network) Connect(sources, targets []NodeID, cs ConnSpec, spec SynSpec) error {
	start := time.Now()
	before := n.bridgeCreated()
	err := translateError(n.coord.Connect(sources, targets, cs, spec))
	created := int(n.bridgeCreated() - before)
	n.metrics.RecordConnect(created, time.Since(start), err)
	n.logger.LogConnect(cs.Rule, spec.Model, len(sources), len(targets), created, err)
	return err
}

// ConnectOne creates a single edge, the primitive used by array and file
// importers. Every rank calls it; only the target's owner stores it.
func (n *Network) ConnectOne(source, target NodeID, spec SynSpec) error {
	start := time.Now()
	before := n.bridgeCreated()
	err := translateError(n.coord.ConnectOne(source, target, spec))
	n.metrics.RecordConnect(int(n.bridgeCreated()-before), time.Since(start), err)
	return err
}

// ConnectArrays is the bulk array ABI: parallel slices of sources and
// targets with optional per-edge weights and delays (nil means "use the
// spec value for every edge").
func (n *Network) ConnectArrays(sources, targets []NodeID, weights, delays []float64, spec SynSpec) error {
	if len(sources) != len(targets) {
		return fmt.Errorf("%w: %d sources, %d targets", builder.ErrLengthMismatch, len(sources), len(targets))
	}
	if weights != nil && len(weights) != len(sources) {
		return fmt.Errorf("%w: %d weights for %d edges", builder.ErrLengthMismatch, len(weights), len(sources))
	}
	if delays != nil && len(delays) != len(sources) {
		return fmt.Errorf("%w: %d delays for %d edges", builder.ErrLengthMismatch, len(delays), len(sources))
	}

	start := time.Now()
	before := n.bridgeCreated()
	var err error
	for i := range sources {
		s := spec
		if weights != nil {
			s.Weight = weights[i]
		}
		if delays != nil {
			s.DelayMS = delays[i]
		}
		if err = translateError(n.coord.ConnectOne(sources[i], targets[i], s)); err != nil {
			err = fmt.Errorf("edge %d: %w", i, err)
			break
		}
	}
	n.metrics.RecordConnect(int(n.bridgeCreated()-before), time.Since(start), err)
	return err
}

// Disconnect removes one edge.
func (n *Network) Disconnect(source, target NodeID, modelName string) error {
	start := time.Now()
	before := n.bridgeRemoved()
	err := translateError(n.coord.Disconnect(source, target, modelName))
	n.metrics.RecordDisconnect(int(n.bridgeRemoved()-before), time.Since(start), err)
	return err
}

// Connections returns descriptors of local connections matching the
// filter. Collective when the topology is dirty (it rebuilds first).
func (n *Network) Connections(ctx context.Context, f Filter) ([]Descriptor, error) {
	start := time.Now()
	out, err := n.coord.Connections(ctx, f)
	err = translateError(err)
	n.metrics.RecordQuery(len(out), time.Since(start), err)
	return out, err
}

// Count returns the number of live local connections, device edges
// included.
func (n *Network) Count() int { return n.coord.Count() }

// Dirty reports whether the routing tables are stale.
func (n *Network) Dirty() bool { return n.coord.Dirty() }

// Rebuild forces a routing-table rebuild. Collective.
func (n *Network) Rebuild(ctx context.Context) error {
	return translateError(n.coord.Rebuild(ctx))
}

// StartSimulation freezes the registries and delay extrema and rebuilds
// stale routing tables. Collective; call once before the first delivery
// phase.
func (n *Network) StartSimulation(ctx context.Context) error {
	// The coordinator logs the rebuild itself, with its real round count,
	// and only when the topology was actually dirty.
	return translateError(n.coord.StartSimulation(ctx))
}

// Coordinator exposes the underlying coordinator for delivery-side
// integrations (RouteTargets, DeliverCompressed).
func (n *Network) Coordinator() *coordinator.Coordinator { return n.coord }

// EnableStructuralPlasticity attaches a plasticity engine. The config's
// Seed defaults to the network seed.
func (n *Network) EnableStructuralPlasticity(cfg PlasticityConfig) error {
	if cfg.Model == "" {
		cfg.Model = "static_synapse"
	}
	if cfg.Seed == 0 {
		cfg.Seed = n.opts.seed
	}
	if _, err := n.synapses.ByName(cfg.Model); err != nil {
		return translateError(err)
	}
	n.plast = plasticity.NewEngine(n.layout, n.comm, n.coord, cfg, n.logger.Logger)
	return nil
}

// Plasticity returns the attached engine, or nil.
func (n *Network) Plasticity() *plasticity.Engine { return n.plast }

// PlasticityStep runs one structural plasticity update. Collective.
func (n *Network) PlasticityStep() (int, error) {
	if n.plast == nil {
		return 0, ErrPlasticityDisabled
	}
	start := time.Now()
	created, err := n.plast.Step()
	n.metrics.RecordPlasticityStep(created, time.Since(start), err)
	n.logger.LogPlasticityStep(created, err)
	return created, err
}

// Reset drops all connection state, for a finalize/initialize cycle.
func (n *Network) Reset() error {
	checker, err := delay.NewChecker(n.opts.resolutionMS)
	if err != nil {
		return err
	}
	n.checker = checker
	n.coord.Reset(checker)
	return nil
}

// Stats is a point-in-time summary of the local rank.
type Stats struct {
	Rank           int   `json:"rank"`
	Connections    int   `json:"connections"`
	RoutingEntries int   `json:"routing_entries"`
	Dirty          bool  `json:"dirty"`
	MinDelaySteps  int64 `json:"min_delay_steps"`
	MaxDelaySteps  int64 `json:"max_delay_steps"`
}

// Stats returns the local summary.
func (n *Network) Stats() Stats {
	return Stats{
		Rank:           n.comm.Rank(),
		Connections:    n.coord.Count(),
		RoutingEntries: n.coord.Table().Len(),
		Dirty:          n.coord.Dirty(),
		MinDelaySteps:  n.checker.MinDelaySteps(),
		MaxDelaySteps:  n.checker.MaxDelaySteps(),
	}
}

// ExportConnections writes matching descriptors to w as one codec document
// per line, preceded by a header line naming the codec. Collective when
// the topology is dirty.
func (n *Network) ExportConnections(ctx context.Context, w io.Writer, f Filter) error {
	descriptors, err := n.Connections(ctx, f)
	if err != nil {
		return err
	}

	header, err := n.opts.codec.Marshal(struct {
		Codec string `json:"codec"`
		Count int    `json:"count"`
	}{Codec: n.opts.codec.Name(), Count: len(descriptors)})
	if err != nil {
		return err
	}
	if _, err := w.Write(append(header, '\n')); err != nil {
		return err
	}

	for _, d := range descriptors {
		line, err := n.opts.codec.Marshal(d)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}

func (n *Network) bridgeCreated() int64 { return n.bridge.created.Load() }

func (n *Network) bridgeRemoved() int64 { return n.bridge.removed.Load() }
