package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nest/nest-simulator-sub010/builder"
	"github.com/nest/nest-simulator-sub010/delay"
	"github.com/nest/nest-simulator-sub010/device"
	"github.com/nest/nest-simulator-sub010/model"
	"github.com/nest/nest-simulator-sub010/node"
	"github.com/nest/nest-simulator-sub010/synapse"
	"github.com/nest/nest-simulator-sub010/vp"
)

type fixture struct {
	coord *Coordinator
	nodes *node.Table
}

// newFixture builds a single-rank coordinator with neurons 1..neurons and
// the "static" (primary) and "rate" (secondary) models registered.
func newFixture(t *testing.T, threads, neurons int) *fixture {
	t.Helper()
	layout, err := vp.NewLayout(1, threads)
	require.NoError(t, err)

	checker, err := delay.NewChecker(0.1)
	require.NoError(t, err)

	reg := synapse.NewRegistry()
	_, err = reg.Register(synapse.Model{Name: "static", Primary: true, HasDelay: true, Factory: synapse.StaticFactory})
	require.NoError(t, err)
	_, err = reg.Register(synapse.Model{Name: "rate", Factory: synapse.StaticFactory})
	require.NoError(t, err)

	nodes := node.NewTable(layout, 0)
	for id := 1; id <= neurons; id++ {
		nodes.AddNeuron(model.NodeID(id))
	}

	coord, err := New(Config{
		Layout:   layout,
		Checker:  checker,
		Synapses: reg,
		Nodes:    nodes,
		Seed:     7,
	})
	require.NoError(t, err)
	return &fixture{coord: coord, nodes: nodes}
}

func staticSpec(delayMS float64) synapse.Spec {
	return synapse.Spec{Model: "static", Weight: 1.0, DelayMS: delayMS, Label: -1}
}

func nodeRange(from, to int) []model.NodeID {
	var out []model.NodeID
	for i := from; i <= to; i++ {
		out = append(out, model.NodeID(i))
	}
	return out
}

func TestQueryIdempotence(t *testing.T) {
	f := newFixture(t, 2, 20)
	ctx := context.Background()

	err := f.coord.Connect(nodeRange(1, 10), nodeRange(11, 20),
		builder.NewConnSpec("all_to_all"), staticSpec(1.0))
	require.NoError(t, err)

	first, err := f.coord.Connections(ctx, Filter{})
	require.NoError(t, err)
	second, err := f.coord.Connections(ctx, Filter{})
	require.NoError(t, err)

	assert.Len(t, first, 100)
	assert.Equal(t, first, second)

	// Source filter narrows to one row of the product.
	bySource, err := f.coord.Connections(ctx, Filter{Source: 3})
	require.NoError(t, err)
	assert.Len(t, bySource, 10)
	for _, d := range bySource {
		assert.Equal(t, model.NodeID(3), d.Source)
	}

	byPair, err := f.coord.Connections(ctx, Filter{Source: 3, Target: 14})
	require.NoError(t, err)
	assert.Len(t, byPair, 1)
}

func TestDelayFreezeRejectsOutOfRange(t *testing.T) {
	f := newFixture(t, 2, 10)
	ctx := context.Background()

	// Delays 1.0 and 2.0 ms widen the open extrema.
	require.NoError(t, f.coord.ConnectOne(1, 2, staticSpec(1.0)))
	require.NoError(t, f.coord.ConnectOne(3, 4, staticSpec(2.0)))

	require.NoError(t, f.coord.StartSimulation(ctx))

	// Frozen now: 5.0 ms falls outside [1.0, 2.0].
	err := f.coord.ConnectOne(5, 6, staticSpec(5.0))
	var oor *delay.ErrOutOfRange
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, int64(50), oor.DelaySteps)

	// In-range delays still connect (structural plasticity path).
	assert.NoError(t, f.coord.ConnectOne(5, 6, staticSpec(1.5)))
}

func TestDisconnectAndCompact(t *testing.T) {
	f := newFixture(t, 2, 200)
	ctx := context.Background()

	err := f.coord.Connect(nodeRange(1, 100), nodeRange(101, 200),
		builder.NewConnSpec("one_to_one"), staticSpec(1.0))
	require.NoError(t, err)
	assert.Equal(t, 100, f.coord.Count())

	// Tombstone 30 edges.
	for i := 1; i <= 30; i++ {
		require.NoError(t, f.coord.Disconnect(model.NodeID(i), model.NodeID(i+100), "static"))
	}
	assert.Equal(t, 70, f.coord.Count())

	before, err := f.coord.Connections(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, before, 70)

	// Compaction drops the tombstones physically; the visible set is
	// unchanged.
	require.NoError(t, f.coord.CompactConnections(ctx))
	assert.True(t, f.coord.Dirty())

	after, err := f.coord.Connections(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, after, 70)

	got := make(map[[2]model.NodeID]bool)
	for _, d := range after {
		got[[2]model.NodeID{d.Source, d.Target}] = true
	}
	for i := 31; i <= 100; i++ {
		assert.True(t, got[[2]model.NodeID{model.NodeID(i), model.NodeID(i + 100)}])
	}
}

func TestDisconnectNotFound(t *testing.T) {
	f := newFixture(t, 2, 10)
	require.NoError(t, f.coord.ConnectOne(1, 2, staticSpec(1.0)))

	err := f.coord.Disconnect(1, 3, "static")
	assert.ErrorIs(t, err, ErrNotFound)

	// Double disconnect of the same edge.
	require.NoError(t, f.coord.Disconnect(1, 2, "static"))
	err = f.coord.Disconnect(1, 2, "static")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeviceClassification(t *testing.T) {
	f := newFixture(t, 2, 10)
	ctx := context.Background()

	generator := f.nodes.AddDevice(100)
	require.NotNil(t, generator)
	f.nodes.AddDevice(101) // recorder

	// Device -> neuron: stored in the device table on the target's thread.
	require.NoError(t, f.coord.ConnectOne(100, 3, staticSpec(1.0)))
	// Neuron -> device: anchored at the device on the source's thread.
	require.NoError(t, f.coord.ConnectOne(4, 101, staticSpec(1.0)))

	fromCount := 0
	for tid := 0; tid < 2; tid++ {
		fromCount += f.coord.Devices().Count(tid, device.FromDevice)
	}
	assert.Equal(t, 1, fromCount)

	// Node 4 lives on thread 0 (vp = 4 % 2).
	assert.Equal(t, 1, f.coord.Devices().Count(0, device.ToDevice))
	assert.Zero(t, f.coord.Devices().Count(1, device.ToDevice))

	// Device edges never reach the main store, but queries see them.
	all, err := f.coord.Connections(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for tid := 0; tid < 2; tid++ {
		for syn := 0; syn < f.coord.Store().NumTypes(tid); syn++ {
			assert.Zero(t, f.coord.Store().EnabledCount(tid, model.SynapseTypeID(syn)))
		}
	}

	// Delivery from the generator reaches neuron 3 on its thread.
	tid := 1 // vp of node 3
	ev := &node.SpikeEvent{SenderID: 100, Multiplicity: 1}
	f.coord.DeliverFromDevice(tid, 100, ev)
	target, ok := f.nodes.Get(tid, 3)
	require.True(t, ok)
	assert.Len(t, target.(*node.Basic).Events(), 1)
}

func TestBuildErrorAggregatesAndKeepsCommits(t *testing.T) {
	f := newFixture(t, 2, 20)

	// A factory that fails for one specific target: the other thread's
	// edges stay committed.
	reg := f.coord.synapses
	_, err := reg.Register(synapse.Model{
		Name: "flaky", Primary: true, HasDelay: true,
		Factory: func(spec synapse.Spec) (model.Connection, error) {
			return model.Connection{}, errors.New("no parameters for target")
		},
	})
	require.NoError(t, err)

	err = f.coord.Connect(nodeRange(1, 2), nodeRange(11, 14),
		builder.NewConnSpec("all_to_all"),
		synapse.Spec{Model: "flaky", DelayMS: 1.0, Label: -1})

	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "all_to_all", be.Rule)
	assert.Len(t, be.Errs, 2) // both threads hit the factory failure
}

func TestConnectConfigErrors(t *testing.T) {
	f := newFixture(t, 2, 10)

	err := f.coord.Connect(nodeRange(1, 2), nodeRange(3, 4),
		builder.NewConnSpec("no_such_rule"), staticSpec(1.0))
	assert.ErrorIs(t, err, builder.ErrUnknownRule)

	err = f.coord.Connect(nil, nodeRange(3, 4),
		builder.NewConnSpec("all_to_all"), staticSpec(1.0))
	assert.ErrorIs(t, err, builder.ErrEmptyCollection)

	err = f.coord.ConnectOne(1, 2, synapse.Spec{Model: "no_such_model", DelayMS: 1.0})
	var unknown *synapse.ErrUnknownModel
	assert.ErrorAs(t, err, &unknown)

	// Config errors mutate nothing.
	assert.Zero(t, f.coord.Count())
	assert.False(t, f.coord.Dirty())
}

func TestRebuildAndDelivery(t *testing.T) {
	f := newFixture(t, 2, 10)
	ctx := context.Background()

	// Source 1 (thread 1) fans out to targets on both threads.
	require.NoError(t, f.coord.ConnectOne(1, 2, staticSpec(1.0)))
	require.NoError(t, f.coord.ConnectOne(1, 3, staticSpec(1.0)))
	require.NoError(t, f.coord.ConnectOne(1, 4, staticSpec(1.0)))

	// Stale until rebuilt.
	_, err := f.coord.RouteTargets(1, 1)
	assert.ErrorIs(t, err, ErrStale)

	require.NoError(t, f.coord.StartSimulation(ctx))

	targets, err := f.coord.RouteTargets(1, 1)
	require.NoError(t, err)
	require.Len(t, targets, 1) // one record for the whole fan-out
	tgt := targets[0]
	assert.Equal(t, 0, tgt.Rank())
	assert.True(t, tgt.Primary())

	// Receiver side: the compressed position fans out to all three local
	// targets.
	require.NoError(t, f.coord.DeliverCompressed(tgt.SynapseType(), tgt.Payload(),
		&node.SpikeEvent{SenderID: 1, Multiplicity: 1}))
	for _, id := range []model.NodeID{2, 3, 4} {
		tid := int(id % 2)
		n, ok := f.nodes.Get(tid, id)
		require.True(t, ok)
		events := n.(*node.Basic).Events()
		require.Len(t, events, 1, "node %d", id)
		spike := events[0].(*node.SpikeEvent)
		assert.Equal(t, model.NodeID(1), spike.SenderID)
		assert.Equal(t, int32(10), spike.DelaySteps)
	}
}

func TestRetractOutgoing(t *testing.T) {
	f := newFixture(t, 2, 20)

	err := f.coord.Connect(nodeRange(1, 1), nodeRange(2, 11),
		builder.NewConnSpec("all_to_all"), staticSpec(1.0))
	require.NoError(t, err)
	assert.Equal(t, 10, f.coord.Count())

	removed, err := f.coord.RetractOutgoing(1, "static", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, removed)
	assert.Equal(t, 6, f.coord.Count())
	assert.True(t, f.coord.Dirty())

	// More requested than present.
	removed, err = f.coord.RetractOutgoing(1, "static", 100)
	require.NoError(t, err)
	assert.Equal(t, 6, removed)
	assert.Zero(t, f.coord.Count())
}

func TestReset(t *testing.T) {
	f := newFixture(t, 2, 10)
	require.NoError(t, f.coord.ConnectOne(1, 2, staticSpec(1.0)))
	require.NotZero(t, f.coord.Count())

	f.coord.Reset(nil)
	assert.Zero(t, f.coord.Count())
	assert.False(t, f.coord.Dirty())
	assert.Zero(t, f.coord.Table().Len())
}
