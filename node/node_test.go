package node

import (
	"testing"

	"github.com/nest/nest-simulator-sub010/model"
	"github.com/nest/nest-simulator-sub010/vp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableLookup(t *testing.T) {
	layout, err := vp.NewLayout(1, 2)
	require.NoError(t, err)
	tbl := NewTable(layout, 0)

	n := tbl.AddNeuron(3) // vp 1 -> thread 1
	require.NotNil(t, n)
	assert.Equal(t, 1, n.Thread())

	// Neurons resolve only on their owning thread.
	_, ok := tbl.Get(0, 3)
	assert.False(t, ok)
	got, ok := tbl.Get(1, 3)
	require.True(t, ok)
	assert.Equal(t, model.NodeID(3), got.ID())
	assert.False(t, got.IsDevice())

	// Devices resolve on every thread.
	tbl.AddDevice(100)
	for tid := 0; tid < 2; tid++ {
		d, ok := tbl.Get(tid, 100)
		require.True(t, ok)
		assert.True(t, d.IsDevice())
		assert.Equal(t, tid, d.Thread())
	}

	_, ok = tbl.Get(0, 999)
	assert.False(t, ok)
}

func TestTableRemoteNeuron(t *testing.T) {
	layout, err := vp.NewLayout(2, 1)
	require.NoError(t, err)
	tbl := NewTable(layout, 0)

	// Node 1 lives on rank 1; AddNeuron must refuse it here.
	assert.Nil(t, tbl.AddNeuron(1))
	_, ok := tbl.Get(0, 1)
	assert.False(t, ok)

	require.NotNil(t, tbl.AddNeuron(2))
}

func TestBasicDeliver(t *testing.T) {
	n := NewBasic(7, 0, false)
	n.Deliver(&SpikeEvent{SenderID: 1, Weight: 2.0, Multiplicity: 1})
	n.Deliver(&RateEvent{SenderID: 2, Values: []float64{0.5}})

	events := n.Events()
	require.Len(t, events, 2)
	assert.Equal(t, model.NodeID(1), events[0].Sender())
	assert.Equal(t, model.NodeID(2), events[1].Sender())
}
