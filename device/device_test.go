package device

import (
	"testing"

	"github.com/nest/nest-simulator-sub010/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	tbl := NewTable(2)
	assert.Equal(t, 2, tbl.NumThreads())

	// Spike generator 100 drives neurons 1 and 2 on thread 0.
	lcid0 := tbl.Add(0, FromDevice, 100, 100, 0, model.Connection{Target: 1, Weight: 1, Label: -1})
	lcid1 := tbl.Add(0, FromDevice, 100, 100, 0, model.Connection{Target: 2, Weight: 1, Label: -1})
	assert.Equal(t, model.LCID(0), lcid0)
	assert.Equal(t, model.LCID(1), lcid1)

	// Neuron 3 records into device 200 on thread 1.
	tbl.Add(1, ToDevice, 200, 3, 0, model.Connection{Target: 200, Weight: 1, Label: -1})

	assert.Equal(t, 2, tbl.Count(0, FromDevice))
	assert.Equal(t, 0, tbl.Count(0, ToDevice))
	assert.Equal(t, 1, tbl.Count(1, ToDevice))

	var targets []model.NodeID
	tbl.ForEach(0, FromDevice, func(dev model.NodeID, lcid model.LCID, syn model.SynapseTypeID, source model.NodeID, c *model.Connection) bool {
		assert.Equal(t, model.NodeID(100), dev)
		assert.Equal(t, model.NodeID(100), source)
		targets = append(targets, c.Target)
		return true
	})
	assert.ElementsMatch(t, []model.NodeID{1, 2}, targets)
}

func TestDisable(t *testing.T) {
	tbl := NewTable(1)
	tbl.Add(0, FromDevice, 100, 100, 0, model.Connection{Target: 1})
	require.NoError(t, tbl.Disable(0, FromDevice, 100, 0))
	assert.Equal(t, 0, tbl.Count(0, FromDevice))

	var noConn *ErrNoDeviceConnection
	assert.ErrorAs(t, tbl.Disable(0, FromDevice, 100, 0), &noConn)
	assert.ErrorAs(t, tbl.Disable(0, FromDevice, 100, 9), &noConn)
}

func TestReset(t *testing.T) {
	tbl := NewTable(1)
	tbl.Add(0, ToDevice, 200, 1, 0, model.Connection{Target: 200})
	tbl.Reset(3)
	assert.Equal(t, 3, tbl.NumThreads())
	assert.Equal(t, 0, tbl.Count(0, ToDevice))
}
