package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetPacking(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		tgt := NewTarget(1023, 511, 63, uint32(MaxLCID), true)
		assert.Equal(t, 1023, tgt.Rank())
		assert.Equal(t, 511, tgt.Thread())
		assert.Equal(t, SynapseTypeID(63), tgt.SynapseType())
		assert.Equal(t, uint32(MaxLCID), tgt.Payload())
		assert.True(t, tgt.Primary())
	})

	t.Run("Secondary", func(t *testing.T) {
		tgt := NewTarget(0, 0, 5, 42, false)
		assert.False(t, tgt.Primary())
		assert.Equal(t, uint32(42), tgt.Payload())
		assert.Equal(t, SynapseTypeID(5), tgt.SynapseType())
	})

	t.Run("FieldsDoNotBleed", func(t *testing.T) {
		tgt := NewTarget(7, 3, 2, 9, true)
		require.Equal(t, 7, tgt.Rank())
		require.Equal(t, 3, tgt.Thread())
		require.Equal(t, SynapseTypeID(2), tgt.SynapseType())
		require.Equal(t, uint32(9), tgt.Payload())
	})
}

func TestSourceEntry(t *testing.T) {
	e := NewSourceEntry(123456789)
	assert.Equal(t, NodeID(123456789), e.Source())
	assert.False(t, e.Disabled())
	assert.False(t, e.MoreTargets())

	e = e.WithMoreTargets(true)
	assert.True(t, e.MoreTargets())
	assert.Equal(t, NodeID(123456789), e.Source())

	e = e.WithDisabled()
	assert.True(t, e.Disabled())
	assert.True(t, e.MoreTargets())
	assert.Equal(t, NodeID(123456789), e.Source())

	e = e.WithMoreTargets(false)
	assert.False(t, e.MoreTargets())
	assert.True(t, e.Disabled())
}

func TestDescriptorLess(t *testing.T) {
	a := Descriptor{Source: 1, Target: 2, SynapseType: 0, TargetThread: 0, LCID: 0}
	b := Descriptor{Source: 1, Target: 3, SynapseType: 0, TargetThread: 0, LCID: 0}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}
