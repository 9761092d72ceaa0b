package routing

import (
	"testing"

	"github.com/nest/nest-simulator-sub010/model"
	"github.com/nest/nest-simulator-sub010/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const synStatic model.SynapseTypeID = 0

func fill(t *testing.T, st *store.Store, tid int, pairs ...[2]model.NodeID) {
	t.Helper()
	for _, p := range pairs {
		_, err := st.Append(tid, synStatic, p[0], model.Connection{Target: p[1], DelaySteps: 1, Weight: 1, Label: -1})
		require.NoError(t, err)
	}
}

func TestMapBuild(t *testing.T) {
	st := store.New(2)
	// Source 5 fans out on both threads; source 9 only on thread 1.
	fill(t, st, 0, [2]model.NodeID{5, 2}, [2]model.NodeID{5, 4})
	fill(t, st, 1, [2]model.NodeID{9, 3}, [2]model.NodeID{5, 1}, [2]model.NodeID{9, 7})
	st.Sort(0)
	st.Sort(1)

	m := NewMap(2)
	require.NoError(t, m.Build(st))

	entries := m.Entries(synStatic)
	require.Len(t, entries, 2)
	assert.Equal(t, model.NodeID(5), entries[0].Source)
	assert.Equal(t, model.NodeID(9), entries[1].Source)

	// Source 5: first lcid 0 on both threads.
	assert.Equal(t, []model.LCID{0, 0}, entries[0].FirstLCID)
	// Source 9: thread 0 has no run.
	assert.Equal(t, model.InvalidLCID, entries[1].FirstLCID[0])
	assert.Equal(t, model.LCID(1), entries[1].FirstLCID[1])

	assert.Equal(t, uint64(2), m.DistinctCount(synStatic))

	pos, ok := m.Position(synStatic, 9)
	require.True(t, ok)
	assert.Equal(t, uint32(1), pos)
	_, ok = m.Position(synStatic, 6)
	assert.False(t, ok)
}

func TestMapCompressionIndependentOfFanOut(t *testing.T) {
	st := store.New(1)
	for i := 0; i < 1000; i++ {
		fill(t, st, 0, [2]model.NodeID{42, model.NodeID(i + 1)})
	}
	st.Sort(0)

	m := NewMap(1)
	require.NoError(t, m.Build(st))
	assert.Equal(t, uint64(1), m.DistinctCount(synStatic))
	assert.Len(t, m.Entries(synStatic), 1)
}

func TestMapCountsOnlyEnabled(t *testing.T) {
	st := store.New(1)
	fill(t, st, 0, [2]model.NodeID{1, 2}, [2]model.NodeID{3, 4})
	require.NoError(t, st.Disable(0, synStatic, 1)) // source 3
	st.Sort(0)

	m := NewMap(1)
	require.NoError(t, m.Build(st))
	assert.Equal(t, uint64(1), m.DistinctCount(synStatic))
}

func TestMapFreeze(t *testing.T) {
	st := store.New(1)
	m := NewMap(1)
	m.Freeze()
	assert.True(t, m.Frozen())
	assert.ErrorIs(t, m.Build(st), ErrMapFrozen)
	m.Thaw()
	assert.NoError(t, m.Build(st))
}

func TestTableSnapshotCanonical(t *testing.T) {
	a := NewTable(1)
	b := NewTable(1)

	t1 := model.NewTarget(1, 0, 0, 7, true)
	t2 := model.NewTarget(0, 1, 0, 3, true)

	// Same content, different insertion order (different round splits).
	a.Add(0, 5, t1)
	a.Add(0, 5, t2)
	b.Add(0, 5, t2)
	b.Add(0, 5, t1)
	a.Finalize()
	b.Finalize()

	assert.Equal(t, a.Snapshot(), b.Snapshot())
	assert.Equal(t, 2, a.Len())
	assert.Len(t, a.Targets(0, 5), 2)
	assert.Nil(t, a.Targets(0, 6))
}

func TestSecondaryOffsetCache(t *testing.T) {
	const synGap model.SynapseTypeID = 1

	st := store.New(1)
	// Primary type 0 edge, should get no offsets.
	fill(t, st, 0, [2]model.NodeID{1, 2})
	// Secondary type 1: sources 3 and 5 on rank 0, source 4 on rank 1
	// (rankOf below uses parity).
	for _, p := range [][2]model.NodeID{{3, 2}, {5, 2}, {4, 2}, {3, 6}} {
		_, err := st.Append(0, synGap, p[0], model.Connection{Target: p[1], DelaySteps: 1, Weight: 1, Label: -1})
		require.NoError(t, err)
	}
	st.Sort(0)

	m := NewMap(1)
	require.NoError(t, m.Build(st))

	rankOf := func(id model.NodeID) int { return int(id) % 2 }
	isSecondary := func(syn model.SynapseTypeID) bool { return syn == synGap }

	c := NewSecondaryOffsetCache()
	c.Build(st, m, rankOf, isSecondary)

	// Compressed order of type 1: sources 3, 4, 5.
	// Rank 1 region: [3, 5] -> slots 0, 1; rank 0 region: [4] -> slot 0.
	find := func(source model.NodeID) uint32 {
		lcid, err := st.FindFirstSource(0, synGap, source)
		require.NoError(t, err)
		require.NotEqual(t, model.InvalidLCID, lcid)
		off, ok := c.Offset(0, synGap, lcid)
		require.True(t, ok)
		return off
	}
	assert.Equal(t, uint32(0), find(3))
	assert.Equal(t, uint32(1), find(5))
	assert.Equal(t, uint32(0), find(4))

	// Both connections of source 3 share the slot.
	lcid3, err := st.FindFirstSource(0, synGap, 3)
	require.NoError(t, err)
	e, err := st.SourceAt(0, synGap, lcid3)
	require.NoError(t, err)
	require.True(t, e.MoreTargets())
	off1, _ := c.Offset(0, synGap, lcid3)
	off2, _ := c.Offset(0, synGap, lcid3+1)
	assert.Equal(t, off1, off2)

	// Primary type has no offsets.
	_, ok := c.Offset(0, synStatic, 0)
	assert.False(t, ok)
}
