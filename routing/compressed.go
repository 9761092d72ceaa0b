// Package routing holds the read-mostly tables consulted at delivery time:
// the compressed source map, the target routing table and the secondary
// offset cache. All three are rebuilt wholesale when topology changes;
// nothing here is patched incrementally.
package routing

import (
	"errors"
	"sort"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/nest/nest-simulator-sub010/model"
	"github.com/nest/nest-simulator-sub010/store"
)

// ErrMapFrozen is returned when a compressed map is rebuilt while an
// exchange holds it frozen. The resumable exchange cursor indexes into the
// map across communication rounds; mutating it mid-exchange would corrupt
// routing silently, so this is treated as a programming error.
var ErrMapFrozen = errors.New("routing: compressed source map is frozen during exchange")

// Entry is one distinct source in the compressed map: the source node id
// and, per thread, the first lcid of its contiguous connection run
// (model.InvalidLCID where the thread has no targets for it).
//
// One entry serves every local target of the source, collapsing fan-out to
// a single exchanged record per (source, rank).
type Entry struct {
	Source    model.NodeID
	FirstLCID []model.LCID
}

// Map is the compressed source map: per synapse type, the distinct source
// nodes with connections on this rank, sorted by id. The position of an
// entry within its type is the payload carried by primary routing targets.
type Map struct {
	threads int
	entries [][]Entry // [synapse type][position]
	// distinct tracks the source-id sets per type; roaring keeps the
	// per-type sets cheap even with millions of sparse 64-bit ids.
	distinct []*roaring64.Bitmap

	frozen atomic.Bool
}

// NewMap creates an empty compressed map for the given thread count.
func NewMap(threads int) *Map {
	return &Map{threads: threads}
}

// Build rebuilds the map from sorted storage. Must run outside parallel
// regions, after store sorting and before the exchange protocol.
func (m *Map) Build(st *store.Store) error {
	if m.frozen.Load() {
		return ErrMapFrozen
	}

	numTypes := 0
	for tid := 0; tid < st.NumThreads(); tid++ {
		if n := st.NumTypes(tid); n > numTypes {
			numTypes = n
		}
	}

	entries := make([][]Entry, numTypes)
	distinct := make([]*roaring64.Bitmap, numTypes)

	for syn := 0; syn < numTypes; syn++ {
		bm := roaring64.New()
		bysrc := make(map[model.NodeID][]model.LCID)
		for tid := 0; tid < st.NumThreads(); tid++ {
			st.ForEachEnabled(tid, model.SynapseTypeID(syn), func(lcid model.LCID, source model.NodeID, _ *model.Connection) bool {
				first, ok := bysrc[source]
				if !ok {
					first = make([]model.LCID, st.NumThreads())
					for i := range first {
						first[i] = model.InvalidLCID
					}
					bysrc[source] = first
					bm.Add(uint64(source))
				}
				if first[tid] == model.InvalidLCID {
					first[tid] = lcid
				}
				return true
			})
		}

		list := make([]Entry, 0, len(bysrc))
		for src, first := range bysrc {
			list = append(list, Entry{Source: src, FirstLCID: first})
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Source < list[j].Source })

		entries[syn] = list
		distinct[syn] = bm
	}

	m.threads = st.NumThreads()
	m.entries = entries
	m.distinct = distinct
	return nil
}

// Freeze pins the map for the duration of an exchange.
func (m *Map) Freeze() { m.frozen.Store(true) }

// Thaw releases the exchange pin.
func (m *Map) Thaw() { m.frozen.Store(false) }

// Frozen reports whether an exchange currently pins the map.
func (m *Map) Frozen() bool { return m.frozen.Load() }

// NumTypes returns the number of synapse-type slots in the map.
func (m *Map) NumTypes() int { return len(m.entries) }

// Entries returns the sorted distinct-source entries of a type. The
// returned slice is shared; callers must not mutate it.
func (m *Map) Entries(syn model.SynapseTypeID) []Entry {
	if int(syn) >= len(m.entries) {
		return nil
	}
	return m.entries[syn]
}

// DistinctCount returns the number of distinct enabled source ids of a
// type, independent of fan-out.
func (m *Map) DistinctCount(syn model.SynapseTypeID) uint64 {
	if int(syn) >= len(m.distinct) || m.distinct[syn] == nil {
		return 0
	}
	return m.distinct[syn].GetCardinality()
}

// Position returns the compressed position of a source within a type, or
// false when absent.
func (m *Map) Position(syn model.SynapseTypeID, source model.NodeID) (uint32, bool) {
	list := m.Entries(syn)
	i := sort.Search(len(list), func(i int) bool { return list[i].Source >= source })
	if i == len(list) || list[i].Source != source {
		return 0, false
	}
	return uint32(i), true
}
