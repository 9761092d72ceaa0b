package routing

import (
	"github.com/nest/nest-simulator-sub010/model"
	"github.com/nest/nest-simulator-sub010/store"
)

// SecondaryOffsetCache maps every secondary (continuous-signal) connection
// to the offset in this rank's receive buffer where its source's value
// arrives. Offsets are relative to the per-sender-rank displacement, so
// they stay valid regardless of how the transport lays out rank regions.
//
// The cache is recomputed together with the compressed source map and is
// never mutated on the delivery hot path.
type SecondaryOffsetCache struct {
	// offsets[tid][syn][lcid]; model.InvalidLCID-sized slabs of primary
	// types stay nil.
	offsets [][][]uint32
}

// NewSecondaryOffsetCache creates an empty cache.
func NewSecondaryOffsetCache() *SecondaryOffsetCache {
	return &SecondaryOffsetCache{}
}

// Build recomputes all offsets.
//
// For each secondary type, a source's slot in the receive region of its
// rank is its position among that rank's sources in compressed-map order;
// per-type displacements stack the type regions. rankOf derives the owning
// rank from the source id; isSecondary reports non-primary types.
func (c *SecondaryOffsetCache) Build(st *store.Store, cm *Map, rankOf func(model.NodeID) int, isSecondary func(model.SynapseTypeID) bool) {
	numTypes := cm.NumTypes()

	// Per-rank, per-type source counts. A source's slot relative to its
	// sender rank's displacement is typeDisp[rank][syn] plus its position
	// within (rank, syn) in compressed-map order.
	typeCount := make(map[int][]uint32)

	for syn := 0; syn < numTypes; syn++ {
		if !isSecondary(model.SynapseTypeID(syn)) {
			continue
		}
		for _, e := range cm.Entries(model.SynapseTypeID(syn)) {
			r := rankOf(e.Source)
			counts, ok := typeCount[r]
			if !ok {
				counts = make([]uint32, numTypes)
				typeCount[r] = counts
			}
			counts[syn]++
		}
	}

	// Displacements: cumulative sums per rank over type regions.
	typeDisp := make(map[int][]uint32)
	for r, counts := range typeCount {
		disp := make([]uint32, numTypes)
		var acc uint32
		for syn := 0; syn < numTypes; syn++ {
			disp[syn] = acc
			acc += counts[syn]
		}
		typeDisp[r] = disp
	}

	offsets := make([][][]uint32, st.NumThreads())
	for tid := range offsets {
		offsets[tid] = make([][]uint32, numTypes)
	}

	for syn := 0; syn < numTypes; syn++ {
		if !isSecondary(model.SynapseTypeID(syn)) {
			continue
		}
		slot := make(map[model.NodeID]uint32, len(cm.Entries(model.SynapseTypeID(syn))))
		pos := make(map[int]uint32) // per-rank running position
		for _, e := range cm.Entries(model.SynapseTypeID(syn)) {
			r := rankOf(e.Source)
			slot[e.Source] = typeDisp[r][syn] + pos[r]
			pos[r]++
		}

		for tid := 0; tid < st.NumThreads(); tid++ {
			slab := make([]uint32, st.Size(tid, model.SynapseTypeID(syn)))
			st.ForEachEnabled(tid, model.SynapseTypeID(syn), func(lcid model.LCID, source model.NodeID, _ *model.Connection) bool {
				slab[lcid] = slot[source]
				return true
			})
			offsets[tid][syn] = slab
		}
	}
	c.offsets = offsets
}

// Offset returns the receive-buffer offset of a secondary connection.
func (c *SecondaryOffsetCache) Offset(tid int, syn model.SynapseTypeID, lcid model.LCID) (uint32, bool) {
	if tid >= len(c.offsets) || int(syn) >= len(c.offsets[tid]) {
		return 0, false
	}
	slab := c.offsets[tid][syn]
	if slab == nil || int(lcid) >= len(slab) {
		return 0, false
	}
	return slab[lcid], true
}
