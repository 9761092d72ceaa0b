// Package store implements the sharded connection storage: per
// (thread, synapse type) dense parallel arrays of connection records and
// source-index entries.
//
// Ownership rules keep the hot paths race-free without locks: every slab
// is written only by the thread owning its targets during parallel build
// regions. Sorting, compaction and cross-thread scans run in serial phases
// outside parallel regions.
//
// The sort groups all connections sharing a source into a contiguous run,
// so delivery performs one binary search per distinct source instead of one
// per edge. That is the entire performance case for this layout.
package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nest/nest-simulator-sub010/model"
)

var (
	// ErrUnsorted is returned by lookups that require sorted state.
	ErrUnsorted = errors.New("store: slab is not sorted")
)

// ErrTooManyConnections indicates that a (thread, synapse type) slab hit
// the LCID limit.
type ErrTooManyConnections struct {
	Thread      int
	SynapseType model.SynapseTypeID
}

func (e *ErrTooManyConnections) Error() string {
	return fmt.Sprintf("store: connection limit %d reached on thread %d, synapse type %d",
		model.MaxLCID, e.Thread, e.SynapseType)
}

// ErrNoConnection indicates an lcid that does not address a live record.
type ErrNoConnection struct {
	Thread      int
	SynapseType model.SynapseTypeID
	LCID        model.LCID
}

func (e *ErrNoConnection) Error() string {
	return fmt.Sprintf("store: no connection (thread=%d syn=%d lcid=%d)",
		e.Thread, e.SynapseType, e.LCID)
}

// slab holds the parallel arrays of one (thread, synapse type) pair.
type slab struct {
	conns   []model.Connection
	sources []model.SourceEntry

	sorted bool
	// sortedLen is the length of the source-ordered prefix established by
	// the last sort. Disabling entries in place preserves that order, so
	// binary search stays valid between a sort and the next append.
	sortedLen  int
	tombstones int
}

// Store is the per-rank connection storage, sharded by thread and synapse
// type.
type Store struct {
	threads int
	slabs   [][]*slab // [thread][synapse type]
}

// New creates storage for the given thread count.
func New(threads int) *Store {
	s := &Store{threads: threads, slabs: make([][]*slab, threads)}
	return s
}

// NumThreads returns the thread count the store was built for.
func (s *Store) NumThreads() int { return s.threads }

func (s *Store) slabAt(tid int, syn model.SynapseTypeID) *slab {
	row := s.slabs[tid]
	if int(syn) >= len(row) {
		return nil
	}
	return row[syn]
}

func (s *Store) slabGrow(tid int, syn model.SynapseTypeID) *slab {
	row := s.slabs[tid]
	for int(syn) >= len(row) {
		row = append(row, nil)
	}
	if row[syn] == nil {
		row[syn] = &slab{sorted: true} // empty slabs are trivially sorted
	}
	s.slabs[tid] = row
	return row[syn]
}

// Append adds a connection and returns its lcid. Amortized O(1); called
// only by the thread owning tid during parallel regions.
func (s *Store) Append(tid int, syn model.SynapseTypeID, source model.NodeID, c model.Connection) (model.LCID, error) {
	sl := s.slabGrow(tid, syn)
	if model.LCID(len(sl.conns)) > model.MaxLCID {
		return model.InvalidLCID, &ErrTooManyConnections{Thread: tid, SynapseType: syn}
	}
	lcid := model.LCID(len(sl.conns))
	sl.conns = append(sl.conns, c)
	sl.sources = append(sl.sources, model.NewSourceEntry(source))
	sl.sorted = false
	return lcid, nil
}

// Get returns a pointer to a live connection record. The pointer is valid
// until the next sort or compaction.
func (s *Store) Get(tid int, syn model.SynapseTypeID, lcid model.LCID) (*model.Connection, error) {
	sl := s.slabAt(tid, syn)
	if sl == nil || int(lcid) >= len(sl.conns) || sl.sources[lcid].Disabled() {
		return nil, &ErrNoConnection{Thread: tid, SynapseType: syn, LCID: lcid}
	}
	return &sl.conns[lcid], nil
}

// SourceAt returns the source-index entry for an lcid.
func (s *Store) SourceAt(tid int, syn model.SynapseTypeID, lcid model.LCID) (model.SourceEntry, error) {
	sl := s.slabAt(tid, syn)
	if sl == nil || int(lcid) >= len(sl.sources) {
		return 0, &ErrNoConnection{Thread: tid, SynapseType: syn, LCID: lcid}
	}
	return sl.sources[lcid], nil
}

// Disable tombstones a connection without shifting indices, so lcids
// cached elsewhere stay valid until the next compaction.
func (s *Store) Disable(tid int, syn model.SynapseTypeID, lcid model.LCID) error {
	sl := s.slabAt(tid, syn)
	if sl == nil || int(lcid) >= len(sl.sources) || sl.sources[lcid].Disabled() {
		return &ErrNoConnection{Thread: tid, SynapseType: syn, LCID: lcid}
	}
	sl.sources[lcid] = sl.sources[lcid].WithDisabled()
	sl.tombstones++
	return nil
}

// Size returns the number of stored entries including tombstones.
func (s *Store) Size(tid int, syn model.SynapseTypeID) int {
	sl := s.slabAt(tid, syn)
	if sl == nil {
		return 0
	}
	return len(sl.conns)
}

// EnabledCount returns the number of live connections in a slab.
func (s *Store) EnabledCount(tid int, syn model.SynapseTypeID) int {
	sl := s.slabAt(tid, syn)
	if sl == nil {
		return 0
	}
	return len(sl.conns) - sl.tombstones
}

// NumTypes returns the number of synapse-type slots present on a thread.
func (s *Store) NumTypes(tid int) int {
	return len(s.slabs[tid])
}

// slabSorter sorts sources and conns in lockstep: enabled entries first,
// non-decreasing in source id, tombstones pushed to the tail.
type slabSorter struct{ *slab }

func (ss slabSorter) Len() int { return len(ss.sources) }

func (ss slabSorter) Less(i, j int) bool {
	si, sj := ss.sources[i], ss.sources[j]
	if si.Disabled() != sj.Disabled() {
		return !si.Disabled()
	}
	return si.Source() < sj.Source()
}

func (ss slabSorter) Swap(i, j int) {
	ss.sources[i], ss.sources[j] = ss.sources[j], ss.sources[i]
	ss.conns[i], ss.conns[j] = ss.conns[j], ss.conns[i]
}

// Sort orders every slab of a thread by source id with tombstones at the
// tail, then rewrites the run-continuation flags. Must run outside
// parallel regions; it invalidates cached lcids.
func (s *Store) Sort(tid int) {
	for _, sl := range s.slabs[tid] {
		if sl == nil || sl.sorted {
			continue
		}
		sort.Stable(slabSorter{sl})
		sl.refreshRunFlags()
		sl.sorted = true
		sl.sortedLen = len(sl.sources) - sl.tombstones
	}
}

// refreshRunFlags marks every enabled entry that is followed by another
// enabled entry with the same source.
func (sl *slab) refreshRunFlags() {
	n := len(sl.sources) - sl.tombstones
	for i := 0; i < n; i++ {
		more := i+1 < n && sl.sources[i+1].Source() == sl.sources[i].Source()
		sl.sources[i] = sl.sources[i].WithMoreTargets(more)
	}
	for i := n; i < len(sl.sources); i++ {
		sl.sources[i] = sl.sources[i].WithMoreTargets(false)
	}
}

// Compact physically drops tombstones from every slab of a thread as a
// stable in-place filter. All lcids at or after the first tombstone are
// invalidated; callers must rebuild routing tables afterwards.
func (s *Store) Compact(tid int) {
	for _, sl := range s.slabs[tid] {
		if sl == nil || sl.tombstones == 0 {
			continue
		}
		w := 0
		for r := range sl.sources {
			if sl.sources[r].Disabled() {
				continue
			}
			if w != r {
				sl.sources[w] = sl.sources[r]
				sl.conns[w] = sl.conns[r]
			}
			w++
		}
		sl.conns = sl.conns[:w:w]
		sl.sources = sl.sources[:w:w]
		sl.tombstones = 0
		if sl.sorted {
			sl.sortedLen = w
			sl.refreshRunFlags()
		}
	}
}

// Sorted reports whether every slab of the thread is in sorted state.
func (s *Store) Sorted(tid int) bool {
	for _, sl := range s.slabs[tid] {
		if sl != nil && !sl.sorted {
			return false
		}
	}
	return true
}

// FindFirstSource returns the lcid of the first enabled connection with
// the given source. Requires sorted state; returns model.InvalidLCID when
// the source has no connections in the slab.
func (s *Store) FindFirstSource(tid int, syn model.SynapseTypeID, source model.NodeID) (model.LCID, error) {
	sl := s.slabAt(tid, syn)
	if sl == nil {
		return model.InvalidLCID, nil
	}
	if !sl.sorted {
		return model.InvalidLCID, ErrUnsorted
	}
	n := sl.sortedLen
	i := sort.Search(n, func(i int) bool {
		return sl.sources[i].Source() >= source
	})
	// Entries disabled after the sort stay in place; skip them without
	// leaving the source run.
	for i < n && sl.sources[i].Source() == source && sl.sources[i].Disabled() {
		i++
	}
	if i == n || sl.sources[i].Source() != source {
		return model.InvalidLCID, nil
	}
	return model.LCID(i), nil
}

// ForEachEnabled calls fn for every live connection of (tid, syn) in
// storage order. fn must not mutate the store.
func (s *Store) ForEachEnabled(tid int, syn model.SynapseTypeID, fn func(lcid model.LCID, source model.NodeID, c *model.Connection) bool) {
	sl := s.slabAt(tid, syn)
	if sl == nil {
		return
	}
	for i := range sl.sources {
		if sl.sources[i].Disabled() {
			continue
		}
		if !fn(model.LCID(i), sl.sources[i].Source(), &sl.conns[i]) {
			return
		}
	}
}

// Reset drops all storage, for a finalize/initialize cycle after a
// thread-count or resolution change.
func (s *Store) Reset(threads int) {
	s.threads = threads
	s.slabs = make([][]*slab, threads)
}
