package routing

import (
	"sort"

	"github.com/nest/nest-simulator-sub010/model"
)

// Table is the target routing table: for every local source node, per
// owning thread, the packed remote targets its events must reach. The
// table is rebuilt wholesale by the exchange protocol and read-only during
// delivery.
type Table struct {
	targets []map[model.NodeID][]model.Target // [thread]
}

// NewTable creates an empty routing table for the given thread count.
func NewTable(threads int) *Table {
	t := &Table{targets: make([]map[model.NodeID][]model.Target, threads)}
	for i := range t.targets {
		t.targets[i] = make(map[model.NodeID][]model.Target)
	}
	return t
}

// Add appends a routing entry for a local source node owned by thread tid.
// Only the exchange protocol writes the table.
func (t *Table) Add(tid int, source model.NodeID, tgt model.Target) {
	t.targets[tid][source] = append(t.targets[tid][source], tgt)
}

// Finalize sorts every target list canonically. Exchange round boundaries
// are a performance artifact; sorting makes the final table independent of
// how records were split across rounds.
func (t *Table) Finalize() {
	for _, m := range t.targets {
		for _, list := range m {
			sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		}
	}
}

// Targets returns the routing entries of a local source node, or nil.
func (t *Table) Targets(tid int, source model.NodeID) []model.Target {
	return t.targets[tid][source]
}

// Len returns the total number of routing entries.
func (t *Table) Len() int {
	n := 0
	for _, m := range t.targets {
		for _, list := range m {
			n += len(list)
		}
	}
	return n
}

// FlatEntry is one routing entry in canonical snapshot form.
type FlatEntry struct {
	Thread int
	Source model.NodeID
	Target model.Target
}

// Snapshot returns every entry in canonical order. Used to compare tables
// built with different exchange buffer sizes.
func (t *Table) Snapshot() []FlatEntry {
	var out []FlatEntry
	for tid, m := range t.targets {
		for src, list := range m {
			for _, tgt := range list {
				out = append(out, FlatEntry{Thread: tid, Source: src, Target: tgt})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Thread != b.Thread {
			return a.Thread < b.Thread
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Target < b.Target
	})
	return out
}
