// Package device stores connections that touch globally replicated device
// nodes. Devices exist on every thread of every rank, so their edges never
// cross ranks and need none of the routing machinery of the main store:
// a simple per-thread table keyed by the local node is enough.
package device

import (
	"fmt"

	"github.com/nest/nest-simulator-sub010/model"
)

// Direction distinguishes the two device edge classes.
type Direction int

const (
	// FromDevice edges have a device source (spike generator to neuron).
	FromDevice Direction = iota
	// ToDevice edges have a device target (neuron to recorder).
	ToDevice
)

func (d Direction) String() string {
	if d == FromDevice {
		return "from_device"
	}
	return "to_device"
}

// ErrNoDeviceConnection indicates a device edge that does not exist.
type ErrNoDeviceConnection struct {
	Thread      int
	Node        model.NodeID
	SynapseType model.SynapseTypeID
	LCID        model.LCID
}

func (e *ErrNoDeviceConnection) Error() string {
	return fmt.Sprintf("device: no connection (thread=%d node=%d syn=%d lcid=%d)",
		e.Thread, e.Node, e.SynapseType, e.LCID)
}

// edge pairs a connection record with its synapse type; device slabs are
// small and heterogeneous, so the dense per-type split of the main store
// would be wasted on them.
type edge struct {
	syn      model.SynapseTypeID
	source   model.NodeID
	disabled bool
	conn     model.Connection
}

type threadTable struct {
	// keyed by the non-replicated endpoint's anchor node: the device id
	// for FromDevice edges, the device id for ToDevice edges.
	fromDevice map[model.NodeID][]edge
	toDevice   map[model.NodeID][]edge
}

// Table is the per-thread device connection storage. Each thread writes
// only its own sub-table during parallel regions.
type Table struct {
	threads []threadTable
}

// NewTable creates device storage for the given thread count.
func NewTable(threads int) *Table {
	t := &Table{threads: make([]threadTable, threads)}
	for i := range t.threads {
		t.threads[i] = threadTable{
			fromDevice: make(map[model.NodeID][]edge),
			toDevice:   make(map[model.NodeID][]edge),
		}
	}
	return t
}

// NumThreads returns the thread count the table was built for.
func (t *Table) NumThreads() int { return len(t.threads) }

func (t *Table) bucket(tid int, dir Direction) map[model.NodeID][]edge {
	if dir == FromDevice {
		return t.threads[tid].fromDevice
	}
	return t.threads[tid].toDevice
}

// Add appends a device edge and returns its lcid within the anchor's slab.
// The anchor is always the device id; source is the presynaptic node
// (equal to the anchor for FromDevice edges).
func (t *Table) Add(tid int, dir Direction, device, source model.NodeID, syn model.SynapseTypeID, c model.Connection) model.LCID {
	b := t.bucket(tid, dir)
	lcid := model.LCID(len(b[device]))
	b[device] = append(b[device], edge{syn: syn, source: source, conn: c})
	return lcid
}

// Disable tombstones a device edge.
func (t *Table) Disable(tid int, dir Direction, device model.NodeID, lcid model.LCID) error {
	b := t.bucket(tid, dir)
	edges := b[device]
	if int(lcid) >= len(edges) || edges[lcid].disabled {
		return &ErrNoDeviceConnection{Thread: tid, Node: device, LCID: lcid}
	}
	edges[lcid].disabled = true
	return nil
}

// ForEach visits every live device edge of a thread and direction.
func (t *Table) ForEach(tid int, dir Direction, fn func(device model.NodeID, lcid model.LCID, syn model.SynapseTypeID, source model.NodeID, c *model.Connection) bool) {
	for dev, edges := range t.bucket(tid, dir) {
		for i := range edges {
			if edges[i].disabled {
				continue
			}
			if !fn(dev, model.LCID(i), edges[i].syn, edges[i].source, &edges[i].conn) {
				return
			}
		}
	}
}

// Count returns the number of live edges on a thread in one direction.
func (t *Table) Count(tid int, dir Direction) int {
	n := 0
	for _, edges := range t.bucket(tid, dir) {
		for i := range edges {
			if !edges[i].disabled {
				n++
			}
		}
	}
	return n
}

// Reset drops all storage for a finalize/initialize cycle.
func (t *Table) Reset(threads int) {
	*t = *NewTable(threads)
}
