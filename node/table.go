package node

import (
	"sync"

	"github.com/nest/nest-simulator-sub010/model"
	"github.com/nest/nest-simulator-sub010/vp"
)

// Basic is a minimal Node implementation. It records delivered events,
// which is all the infrastructure's own tooling (fixtures, the CLI dry-run
// path) needs; real simulators bring their own Node types.
type Basic struct {
	id     model.NodeID
	thread int
	device bool

	mu     sync.Mutex
	events []Event
}

// NewBasic creates a handle for id owned by thread.
func NewBasic(id model.NodeID, thread int, device bool) *Basic {
	return &Basic{id: id, thread: thread, device: device}
}

// ID implements Node.
func (b *Basic) ID() model.NodeID { return b.id }

// Thread implements Node.
func (b *Basic) Thread() int { return b.thread }

// IsDevice implements Node.
func (b *Basic) IsDevice() bool { return b.device }

// Deliver implements Node.
func (b *Basic) Deliver(ev Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

// Events returns a snapshot of everything delivered so far.
func (b *Basic) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Table is a Lookup backed by the VP layout: neurons resolve only on their
// owning thread of the local rank, devices are replicated on every thread.
type Table struct {
	layout vp.Layout
	rank   int

	mu      sync.RWMutex
	neurons map[model.NodeID]*Basic
	devices map[model.NodeID][]*Basic // one replica per thread
}

// NewTable creates an empty table for the given rank of the layout.
func NewTable(layout vp.Layout, rank int) *Table {
	return &Table{
		layout:  layout,
		rank:    rank,
		neurons: make(map[model.NodeID]*Basic),
		devices: make(map[model.NodeID][]*Basic),
	}
}

// AddNeuron registers a neuron if it is local to this rank. It returns the
// created handle, or nil for remote nodes.
func (t *Table) AddNeuron(id model.NodeID) *Basic {
	if !t.layout.IsLocal(id, t.rank) {
		return nil
	}
	n := NewBasic(id, t.layout.ThreadOf(id), false)
	t.mu.Lock()
	t.neurons[id] = n
	t.mu.Unlock()
	return n
}

// AddDevice registers a device, replicated on every local thread.
func (t *Table) AddDevice(id model.NodeID) []*Basic {
	replicas := make([]*Basic, t.layout.ThreadsPerRank())
	for tid := range replicas {
		replicas[tid] = NewBasic(id, tid, true)
	}
	t.mu.Lock()
	t.devices[id] = replicas
	t.mu.Unlock()
	return replicas
}

// Get implements Lookup.
func (t *Table) Get(tid int, id model.NodeID) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if replicas, ok := t.devices[id]; ok {
		if tid < 0 || tid >= len(replicas) {
			return nil, false
		}
		return replicas[tid], true
	}
	n, ok := t.neurons[id]
	if !ok || n.Thread() != tid {
		return nil, false
	}
	return n, true
}
