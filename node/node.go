// Package node defines the collaborator seam between the connection
// infrastructure and the rest of a simulator: node handles, node lookup
// and the event types pushed into nodes at delivery time.
//
// The infrastructure never inspects node dynamics. It needs exactly three
// things from a node implementation: its owning thread, whether it is a
// globally replicated device, and a way to push a finished event.
package node

import (
	"github.com/nest/nest-simulator-sub010/model"
)

// Event is a runtime signal delivered to a node.
type Event interface {
	// Sender returns the originating node.
	Sender() model.NodeID
}

// SpikeEvent is the primary event: a discrete spike with weight, delay and
// multiplicity.
type SpikeEvent struct {
	SenderID     model.NodeID
	Weight       float64
	DelaySteps   int32
	Receptor     int
	Multiplicity int
}

// Sender implements Event.
func (e *SpikeEvent) Sender() model.NodeID { return e.SenderID }

// RateEvent is the secondary event: a continuously valued signal carried
// through the buffered secondary channel.
type RateEvent struct {
	SenderID model.NodeID
	Weight   float64
	Receptor int
	Values   []float64
}

// Sender implements Event.
func (e *RateEvent) Sender() model.NodeID { return e.SenderID }

// Node is the local handle of a node on this rank.
type Node interface {
	// ID returns the global node id.
	ID() model.NodeID

	// Thread returns the thread owning this handle. Devices are
	// replicated and return the thread of the replica.
	Thread() int

	// IsDevice reports whether the node is a globally replicated device
	// (spike generators, recorders). Device edges live in the device
	// table, not the main connection store.
	IsDevice() bool

	// Deliver pushes a finished event into the node.
	Deliver(ev Event)
}

// Lookup resolves node ids to local handles. Implemented by the network's
// node storage; the connection infrastructure treats it as read-only.
type Lookup interface {
	// Get returns the handle of id on thread tid, or false when the node
	// has no presence on that thread (remote node, or neuron owned by a
	// different thread).
	Get(tid int, id model.NodeID) (Node, bool)
}
