package model

import (
	"fmt"
)

// NodeID is the global identifier of a node (neuron or device) in the
// network. IDs are 1-based; 0 is reserved as invalid.
type NodeID uint64

// InvalidNodeID is the zero NodeID; it never refers to a real node.
const InvalidNodeID NodeID = 0

// SynapseTypeID indexes the process-wide synapse model table. IDs are
// assigned once at model registration and never reused.
type SynapseTypeID uint8

// LCID is the dense, zero-based index of a connection within its
// (thread, synapse type) storage slab. It is transient: compaction
// invalidates every LCID at or after the first tombstone.
type LCID uint32

const (
	// lcidBits bounds LCID so it packs into a Target word together with
	// rank, thread and synapse type.
	lcidBits = 27

	// MaxLCID is the largest storable connection index per
	// (thread, synapse type) slab. Appending beyond it is a
	// resource-limit error.
	MaxLCID LCID = 1<<lcidBits - 1

	// InvalidLCID is the "not found" sentinel.
	InvalidLCID LCID = 1<<lcidBits | MaxLCID
)

const (
	rankBits   = 20
	threadBits = 10
	synBits    = 6

	// MaxRanks and MaxThreads bound the process layout so a routing
	// target fits into a single 64-bit word.
	MaxRanks   = 1 << rankBits
	MaxThreads = 1 << threadBits

	// MaxSynapseTypes bounds the synapse model table.
	MaxSynapseTypes = 1 << synBits
)

// Target is a packed routing-table entry.
//
// Format: [primary:1][syn:6][thread:10][rank:20][payload:27]
//
// The payload is a compressed-source-map position for primary connections
// and a receive-buffer offset for secondary connections. Packing keeps the
// routing tables at one word per remote target, which dominates memory on
// large networks.
//
// The thread field is reserved for uncompressed routing, where an entry
// addresses one thread-local connection. Entries built from exchanged
// target data leave it zero: the compressed-map position already fans out
// to every thread of the destination rank, so no single delivery thread
// exists at packing time.
type Target uint64

const (
	payloadMask = 1<<lcidBits - 1
	rankShift   = lcidBits
	threadShift = rankShift + rankBits
	synShift    = threadShift + threadBits
	primaryBit  = Target(1) << 63
)

// NewTarget packs a routing entry.
func NewTarget(rank, thread int, syn SynapseTypeID, payload uint32, primary bool) Target {
	t := Target(payload&payloadMask) |
		Target(rank&(MaxRanks-1))<<rankShift |
		Target(thread&(MaxThreads-1))<<threadShift |
		Target(syn)<<synShift
	if primary {
		t |= primaryBit
	}
	return t
}

// Rank extracts the destination rank.
func (t Target) Rank() int { return int(t>>rankShift) & (MaxRanks - 1) }

// Thread extracts the destination thread within the rank.
func (t Target) Thread() int { return int(t>>threadShift) & (MaxThreads - 1) }

// SynapseType extracts the synapse type id.
func (t Target) SynapseType() SynapseTypeID {
	return SynapseTypeID(t>>synShift) & (MaxSynapseTypes - 1)
}

// Payload extracts the compressed-map position (primary) or
// receive-buffer offset (secondary).
func (t Target) Payload() uint32 { return uint32(t) & payloadMask }

// Primary reports whether the entry routes discrete spikes rather than
// continuous signals.
func (t Target) Primary() bool { return t&primaryBit != 0 }

// String returns a debug representation.
func (t Target) String() string {
	kind := "secondary"
	if t.Primary() {
		kind = "primary"
	}
	return fmt.Sprintf("Target(rank=%d thread=%d syn=%d payload=%d %s)",
		t.Rank(), t.Thread(), t.SynapseType(), t.Payload(), kind)
}

// SourceEntry is one slot of the source index, packed to a single word:
// the source node id plus the two lifecycle flags the sort and delivery
// paths need.
//
// Format: [disabled:1][moreTargets:1][id:62]
type SourceEntry uint64

const (
	sourceIDBits = 62
	sourceIDMask = SourceEntry(1)<<sourceIDBits - 1
	moreBit      = SourceEntry(1) << 62
	disabledBit  = SourceEntry(1) << 63
)

// NewSourceEntry creates an enabled entry for the given source node.
func NewSourceEntry(id NodeID) SourceEntry {
	return SourceEntry(id) & sourceIDMask
}

// Source returns the source node id.
func (s SourceEntry) Source() NodeID { return NodeID(s & sourceIDMask) }

// Disabled reports whether the connection was tombstoned.
func (s SourceEntry) Disabled() bool { return s&disabledBit != 0 }

// MoreTargets reports whether the next enabled entry shares this source.
// Valid only in sorted state; delivery uses it to walk a source run with
// a single lookup.
func (s SourceEntry) MoreTargets() bool { return s&moreBit != 0 }

// WithDisabled returns the entry with the tombstone flag set.
func (s SourceEntry) WithDisabled() SourceEntry { return s | disabledBit }

// WithMoreTargets returns the entry with the run-continuation flag set to v.
func (s SourceEntry) WithMoreTargets(v bool) SourceEntry {
	if v {
		return s | moreBit
	}
	return s &^ moreBit
}

// Connection is one directed weighted edge. Records are exclusively owned
// by their storage slot and identified by (thread, synapse type, LCID).
type Connection struct {
	// Target is the global id of the postsynaptic node.
	Target NodeID

	// Receptor is the port on the target the event is delivered to.
	Receptor int

	// DelaySteps is the transmission delay in resolution steps. It must
	// lie within the process-wide delay extrema.
	DelaySteps int32

	// Weight is the synaptic efficacy.
	Weight float64

	// Label is an optional user tag for introspection filters; -1 when
	// unset.
	Label int

	// Params holds synapse-specific state produced by the model factory
	// (plasticity traces, time constants). Nil for static synapses.
	Params []float64
}

// Descriptor identifies one connection in introspection query results.
type Descriptor struct {
	Source       NodeID
	Target       NodeID
	TargetThread int
	SynapseType  SynapseTypeID
	LCID         LCID
}

// Less orders descriptors canonically: by source, target, synapse type,
// thread, lcid. Query results are set-equal across repetitions; sorting
// makes them comparable.
func (d Descriptor) Less(o Descriptor) bool {
	if d.Source != o.Source {
		return d.Source < o.Source
	}
	if d.Target != o.Target {
		return d.Target < o.Target
	}
	if d.SynapseType != o.SynapseType {
		return d.SynapseType < o.SynapseType
	}
	if d.TargetThread != o.TargetThread {
		return d.TargetThread < o.TargetThread
	}
	return d.LCID < o.LCID
}
