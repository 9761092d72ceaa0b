// Package exchange rebuilds routing tables across ranks with a fixed-size,
// resumable all-to-all protocol: metadata volume may need many rounds, but
// every rank stays in lockstep on buffer size and the final tables are
// independent of how rounds split the data.
package exchange

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nest/nest-simulator-sub010/model"
)

// Marker classifies one TargetData slot.
type Marker uint8

const (
	// MarkerInvalid fills slots a thread wrote nothing into this round.
	MarkerInvalid Marker = iota
	// MarkerData is a live routing record.
	MarkerData
	// MarkerEnd terminates a thread's region for this round; no further
	// records follow in the region.
	MarkerEnd
)

// TargetData is the wire record of the exchange: one remote target run for
// a source node, sent from the target-owning rank to the source-owning
// rank.
type TargetData struct {
	Marker Marker

	// Primary selects the payload interpretation.
	Primary bool

	// SourceThread is the thread owning Source on the receiving rank.
	SourceThread uint16

	// Source is the global source node id.
	Source model.NodeID

	// SynType is the synapse type of the run.
	SynType model.SynapseTypeID

	// Payload is the sender's compressed-map position (primary) or the
	// receive-buffer offset relative to the sender's displacement
	// (secondary).
	Payload uint32
}

// ErrBufferMismatch is the fatal protocol violation: ranks disagree on
// collective buffer sizing. There is no recovery; the caller must abort.
var ErrBufferMismatch = errors.New("exchange: inconsistent buffer size across ranks")

// Communicator is the collective-communication seam. The production
// implementation wraps MPI; tests and single-process runs use Group.
// Collectives must only be called from serial phases, never inside
// parallel regions.
type Communicator interface {
	// Rank returns this process's rank.
	Rank() int

	// NumRanks returns the number of ranks in the group.
	NumRanks() int

	// AllToAll exchanges fixed-size per-rank chunks. send holds
	// NumRanks()*chunk records, bucket r destined for rank r; the result
	// has the same shape with bucket r received from rank r. All ranks
	// must pass the same chunk or the collective fails with
	// ErrBufferMismatch.
	AllToAll(send []TargetData, chunk int) ([]TargetData, error)

	// AllTrue returns the logical AND of every rank's flag.
	AllTrue(local bool) (bool, error)

	// AllGatherUint64 gathers a variable-length vector from every rank,
	// indexed by rank in the result.
	AllGatherUint64(vals []uint64) ([][]uint64, error)
}

// Group is an in-process communicator group: n ranks driven by n
// goroutines, synchronized with a generation barrier. It exists for tests
// and single-machine multi-rank runs; it implements the same lockstep
// contract as the MPI transport.
type Group struct {
	n int

	mu       sync.Mutex
	cond     *sync.Cond
	arrived  int
	phase    uint64
	payloads []any
	current  []any
}

// NewGroup creates a communicator group of n ranks.
func NewGroup(n int) (*Group, error) {
	if n <= 0 {
		return nil, fmt.Errorf("exchange: invalid group size %d", n)
	}
	g := &Group{n: n, payloads: make([]any, n)}
	g.cond = sync.NewCond(&g.mu)
	return g, nil
}

// Comm returns the Communicator endpoint of one rank.
func (g *Group) Comm(rank int) Communicator {
	return &groupComm{g: g, rank: rank}
}

// gather is the generation-barrier allgather every collective is built on.
// It blocks until all n ranks have contributed, then returns the full
// contribution vector.
func (g *Group) gather(rank int, payload any) []any {
	g.mu.Lock()
	defer g.mu.Unlock()

	phase := g.phase
	g.payloads[rank] = payload
	g.arrived++
	if g.arrived == g.n {
		snapshot := make([]any, g.n)
		copy(snapshot, g.payloads)
		g.current = snapshot
		g.arrived = 0
		g.phase++
		g.cond.Broadcast()
		return snapshot
	}
	for g.phase == phase {
		g.cond.Wait()
	}
	// The next phase cannot complete before this rank contributes again,
	// so current still belongs to our phase.
	return g.current
}

type groupComm struct {
	g    *Group
	rank int
}

func (c *groupComm) Rank() int     { return c.rank }
func (c *groupComm) NumRanks() int { return c.g.n }

type a2aPayload struct {
	chunk int
	data  []TargetData
}

func (c *groupComm) AllToAll(send []TargetData, chunk int) ([]TargetData, error) {
	if len(send) != c.g.n*chunk {
		return nil, fmt.Errorf("%w: send buffer %d != ranks %d * chunk %d",
			ErrBufferMismatch, len(send), c.g.n, chunk)
	}
	all := c.g.gather(c.rank, a2aPayload{chunk: chunk, data: send})

	recv := make([]TargetData, c.g.n*chunk)
	for r, raw := range all {
		p := raw.(a2aPayload)
		if p.chunk != chunk {
			return nil, fmt.Errorf("%w: rank %d uses chunk %d, rank %d uses %d",
				ErrBufferMismatch, c.rank, chunk, r, p.chunk)
		}
		copy(recv[r*chunk:(r+1)*chunk], p.data[c.rank*chunk:(c.rank+1)*chunk])
	}
	return recv, nil
}

func (c *groupComm) AllTrue(local bool) (bool, error) {
	all := c.g.gather(c.rank, local)
	for _, v := range all {
		if !v.(bool) {
			return false, nil
		}
	}
	return true, nil
}

func (c *groupComm) AllGatherUint64(vals []uint64) ([][]uint64, error) {
	all := c.g.gather(c.rank, vals)
	out := make([][]uint64, c.g.n)
	for r, v := range all {
		out[r] = v.([]uint64)
	}
	return out, nil
}

// Single returns a one-rank communicator for serial runs.
func Single() Communicator {
	g, _ := NewGroup(1)
	return g.Comm(0)
}
