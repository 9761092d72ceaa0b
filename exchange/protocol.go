package exchange

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bits-and-blooms/bitset"

	"github.com/nest/nest-simulator-sub010/model"
	"github.com/nest/nest-simulator-sub010/routing"
	"github.com/nest/nest-simulator-sub010/synapse"
	"github.com/nest/nest-simulator-sub010/vp"
)

// ErrChunkTooSmall is returned when the per-rank chunk cannot hold at
// least one record per thread.
var ErrChunkTooSmall = errors.New("exchange: chunk smaller than thread count")

// Cursor is the resumable per-thread fill position: synapse-type index and
// position within that type's compressed entries. It is a plain value, not
// a live iterator, so it survives communication rounds; the compressed map
// must stay frozen for the whole exchange for it to remain meaningful.
type Cursor struct {
	Type int
	Pos  int
}

// Protocol drives the buffer-bounded all-to-all rebuild of the target
// routing table.
type Protocol struct {
	comm   Communicator
	layout vp.Layout
	chunk  int
	logger *slog.Logger
}

// NewProtocol creates a protocol instance. chunk is the number of
// TargetData records exchanged per destination rank per round; it bounds
// peak buffer memory at NumRanks*chunk records regardless of topology
// size.
func NewProtocol(comm Communicator, layout vp.Layout, chunk int, logger *slog.Logger) (*Protocol, error) {
	if chunk < layout.ThreadsPerRank() {
		return nil, fmt.Errorf("%w: chunk %d, threads %d", ErrChunkTooSmall, chunk, layout.ThreadsPerRank())
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Protocol{comm: comm, layout: layout, chunk: chunk, logger: logger}, nil
}

// Run rebuilds the routing table from the compressed source map. The map
// is frozen for the duration; Run returns the new table and the number of
// collective rounds taken.
//
// The table content is a pure function of the map contents: chunk size
// only changes the round count, never the result.
func (p *Protocol) Run(cm *routing.Map, reg *synapse.Registry, soc *routing.SecondaryOffsetCache) (*routing.Table, int, error) {
	if cm.Frozen() {
		return nil, 0, routing.ErrMapFrozen
	}
	cm.Freeze()
	defer cm.Thaw()

	threads := p.layout.ThreadsPerRank()
	ranks := p.comm.NumRanks()
	perThread := p.chunk / threads

	table := routing.NewTable(threads)
	cursors := make([]Cursor, threads)
	for tid := range cursors {
		// Entries are striped over threads by index; thread tid starts
		// at its first owned entry.
		cursors[tid] = Cursor{Type: 0, Pos: tid}
	}
	complete := bitset.New(uint(threads))

	rounds := 0
	for {
		rounds++
		send := make([]TargetData, ranks*p.chunk)
		doneNow := make([]bool, threads)

		// Threads fill their sub-regions of every destination bucket in
		// parallel; each thread touches only its own cursor and slots.
		// The completion bitset is only read here; it is updated in the
		// serial phase below.
		err := vp.Run(threads, func(tid int) error {
			if complete.Test(uint(tid)) {
				p.fillMarkers(send, tid, perThread, nil)
				return nil
			}
			done, err := p.fillThread(send, tid, perThread, &cursors[tid], cm, reg, soc)
			if err != nil {
				return err
			}
			doneNow[tid] = done
			return nil
		})
		if err != nil {
			return nil, rounds, err
		}
		for tid, d := range doneNow {
			if d {
				complete.Set(uint(tid))
			}
		}

		recv, err := p.comm.AllToAll(send, p.chunk)
		if err != nil {
			return nil, rounds, err
		}
		p.process(recv, perThread, table)

		allDone, err := p.comm.AllTrue(complete.Count() == uint(threads))
		if err != nil {
			return nil, rounds, err
		}
		if allDone {
			break
		}
	}

	table.Finalize()
	p.logger.Debug("exchange complete",
		slog.Int("rounds", rounds),
		slog.Int("chunk", p.chunk),
		slog.Int("entries", table.Len()))
	return table, rounds, nil
}

// region returns the slots of thread tid inside destination-rank bucket r.
func (p *Protocol) region(send []TargetData, r, tid, perThread int) []TargetData {
	base := r*p.chunk + tid*perThread
	return send[base : base+perThread]
}

// fillThread writes records from the thread's cursor until every record is
// placed or the destination region of the next record is full. Returns
// true when the thread exhausted its data.
func (p *Protocol) fillThread(send []TargetData, tid, perThread int, cur *Cursor, cm *routing.Map, reg *synapse.Registry, soc *routing.SecondaryOffsetCache) (bool, error) {
	threads := p.layout.ThreadsPerRank()
	used := make([]int, p.comm.NumRanks())

	done := true
	for syn := cur.Type; syn < cm.NumTypes(); syn++ {
		entries := cm.Entries(model.SynapseTypeID(syn))
		m, err := reg.Get(model.SynapseTypeID(syn))
		if err != nil {
			return false, err
		}

		pos := cur.Pos
		if syn != cur.Type {
			pos = tid // first entry owned by this thread
		}
		for ; pos < len(entries); pos += threads {
			e := entries[pos]
			dest := p.layout.RankOf(e.Source)
			if used[dest] == perThread {
				// Bucket full: save the cursor and resume next round.
				cur.Type = syn
				cur.Pos = pos
				done = false
				break
			}

			rec := TargetData{
				Marker:       MarkerData,
				Primary:      m.Primary,
				SourceThread: uint16(p.layout.ThreadOf(e.Source)),
				Source:       e.Source,
				SynType:      model.SynapseTypeID(syn),
			}
			if m.Primary {
				rec.Payload = uint32(pos)
			} else {
				off, ok := p.secondaryOffset(e, model.SynapseTypeID(syn), soc)
				if !ok {
					return false, fmt.Errorf("exchange: no receive offset for secondary source %d (model %s)", e.Source, m.Name)
				}
				rec.Payload = off
			}
			p.region(send, dest, tid, perThread)[used[dest]] = rec
			used[dest]++
		}
		if !done {
			break
		}
	}
	if done {
		cur.Type = cm.NumTypes()
		cur.Pos = 0
	}

	p.fillMarkers(send, tid, perThread, used)
	return done, nil
}

// fillMarkers terminates every destination region of the thread: an end
// marker after the last written record, or an invalid marker when the
// thread wrote nothing for that rank this round. used == nil means the
// thread is already complete.
func (p *Protocol) fillMarkers(send []TargetData, tid, perThread int, used []int) {
	for r := 0; r < p.comm.NumRanks(); r++ {
		n := 0
		if used != nil {
			n = used[r]
		}
		region := p.region(send, r, tid, perThread)
		if n == perThread {
			continue // full region, no room for a marker; receiver scans it all
		}
		if n > 0 {
			region[n] = TargetData{Marker: MarkerEnd}
		} else {
			region[n] = TargetData{Marker: MarkerInvalid}
		}
	}
}

// secondaryOffset resolves the receive-buffer offset of a compressed entry
// through any thread that holds a run for it; the offset is identical on
// every thread.
func (p *Protocol) secondaryOffset(e routing.Entry, syn model.SynapseTypeID, soc *routing.SecondaryOffsetCache) (uint32, bool) {
	for tid, lcid := range e.FirstLCID {
		if lcid == model.InvalidLCID {
			continue
		}
		if off, ok := soc.Offset(tid, syn, lcid); ok {
			return off, true
		}
	}
	return 0, false
}

// process files received records into the routing table. Bucket r was sent
// by rank r; each record describes a target run living on that rank.
func (p *Protocol) process(recv []TargetData, perThread int, table *routing.Table) {
	threads := p.layout.ThreadsPerRank()
	for r := 0; r < p.comm.NumRanks(); r++ {
		for tid := 0; tid < threads; tid++ {
			region := p.region(recv, r, tid, perThread)
			for _, rec := range region {
				if rec.Marker != MarkerData {
					break
				}
				// Thread stays zero: the payload is a compressed-map
				// position that fans out across all threads of rank r
				// at delivery time.
				table.Add(int(rec.SourceThread), rec.Source,
					model.NewTarget(r, 0, rec.SynType, rec.Payload, rec.Primary))
			}
		}
	}
}
