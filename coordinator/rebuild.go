package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nest/nest-simulator-sub010/device"
	"github.com/nest/nest-simulator-sub010/model"
	"github.com/nest/nest-simulator-sub010/node"
)

// maxConcurrentCompactions bounds the memory traffic of a compaction pass;
// slabs are compacted in place but the rewrites are bandwidth-heavy.
const maxConcurrentCompactions = 4

// Rebuild brings the routing tables up to date: sort storage, rebuild the
// compressed source map and secondary offsets, run the distributed
// exchange, swap the new table in. Collective; every rank must call it.
func (c *Coordinator) Rebuild(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.SortConnections(); err != nil {
		return err
	}
	if err := c.cm.Build(c.st); err != nil {
		return err
	}
	c.soc.Build(c.st, c.cm, c.layout.RankOf, c.isSecondary)

	if err := ctx.Err(); err != nil {
		return err
	}
	table, rounds, err := c.proto.Run(c.cm, c.synapses, c.soc)
	if err != nil {
		return err
	}

	c.table.Store(table)
	c.dirty.Store(false)
	c.metrics.RebuildObserved(rounds, table.Len())
	c.logger.Info("routing rebuild",
		slog.Int("rounds", rounds),
		slog.Int("entries", table.Len()))
	return nil
}

func (c *Coordinator) isSecondary(syn model.SynapseTypeID) bool {
	m, err := c.synapses.Get(syn)
	return err == nil && !m.Primary
}

// CompactConnections physically drops tombstones from every thread's
// slabs. All lcids shift, so the topology is marked dirty and a rebuild
// must precede the next delivery phase.
func (c *Coordinator) CompactConnections(ctx context.Context) error {
	sem := semaphore.NewWeighted(maxConcurrentCompactions)
	g, ctx := errgroup.WithContext(ctx)
	for tid := 0; tid < c.layout.ThreadsPerRank(); tid++ {
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			c.st.Compact(tid)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.dirty.Store(true)
	return nil
}

// RouteTargets returns the routing entries of a local source node. Fails
// while the topology is dirty; delivery must never read stale tables.
func (c *Coordinator) RouteTargets(tid int, source model.NodeID) ([]model.Target, error) {
	if c.dirty.Load() {
		return nil, ErrStale
	}
	return c.table.Load().Targets(tid, source), nil
}

// DeliverCompressed delivers a spike to every local target of the
// compressed-map entry at position pos of type syn. This is the receiver
// side of a primary routing target: one incoming record fans out to the
// whole local target run with a single map lookup per thread.
func (c *Coordinator) DeliverCompressed(syn model.SynapseTypeID, pos uint32, ev *node.SpikeEvent) error {
	if c.dirty.Load() {
		return ErrStale
	}
	entries := c.cm.Entries(syn)
	if int(pos) >= len(entries) {
		return fmt.Errorf("coordinator: compressed position %d out of range for synapse type %d", pos, syn)
	}
	e := entries[pos]

	for tid, first := range e.FirstLCID {
		if first == model.InvalidLCID {
			continue
		}
		// Walk the contiguous source run using the continuation flags.
		for lcid := first; ; lcid++ {
			se, err := c.st.SourceAt(tid, syn, lcid)
			if err != nil {
				return err
			}
			if !se.Disabled() {
				conn, err := c.st.Get(tid, syn, lcid)
				if err != nil {
					return err
				}
				if n, ok := c.nodes.Get(tid, conn.Target); ok {
					n.Deliver(&node.SpikeEvent{
						SenderID:     e.Source,
						Weight:       conn.Weight,
						DelaySteps:   conn.DelaySteps,
						Receptor:     conn.Receptor,
						Multiplicity: ev.Multiplicity,
					})
				}
			}
			if !se.MoreTargets() {
				break
			}
		}
	}
	return nil
}

// DeliverFromDevice delivers a device-sourced spike to every local target
// of the device on one thread. Device edges bypass the exchange entirely.
func (c *Coordinator) DeliverFromDevice(tid int, dev model.NodeID, ev *node.SpikeEvent) {
	c.devices.ForEach(tid, device.FromDevice, func(anchor model.NodeID, _ model.LCID, _ model.SynapseTypeID, _ model.NodeID, conn *model.Connection) bool {
		if anchor != dev {
			return true
		}
		if n, ok := c.nodes.Get(tid, conn.Target); ok {
			n.Deliver(&node.SpikeEvent{
				SenderID:     dev,
				Weight:       conn.Weight,
				DelaySteps:   conn.DelaySteps,
				Receptor:     conn.Receptor,
				Multiplicity: ev.Multiplicity,
			})
		}
		return true
	})
}
