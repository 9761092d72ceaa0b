package coordinator

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/nest/nest-simulator-sub010/device"
	"github.com/nest/nest-simulator-sub010/model"
)

// Filter narrows a Connections query. Zero values match everything; stored
// labels are never 0, so Label 0 means "any".
type Filter struct {
	Source model.NodeID
	Target model.NodeID
	Model  string
	Label  int
}

func (f Filter) matches(source model.NodeID, conn *model.Connection) bool {
	if f.Source != 0 && source != f.Source {
		return false
	}
	if f.Target != 0 && conn.Target != f.Target {
		return false
	}
	if f.Label != 0 && conn.Label != f.Label {
		return false
	}
	return true
}

// Connections returns descriptors of every local connection matching the
// filter, in canonical order. If the topology is dirty it rebuilds first,
// so repeated queries without intervening mutation see the same snapshot;
// in that case the call is collective like Rebuild.
func (c *Coordinator) Connections(ctx context.Context, f Filter) ([]model.Descriptor, error) {
	if c.dirty.Load() {
		if err := c.Rebuild(ctx); err != nil {
			return nil, err
		}
	}

	synFilter := model.SynapseTypeID(0)
	hasSynFilter := false
	if f.Model != "" {
		syn, err := c.synapses.ByName(f.Model)
		if err != nil {
			return nil, err
		}
		synFilter, hasSynFilter = syn, true
	}

	threads := c.layout.ThreadsPerRank()
	perThread := make([][]model.Descriptor, threads)
	g, _ := errgroup.WithContext(ctx)
	for tid := 0; tid < threads; tid++ {
		g.Go(func() error {
			perThread[tid] = c.scanThread(tid, f, synFilter, hasSynFilter)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []model.Descriptor
	for _, part := range perThread {
		out = append(out, part...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	c.metrics.QueryObserved(len(out))
	return out, nil
}

// scanThread collects matching descriptors of one thread: the main store
// plus both directions of the device table.
func (c *Coordinator) scanThread(tid int, f Filter, synFilter model.SynapseTypeID, hasSynFilter bool) []model.Descriptor {
	var out []model.Descriptor

	for syn := 0; syn < c.st.NumTypes(tid); syn++ {
		s := model.SynapseTypeID(syn)
		if hasSynFilter && s != synFilter {
			continue
		}
		c.st.ForEachEnabled(tid, s, func(lcid model.LCID, source model.NodeID, conn *model.Connection) bool {
			if f.matches(source, conn) {
				out = append(out, model.Descriptor{
					Source:       source,
					Target:       conn.Target,
					TargetThread: tid,
					SynapseType:  s,
					LCID:         lcid,
				})
			}
			return true
		})
	}

	for _, dir := range []device.Direction{device.FromDevice, device.ToDevice} {
		c.devices.ForEach(tid, dir, func(_ model.NodeID, lcid model.LCID, syn model.SynapseTypeID, source model.NodeID, conn *model.Connection) bool {
			if hasSynFilter && syn != synFilter {
				return true
			}
			if f.matches(source, conn) {
				out = append(out, model.Descriptor{
					Source:       source,
					Target:       conn.Target,
					TargetThread: tid,
					SynapseType:  syn,
					LCID:         lcid,
				})
			}
			return true
		})
	}
	return out
}

// Count returns the number of live local connections, devices included.
func (c *Coordinator) Count() int {
	n := 0
	for tid := 0; tid < c.layout.ThreadsPerRank(); tid++ {
		for syn := 0; syn < c.st.NumTypes(tid); syn++ {
			n += c.st.EnabledCount(tid, model.SynapseTypeID(syn))
		}
		n += c.devices.Count(tid, device.FromDevice)
		n += c.devices.Count(tid, device.ToDevice)
	}
	return n
}
