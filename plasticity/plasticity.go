// Package plasticity implements structural plasticity: periodic rewiring
// driven by per-node synaptic-element vacancy counters. Vacant element
// counts are gathered across ranks, pre- and postsynaptic candidates are
// paired through a deterministic global shuffle, and edges are created or
// retracted through the coordinator.
//
// Determinism decision: the global shuffle runs on every rank with the
// same PCG stream seeded from (configured seed, update round). Every rank
// computes the identical pairing and commits only the pairs whose target
// it owns, so no drawn indices need to be communicated and results are
// reproducible for a fixed seed and rank count.
package plasticity

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/nest/nest-simulator-sub010/exchange"
	"github.com/nest/nest-simulator-sub010/model"
	"github.com/nest/nest-simulator-sub010/synapse"
	"github.com/nest/nest-simulator-sub010/vp"
)

// Rewirer is the seam back into the connection coordinator.
type Rewirer interface {
	// CreateEdge creates one edge on the rank owning the target.
	CreateEdge(source, target model.NodeID, spec synapse.Spec) error

	// RetractOutgoing tombstones up to n outgoing edges of the given
	// model from source and returns how many were removed.
	RetractOutgoing(source model.NodeID, modelName string, n int) (int, error)
}

// Config controls the rewiring process.
type Config struct {
	// Model is the synapse model used for grown edges.
	Model string

	// Weight and DelayMS parameterize grown edges. The delay must lie
	// within the frozen extrema; plasticity never widens them.
	Weight  float64
	DelayMS float64

	// Seed drives the global shuffle.
	Seed uint64

	// AllowAutapses permits self-connections when pairing.
	AllowAutapses bool
}

// counters tracks one element kind of one node.
type counters struct {
	vacant    int
	connected int
}

// Engine owns the vacancy bookkeeping of the local rank.
type Engine struct {
	layout vp.Layout
	rank   int
	comm   exchange.Communicator
	rew    Rewirer
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	pre   map[model.NodeID]*counters // axonal elements, local nodes
	post  map[model.NodeID]*counters // dendritic elements, local nodes
	round uint64
}

// NewEngine creates an engine for one rank.
func NewEngine(layout vp.Layout, comm exchange.Communicator, rew Rewirer, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		layout: layout,
		rank:   comm.Rank(),
		comm:   comm,
		rew:    rew,
		cfg:    cfg,
		logger: logger,
		pre:    make(map[model.NodeID]*counters),
		post:   make(map[model.NodeID]*counters),
	}
}

// SetPreVacancy records vacant axonal elements of a local node.
func (e *Engine) SetPreVacancy(id model.NodeID, n int) error {
	return e.setVacancy(e.pre, id, n)
}

// SetPostVacancy records vacant dendritic elements of a local node.
func (e *Engine) SetPostVacancy(id model.NodeID, n int) error {
	return e.setVacancy(e.post, id, n)
}

func (e *Engine) setVacancy(m map[model.NodeID]*counters, id model.NodeID, n int) error {
	if !e.layout.IsLocal(id, e.rank) {
		return fmt.Errorf("plasticity: node %d is not local to rank %d", id, e.rank)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := m[id]
	if !ok {
		c = &counters{}
		m[id] = c
	}
	c.vacant = n
	return nil
}

// Retract deletes up to n outgoing edges of a node whose axonal elements
// were lost, returning the number actually removed. The caller must
// trigger a routing rebuild before the next delivery phase.
func (e *Engine) Retract(id model.NodeID, n int) (int, error) {
	removed, err := e.rew.RetractOutgoing(id, e.cfg.Model, n)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	if c, ok := e.pre[id]; ok {
		c.connected -= removed
		if c.connected < 0 {
			c.connected = 0
		}
	}
	e.mu.Unlock()
	return removed, nil
}

// Step runs one global rewiring update and returns the number of edges
// created on this rank. All ranks must call Step collectively.
func (e *Engine) Step() (int, error) {
	e.mu.Lock()
	localPre := expand(e.pre)
	localPost := expand(e.post)
	round := e.round
	e.round++
	e.mu.Unlock()

	globalPre, err := e.gather(localPre)
	if err != nil {
		return 0, err
	}
	globalPost, err := e.gather(localPost)
	if err != nil {
		return 0, err
	}

	// Identical stream on every rank: pairing needs no index exchange.
	rng := rand.New(rand.NewPCG(e.cfg.Seed, round))
	rng.Shuffle(len(globalPre), func(i, j int) {
		globalPre[i], globalPre[j] = globalPre[j], globalPre[i]
	})
	rng.Shuffle(len(globalPost), func(i, j int) {
		globalPost[i], globalPost[j] = globalPost[j], globalPost[i]
	})

	pairs := len(globalPre)
	if len(globalPost) < pairs {
		pairs = len(globalPost)
	}

	created := 0
	for i := 0; i < pairs; i++ {
		source, target := globalPre[i], globalPost[i]
		if source == target && !e.cfg.AllowAutapses {
			continue
		}
		if e.layout.RankOf(target) != e.rank {
			// Every rank saw the identical pairing; the owner commits.
			e.consumeLocal(source, target)
			continue
		}
		spec := synapse.Spec{
			Model:   e.cfg.Model,
			Weight:  e.cfg.Weight,
			DelayMS: e.cfg.DelayMS,
			Label:   -1,
		}
		if err := e.rew.CreateEdge(source, target, spec); err != nil {
			return created, fmt.Errorf("plasticity: grow %d -> %d: %w", source, target, err)
		}
		created++
		e.consumeLocal(source, target)
	}

	e.logger.Debug("structural plasticity step",
		slog.Uint64("round", round),
		slog.Int("candidates_pre", len(globalPre)),
		slog.Int("candidates_post", len(globalPost)),
		slog.Int("created", created))
	return created, nil
}

// consumeLocal decrements vacancy counters for locally owned endpoints of
// a committed pair.
func (e *Engine) consumeLocal(source, target model.NodeID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.pre[source]; ok && c.vacant > 0 {
		c.vacant--
		c.connected++
	}
	if c, ok := e.post[target]; ok && c.vacant > 0 {
		c.vacant--
		c.connected++
	}
}

// expand flattens vacancy counters into one id per vacant element, in
// sorted node order for determinism.
func expand(m map[model.NodeID]*counters) []uint64 {
	ids := make([]model.NodeID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []uint64
	for _, id := range ids {
		for k := 0; k < m[id].vacant; k++ {
			out = append(out, uint64(id))
		}
	}
	return out
}

// gather concatenates per-rank candidate lists in rank order, yielding the
// identical global list on every rank.
func (e *Engine) gather(local []uint64) ([]model.NodeID, error) {
	all, err := e.comm.AllGatherUint64(local)
	if err != nil {
		return nil, err
	}
	var out []model.NodeID
	for _, vals := range all {
		for _, v := range vals {
			out = append(out, model.NodeID(v))
		}
	}
	return out, nil
}

// Vacant returns the current vacancy counters of a node (pre, post).
func (e *Engine) Vacant(id model.NodeID) (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var p, q int
	if c, ok := e.pre[id]; ok {
		p = c.vacant
	}
	if c, ok := e.post[id]; ok {
		q = c.vacant
	}
	return p, q
}
