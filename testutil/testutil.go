package testutil

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/nest/nest-simulator-sub010/model"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed uint64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewPCG(seed, 0)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewPCG(r.seed, 0))
}

// Seed returns the initial seed.
func (r *RNG) Seed() uint64 {
	return r.seed
}

// IntN returns a non-negative pseudo-random number in [0,n).
func (r *RNG) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.IntN(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float64 returns, as a float64, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Perm returns a pseudo-random permutation of [0,n).
func (r *RNG) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Perm(n)
}

// Pair is one explicit source/target edge.
type Pair struct {
	Source model.NodeID
	Target model.NodeID
}

// RandomPairs draws n edges uniformly from sources x targets, with
// repetition. Locks only once per call.
func (r *RNG) RandomPairs(sources, targets []model.NodeID, n int) []Pair {
	r.mu.Lock()
	defer r.mu.Unlock()

	pairs := make([]Pair, n)
	for i := range pairs {
		pairs[i] = Pair{
			Source: sources[r.rand.IntN(len(sources))],
			Target: targets[r.rand.IntN(len(targets))],
		}
	}
	return pairs
}

// RandomWeights fills a slice with weights in [minW, maxW).
func (r *RNG) RandomWeights(n int, minW, maxW float64) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	span := maxW - minW
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = minW + r.rand.Float64()*span
	}
	return weights
}

// NodeIDs returns count consecutive ids starting at first. Useful for
// building populations without a Network instance.
func NodeIDs(first model.NodeID, count int) []model.NodeID {
	ids := make([]model.NodeID, count)
	for i := range ids {
		ids[i] = first + model.NodeID(i)
	}
	return ids
}

// Pairs extracts the (source, target) pairs of query results.
func Pairs(descriptors []model.Descriptor) []Pair {
	pairs := make([]Pair, len(descriptors))
	for i, d := range descriptors {
		pairs[i] = Pair{Source: d.Source, Target: d.Target}
	}
	return pairs
}

// OutDegrees counts connections per source node.
func OutDegrees(descriptors []model.Descriptor) map[model.NodeID]int {
	out := make(map[model.NodeID]int)
	for _, d := range descriptors {
		out[d.Source]++
	}
	return out
}

// InDegrees counts connections per target node.
func InDegrees(descriptors []model.Descriptor) map[model.NodeID]int {
	in := make(map[model.NodeID]int)
	for _, d := range descriptors {
		in[d.Target]++
	}
	return in
}

// SortDescriptors orders descriptors into the canonical query order.
func SortDescriptors(descriptors []model.Descriptor) {
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Less(descriptors[j])
	})
}

// BinomialBounds returns a [lo, hi] acceptance band for the number of
// successes in trials draws at probability p, five standard deviations
// wide. Seeded topologies landing outside it indicate a broken sampler,
// not bad luck.
func BinomialBounds(trials int, p float64) (int, int) {
	mean := float64(trials) * p
	sigma := math.Sqrt(float64(trials) * p * (1 - p))
	lo := int(math.Floor(mean - 5*sigma))
	if lo < 0 {
		lo = 0
	}
	hi := int(math.Ceil(mean + 5*sigma))
	if hi > trials {
		hi = trials
	}
	return lo, hi
}

// PoissonBounds returns the analogous five-sigma band for the total edge
// count of trials independent Poisson draws with the given mean.
func PoissonBounds(trials int, mean float64) (int, int) {
	total := float64(trials) * mean
	sigma := math.Sqrt(total)
	lo := int(math.Floor(total - 5*sigma))
	if lo < 0 {
		lo = 0
	}
	return lo, int(math.Ceil(total + 5*sigma))
}

// HasMirror reports whether every (s, t) pair also appears as (t, s).
// Symmetric rules must produce mirrored topologies.
func HasMirror(pairs []Pair) bool {
	seen := make(map[Pair]struct{}, len(pairs))
	for _, p := range pairs {
		seen[p] = struct{}{}
	}
	for _, p := range pairs {
		if _, ok := seen[Pair{Source: p.Target, Target: p.Source}]; !ok {
			return false
		}
	}
	return true
}
