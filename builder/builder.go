// Package builder implements the connection-rule strategies that populate
// the connection store during thread-parallel build regions.
//
// A Builder never touches storage directly: it emits edges through the
// Connector seam, and commits an edge only on the thread owning the target.
// Probabilistic rules draw from counter-based PCG streams keyed by node id,
// so the generated topology is a pure function of the seed, independent of
// the thread and rank layout.
package builder

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/nest/nest-simulator-sub010/model"
	"github.com/nest/nest-simulator-sub010/synapse"
)

var (
	// ErrUnknownRule is returned for a rule name with no registered factory.
	ErrUnknownRule = errors.New("builder: unknown connection rule")

	// ErrEmptyCollection is returned when sources or targets are empty.
	ErrEmptyCollection = errors.New("builder: empty node collection")

	// ErrLengthMismatch is returned by one_to_one for unequal collections.
	ErrLengthMismatch = errors.New("builder: source and target collections differ in length")

	// ErrBadDegree is returned for a degree or total count the collections
	// cannot satisfy.
	ErrBadDegree = errors.New("builder: infeasible degree")

	// ErrBadProbability is returned for a connection probability or rate
	// outside its domain.
	ErrBadProbability = errors.New("builder: invalid probability")

	// ErrRegistryFrozen is returned when registering a rule after Freeze.
	ErrRegistryFrozen = errors.New("builder: rule registry is frozen")

	// ErrDuplicateRule is returned when a rule name is registered twice.
	ErrDuplicateRule = errors.New("builder: duplicate rule name")
)

// ConnSpec describes one bulk connect request.
type ConnSpec struct {
	// Rule is the registered rule name.
	Rule string

	// Indegree is the per-target degree of fixed_indegree.
	Indegree int

	// Outdegree is the per-source degree of fixed_outdegree.
	Outdegree int

	// N is the edge count of fixed_total_number.
	N int

	// P is the connection probability (pairwise_bernoulli,
	// symmetric_pairwise_bernoulli) or the mean multiplicity
	// (pairwise_poisson).
	P float64

	// Pairs are the explicit edges of the "explicit" rule.
	Pairs [][2]model.NodeID

	// AllowAutapses permits self-connections.
	AllowAutapses bool

	// AllowMultapses permits repeated edges between the same pair.
	AllowMultapses bool
}

// NewConnSpec returns a spec for the rule with the conventional defaults:
// autapses and multapses allowed.
func NewConnSpec(rule string) ConnSpec {
	return ConnSpec{Rule: rule, AllowAutapses: true, AllowMultapses: true}
}

// Connector is the storage seam a builder emits edges through. ConnectOne
// is only called for targets the thread owns.
type Connector interface {
	// OwnsTarget reports whether thread tid owns the target node on this
	// rank.
	OwnsTarget(tid int, target model.NodeID) bool

	// ConnectOne validates and stores one edge on thread tid.
	ConnectOne(tid int, source, target model.NodeID, spec synapse.Spec) error
}

// Builder populates connections for one rule instance. Connect is called
// once per thread inside a fork-join region; implementations hold no
// mutable shared state.
type Builder interface {
	Connect(tid int, conn Connector) error
}

// Factory creates a builder for one connect request. seed drives all
// probabilistic draws of the instance.
type Factory func(sources, targets []model.NodeID, cs ConnSpec, spec synapse.Spec, seed uint64) (Builder, error)

// Registry maps rule names to factories. It is populated at startup and
// frozen before the first build; reads after Freeze take no lock.
type Registry struct {
	frozen    bool
	factories map[string]Factory
}

// NewRegistry returns a registry preloaded with the built-in rules.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	for name, f := range map[string]Factory{
		"one_to_one":                   newOneToOne,
		"all_to_all":                   newAllToAll,
		"fixed_indegree":               newFixedIndegree,
		"fixed_outdegree":              newFixedOutdegree,
		"fixed_total_number":           newFixedTotalNumber,
		"pairwise_bernoulli":           newPairwiseBernoulli,
		"pairwise_poisson":             newPairwisePoisson,
		"symmetric_pairwise_bernoulli": newSymmetricBernoulli,
		"explicit":                     newExplicit,
	} {
		r.factories[name] = f
	}
	return r
}

// Register adds a rule factory under a name.
func (r *Registry) Register(name string, f Factory) error {
	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateRule, name)
	}
	r.factories[name] = f
	return nil
}

// Freeze makes the registry immutable.
func (r *Registry) Freeze() { r.frozen = true }

// Rules returns the registered rule names, unordered.
func (r *Registry) Rules() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Create instantiates a builder for a request.
func (r *Registry) Create(sources, targets []model.NodeID, cs ConnSpec, spec synapse.Spec, seed uint64) (Builder, error) {
	f, ok := r.factories[cs.Rule]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRule, cs.Rule)
	}
	if len(sources) == 0 || len(targets) == 0 {
		if cs.Rule != "explicit" {
			return nil, ErrEmptyCollection
		}
	}
	return f(sources, targets, cs, spec, seed)
}

// streamFor derives an independent PCG stream keyed by a node id, identical
// on every thread and rank.
func streamFor(seed uint64, key uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, key*0x9e3779b97f4a7c15+1))
}

// pairKey folds an ordered pair into one stream key.
func pairKey(a, b model.NodeID) uint64 {
	return uint64(a)*0x9e3779b97f4a7c15 ^ uint64(b)
}

// soleID reports the single id a collection repeats, if any. When a
// collection collapses to one id and autapses are forbidden, a draw
// against that same id can never succeed; the sampled rules must reject
// such requests up front instead of redrawing forever.
func soleID(ids []model.NodeID) (model.NodeID, bool) {
	first := ids[0]
	for _, id := range ids[1:] {
		if id != first {
			return 0, false
		}
	}
	return first, true
}

type oneToOne struct {
	sources, targets []model.NodeID
	spec             synapse.Spec
}

func newOneToOne(sources, targets []model.NodeID, _ ConnSpec, spec synapse.Spec, _ uint64) (Builder, error) {
	if len(sources) != len(targets) {
		return nil, fmt.Errorf("%w: %d sources, %d targets", ErrLengthMismatch, len(sources), len(targets))
	}
	return &oneToOne{sources: sources, targets: targets, spec: spec}, nil
}

func (b *oneToOne) Connect(tid int, conn Connector) error {
	for i, target := range b.targets {
		if !conn.OwnsTarget(tid, target) {
			continue
		}
		if err := conn.ConnectOne(tid, b.sources[i], target, b.spec); err != nil {
			return err
		}
	}
	return nil
}

type allToAll struct {
	sources, targets []model.NodeID
	spec             synapse.Spec
	allowAutapses    bool
}

func newAllToAll(sources, targets []model.NodeID, cs ConnSpec, spec synapse.Spec, _ uint64) (Builder, error) {
	return &allToAll{sources: sources, targets: targets, spec: spec, allowAutapses: cs.AllowAutapses}, nil
}

func (b *allToAll) Connect(tid int, conn Connector) error {
	for _, target := range b.targets {
		if !conn.OwnsTarget(tid, target) {
			continue
		}
		for _, source := range b.sources {
			if source == target && !b.allowAutapses {
				continue
			}
			if err := conn.ConnectOne(tid, source, target, b.spec); err != nil {
				return err
			}
		}
	}
	return nil
}

type fixedIndegree struct {
	sources, targets []model.NodeID
	spec             synapse.Spec
	cs               ConnSpec
	seed             uint64
}

func newFixedIndegree(sources, targets []model.NodeID, cs ConnSpec, spec synapse.Spec, seed uint64) (Builder, error) {
	if cs.Indegree < 0 {
		return nil, fmt.Errorf("%w: indegree %d", ErrBadDegree, cs.Indegree)
	}
	if !cs.AllowMultapses {
		// Worst case one source is the target itself and unusable.
		avail := len(sources)
		if !cs.AllowAutapses {
			avail--
		}
		if cs.Indegree > avail {
			return nil, fmt.Errorf("%w: indegree %d exceeds %d eligible sources", ErrBadDegree, cs.Indegree, avail)
		}
	}
	if !cs.AllowAutapses && cs.Indegree > 0 {
		if s, ok := soleID(sources); ok {
			for _, target := range targets {
				if target == s {
					return nil, fmt.Errorf("%w: target %d has no eligible sources", ErrBadDegree, target)
				}
			}
		}
	}
	return &fixedIndegree{sources: sources, targets: targets, spec: spec, cs: cs, seed: seed}, nil
}

func (b *fixedIndegree) Connect(tid int, conn Connector) error {
	for _, target := range b.targets {
		if !conn.OwnsTarget(tid, target) {
			continue
		}
		rng := streamFor(b.seed, uint64(target))
		var used map[int]struct{}
		if !b.cs.AllowMultapses {
			used = make(map[int]struct{}, b.cs.Indegree)
		}
		for k := 0; k < b.cs.Indegree; {
			i := rng.IntN(len(b.sources))
			source := b.sources[i]
			if source == target && !b.cs.AllowAutapses {
				continue
			}
			if used != nil {
				if _, dup := used[i]; dup {
					continue
				}
				used[i] = struct{}{}
			}
			if err := conn.ConnectOne(tid, source, target, b.spec); err != nil {
				return err
			}
			k++
		}
	}
	return nil
}

// fixedOutdegree replays the identical per-source stream on every thread
// and rank; only the owner of a drawn target commits.
type fixedOutdegree struct {
	sources, targets []model.NodeID
	spec             synapse.Spec
	cs               ConnSpec
	seed             uint64
}

func newFixedOutdegree(sources, targets []model.NodeID, cs ConnSpec, spec synapse.Spec, seed uint64) (Builder, error) {
	if cs.Outdegree < 0 {
		return nil, fmt.Errorf("%w: outdegree %d", ErrBadDegree, cs.Outdegree)
	}
	if !cs.AllowMultapses {
		avail := len(targets)
		if !cs.AllowAutapses {
			avail--
		}
		if cs.Outdegree > avail {
			return nil, fmt.Errorf("%w: outdegree %d exceeds %d eligible targets", ErrBadDegree, cs.Outdegree, avail)
		}
	}
	if !cs.AllowAutapses && cs.Outdegree > 0 {
		if t, ok := soleID(targets); ok {
			for _, source := range sources {
				if source == t {
					return nil, fmt.Errorf("%w: source %d has no eligible targets", ErrBadDegree, source)
				}
			}
		}
	}
	return &fixedOutdegree{sources: sources, targets: targets, spec: spec, cs: cs, seed: seed}, nil
}

func (b *fixedOutdegree) Connect(tid int, conn Connector) error {
	for _, source := range b.sources {
		rng := streamFor(b.seed, uint64(source))
		var used map[int]struct{}
		if !b.cs.AllowMultapses {
			used = make(map[int]struct{}, b.cs.Outdegree)
		}
		for k := 0; k < b.cs.Outdegree; {
			i := rng.IntN(len(b.targets))
			target := b.targets[i]
			if source == target && !b.cs.AllowAutapses {
				continue
			}
			if used != nil {
				if _, dup := used[i]; dup {
					continue
				}
				used[i] = struct{}{}
			}
			k++
			if !conn.OwnsTarget(tid, target) {
				continue // drawn on every thread, committed by the owner
			}
			if err := conn.ConnectOne(tid, source, target, b.spec); err != nil {
				return err
			}
		}
	}
	return nil
}

// fixedTotalNumber replays one shared stream everywhere, like
// fixedOutdegree.
type fixedTotalNumber struct {
	sources, targets []model.NodeID
	spec             synapse.Spec
	cs               ConnSpec
	seed             uint64
}

func newFixedTotalNumber(sources, targets []model.NodeID, cs ConnSpec, spec synapse.Spec, seed uint64) (Builder, error) {
	if cs.N < 0 {
		return nil, fmt.Errorf("%w: total %d", ErrBadDegree, cs.N)
	}
	if !cs.AllowMultapses {
		possible := len(sources) * len(targets)
		if !cs.AllowAutapses {
			possible -= overlap(sources, targets)
		}
		if cs.N > possible {
			return nil, fmt.Errorf("%w: total %d exceeds %d possible pairs", ErrBadDegree, cs.N, possible)
		}
	}
	if !cs.AllowAutapses && cs.N > 0 {
		if s, oks := soleID(sources); oks {
			if t, okt := soleID(targets); okt && s == t {
				return nil, fmt.Errorf("%w: every pair is the forbidden autapse %d", ErrBadDegree, s)
			}
		}
	}
	return &fixedTotalNumber{sources: sources, targets: targets, spec: spec, cs: cs, seed: seed}, nil
}

// overlap counts node ids present in both collections.
func overlap(a, b []model.NodeID) int {
	set := make(map[model.NodeID]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	n := 0
	for _, id := range b {
		if _, ok := set[id]; ok {
			n++
		}
	}
	return n
}

func (b *fixedTotalNumber) Connect(tid int, conn Connector) error {
	rng := streamFor(b.seed, 0)
	var used map[[2]int]struct{}
	if !b.cs.AllowMultapses {
		used = make(map[[2]int]struct{}, b.cs.N)
	}
	for k := 0; k < b.cs.N; {
		i := rng.IntN(len(b.sources))
		j := rng.IntN(len(b.targets))
		source, target := b.sources[i], b.targets[j]
		if source == target && !b.cs.AllowAutapses {
			continue
		}
		if used != nil {
			key := [2]int{i, j}
			if _, dup := used[key]; dup {
				continue
			}
			used[key] = struct{}{}
		}
		k++
		if !conn.OwnsTarget(tid, target) {
			continue
		}
		if err := conn.ConnectOne(tid, source, target, b.spec); err != nil {
			return err
		}
	}
	return nil
}

type pairwiseBernoulli struct {
	sources, targets []model.NodeID
	spec             synapse.Spec
	cs               ConnSpec
	seed             uint64
}

func newPairwiseBernoulli(sources, targets []model.NodeID, cs ConnSpec, spec synapse.Spec, seed uint64) (Builder, error) {
	if cs.P < 0 || cs.P > 1 {
		return nil, fmt.Errorf("%w: p = %g", ErrBadProbability, cs.P)
	}
	return &pairwiseBernoulli{sources: sources, targets: targets, spec: spec, cs: cs, seed: seed}, nil
}

func (b *pairwiseBernoulli) Connect(tid int, conn Connector) error {
	for _, target := range b.targets {
		if !conn.OwnsTarget(tid, target) {
			continue
		}
		rng := streamFor(b.seed, uint64(target))
		for _, source := range b.sources {
			hit := rng.Float64() < b.cs.P
			if !hit || (source == target && !b.cs.AllowAutapses) {
				continue
			}
			if err := conn.ConnectOne(tid, source, target, b.spec); err != nil {
				return err
			}
		}
	}
	return nil
}

// pairwisePoisson draws a Poisson-distributed multiplicity for every pair,
// so P is a mean edge count and may exceed 1.
type pairwisePoisson struct {
	sources, targets []model.NodeID
	spec             synapse.Spec
	cs               ConnSpec
	seed             uint64
}

func newPairwisePoisson(sources, targets []model.NodeID, cs ConnSpec, spec synapse.Spec, seed uint64) (Builder, error) {
	if cs.P < 0 {
		return nil, fmt.Errorf("%w: mean %g", ErrBadProbability, cs.P)
	}
	if !cs.AllowMultapses {
		return nil, fmt.Errorf("%w: pairwise_poisson requires multapses", ErrBadDegree)
	}
	return &pairwisePoisson{sources: sources, targets: targets, spec: spec, cs: cs, seed: seed}, nil
}

func (b *pairwisePoisson) Connect(tid int, conn Connector) error {
	for _, target := range b.targets {
		if !conn.OwnsTarget(tid, target) {
			continue
		}
		rng := streamFor(b.seed, uint64(target))
		for _, source := range b.sources {
			n := poisson(rng, b.cs.P)
			if source == target && !b.cs.AllowAutapses {
				continue
			}
			for k := 0; k < n; k++ {
				if err := conn.ConnectOne(tid, source, target, b.spec); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// poisson samples by inversion of the exponential product. Fine for the
// small means this rule is used with.
func poisson(rng *rand.Rand, mean float64) int {
	if mean <= 0 {
		return 0
	}
	limit := math.Exp(-mean)
	k, p := 0, 1.0
	for {
		p *= rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}

// symmetricBernoulli draws each pair once from a pair-keyed stream and
// creates both directions, each on the thread (and rank) owning its target.
type symmetricBernoulli struct {
	sources, targets []model.NodeID
	inSources        map[model.NodeID]struct{}
	inTargets        map[model.NodeID]struct{}
	spec             synapse.Spec
	cs               ConnSpec
	seed             uint64
}

func newSymmetricBernoulli(sources, targets []model.NodeID, cs ConnSpec, spec synapse.Spec, seed uint64) (Builder, error) {
	if cs.P < 0 || cs.P > 1 {
		return nil, fmt.Errorf("%w: p = %g", ErrBadProbability, cs.P)
	}
	b := &symmetricBernoulli{
		sources:   sources,
		targets:   targets,
		inSources: make(map[model.NodeID]struct{}, len(sources)),
		inTargets: make(map[model.NodeID]struct{}, len(targets)),
		spec:      spec,
		cs:        cs,
		seed:      seed,
	}
	for _, id := range sources {
		b.inSources[id] = struct{}{}
	}
	for _, id := range targets {
		b.inTargets[id] = struct{}{}
	}
	return b, nil
}

// visitedReversed reports whether the (target, source) orientation is also
// iterated, in which case only the canonical source < target visit acts.
func (b *symmetricBernoulli) visitedReversed(source, target model.NodeID) bool {
	_, s := b.inSources[target]
	_, t := b.inTargets[source]
	return s && t
}

func (b *symmetricBernoulli) Connect(tid int, conn Connector) error {
	for _, source := range b.sources {
		for _, target := range b.targets {
			if source == target {
				continue // a symmetric pair is never an autapse
			}
			if source > target && b.visitedReversed(source, target) {
				continue
			}
			// One draw per unordered pair, identical on every thread.
			lo, hi := source, target
			if lo > hi {
				lo, hi = hi, lo
			}
			rng := streamFor(b.seed, pairKey(lo, hi))
			if rng.Float64() >= b.cs.P {
				continue
			}
			if conn.OwnsTarget(tid, target) {
				if err := conn.ConnectOne(tid, source, target, b.spec); err != nil {
					return err
				}
			}
			if conn.OwnsTarget(tid, source) {
				if err := conn.ConnectOne(tid, target, source, b.spec); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type explicit struct {
	pairs [][2]model.NodeID
	spec  synapse.Spec
}

func newExplicit(_, _ []model.NodeID, cs ConnSpec, spec synapse.Spec, _ uint64) (Builder, error) {
	if len(cs.Pairs) == 0 {
		return nil, ErrEmptyCollection
	}
	return &explicit{pairs: cs.Pairs, spec: spec}, nil
}

func (b *explicit) Connect(tid int, conn Connector) error {
	for _, p := range b.pairs {
		if !conn.OwnsTarget(tid, p[1]) {
			continue
		}
		if err := conn.ConnectOne(tid, p[0], p[1], b.spec); err != nil {
			return err
		}
	}
	return nil
}
