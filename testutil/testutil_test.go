package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nest/nest-simulator-sub010/model"
)

func TestRNGDeterminism(t *testing.T) {
	a := NewRNG(42)
	b := NewRNG(42)

	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}

	a.Reset()
	c := NewRNG(42)
	assert.Equal(t, c.Uint64(), a.Uint64())
}

func TestRandomPairsDrawFromPopulations(t *testing.T) {
	rng := NewRNG(7)
	sources := NodeIDs(1, 10)
	targets := NodeIDs(100, 10)

	pairs := rng.RandomPairs(sources, targets, 50)
	require.Len(t, pairs, 50)
	for _, p := range pairs {
		assert.GreaterOrEqual(t, p.Source, model.NodeID(1))
		assert.LessOrEqual(t, p.Source, model.NodeID(10))
		assert.GreaterOrEqual(t, p.Target, model.NodeID(100))
		assert.LessOrEqual(t, p.Target, model.NodeID(109))
	}
}

func TestDegreeCounts(t *testing.T) {
	descriptors := []model.Descriptor{
		{Source: 1, Target: 2},
		{Source: 1, Target: 3},
		{Source: 2, Target: 3},
	}

	out := OutDegrees(descriptors)
	assert.Equal(t, 2, out[1])
	assert.Equal(t, 1, out[2])

	in := InDegrees(descriptors)
	assert.Equal(t, 1, in[2])
	assert.Equal(t, 2, in[3])
}

func TestBinomialBounds(t *testing.T) {
	lo, hi := BinomialBounds(1000, 0.5)
	assert.Less(t, lo, 500)
	assert.Greater(t, hi, 500)
	assert.GreaterOrEqual(t, lo, 0)
	assert.LessOrEqual(t, hi, 1000)

	lo, hi = BinomialBounds(10, 0.0)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 0, hi)
}

func TestPoissonBounds(t *testing.T) {
	lo, hi := PoissonBounds(100, 2.0)
	assert.Less(t, lo, 200)
	assert.Greater(t, hi, 200)
	assert.GreaterOrEqual(t, lo, 0)
}

func TestHasMirror(t *testing.T) {
	mirrored := Pairs([]model.Descriptor{
		{Source: 1, Target: 2},
		{Source: 2, Target: 1},
	})
	assert.True(t, HasMirror(mirrored))

	oneWay := []Pair{{Source: 1, Target: 2}}
	assert.False(t, HasMirror(oneWay))
}
