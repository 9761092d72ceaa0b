// Package testutil provides testing utilities for the connection
// infrastructure.
//
// This package is intended for use in tests and benchmarks only. It
// provides helpers for seeded randomness, generating node populations and
// edge lists, and checking the statistics of probabilistic topologies.
//
// # Seeded Randomness
//
//	rng := testutil.NewRNG(seed)
//	pairs := rng.RandomPairs(sources, targets, 100)
//
// # Topology Statistics
//
//	out := testutil.OutDegrees(descriptors)
//	lo, hi := testutil.BinomialBounds(trials, p)
package testutil
