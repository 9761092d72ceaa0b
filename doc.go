// Package synet is the connection infrastructure of a distributed spiking
// network simulator: it turns logical connect requests ("population A to
// population B with rule R, synapse model S") into per-thread, per-rank
// sharded storage, builds the routing tables events travel on, and keeps
// both consistent under runtime rewiring.
//
// # Building a network
//
//	net, err := synet.New(
//	    synet.WithThreads(4),
//	    synet.WithResolution(0.1),
//	    synet.WithSeed(42),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	pre := net.CreateNeurons(1000)
//	post := net.CreateNeurons(1000)
//
//	cs := synet.NewConnSpec("fixed_indegree")
//	cs.Indegree = 100
//	err = net.Connect(pre, post, cs, synet.SynSpec{
//	    Model:   "static_synapse",
//	    Weight:  1.5,
//	    DelayMS: 1.0,
//	})
//
// # Simulation lifecycle
//
// Connect calls may arrive in any order; the routing tables are rebuilt
// lazily. StartSimulation freezes the synapse and rule registries and the
// delay extrema, then rebuilds:
//
//	if err := net.StartSimulation(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Further topology changes (structural plasticity, Disconnect) are allowed
// but mark the tables stale; the next query or rebuild restores
// consistency.
//
// # Distribution
//
// One Network instance serves one rank. Multi-rank runs pass a
// Communicator (MPI-backed in production, exchange.Group in-process for
// tests) and must issue collective operations — Connect, Rebuild, queries
// on a dirty topology, plasticity steps — in the same order on every rank.
//
// # Introspection
//
//	conns, err := net.Connections(ctx, synet.Filter{Source: pre[0]})
//
// Queries force a rebuild when the topology is dirty, so repeated queries
// without intervening mutation return identical descriptor lists.
package synet
