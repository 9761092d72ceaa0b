package synet_test

import (
	"context"
	"fmt"
	"log"

	synet "github.com/nest/nest-simulator-sub010"
)

// Example_oneToOne demonstrates the smallest possible network build.
func Example_oneToOne() {
	net, err := synet.New(synet.WithThreads(2), synet.WithSeed(42))
	if err != nil {
		log.Fatal(err)
	}

	pre := net.CreateNeurons(5)
	post := net.CreateNeurons(5)

	err = net.Connect(pre, post, synet.NewConnSpec("one_to_one"), synet.SynSpec{
		Model:   "static_synapse",
		Weight:  1.0,
		DelayMS: 1.0,
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Created %d connections\n", net.Count())
	// Output: Created 5 connections
}

// Example_probabilisticRule demonstrates a seeded probabilistic builder.
// The same seed always produces the same topology, regardless of the
// thread count.
func Example_probabilisticRule() {
	net, err := synet.New(synet.WithThreads(4), synet.WithSeed(7))
	if err != nil {
		log.Fatal(err)
	}

	pre := net.CreateNeurons(100)
	post := net.CreateNeurons(100)

	cs := synet.NewConnSpec("fixed_indegree")
	cs.Indegree = 10

	err = net.Connect(pre, post, cs, synet.SynSpec{
		Model:   "static_synapse",
		Weight:  0.5,
		DelayMS: 1.5,
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Created %d connections\n", net.Count())
	// Output: Created 1000 connections
}

// Example_query demonstrates filtered connection queries.
func Example_query() {
	ctx := context.Background()
	net, _ := synet.New(synet.WithSeed(1))

	pre := net.CreateNeurons(3)
	post := net.CreateNeurons(3)

	net.Connect(pre, post, synet.NewConnSpec("all_to_all"), synet.SynSpec{
		Model:   "static_synapse",
		Weight:  1.0,
		DelayMS: 1.0,
	})

	// Queries rebuild the routing tables if the topology changed.
	out, err := net.Connections(ctx, synet.Filter{Source: pre[0]})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Node %d has %d outgoing connections\n", pre[0], len(out))
	// Output: Node 1 has 3 outgoing connections
}

// Example_simulationLifecycle demonstrates freezing the network before the
// delivery phase.
func Example_simulationLifecycle() {
	ctx := context.Background()
	net, _ := synet.New()

	pre := net.CreateNeurons(2)
	post := net.CreateNeurons(2)

	net.Connect(pre, post, synet.NewConnSpec("one_to_one"), synet.SynSpec{
		Model:   "static_synapse",
		Weight:  1.0,
		DelayMS: 2.0,
	})

	// StartSimulation freezes registries and delay extrema and builds the
	// routing tables.
	if err := net.StartSimulation(ctx); err != nil {
		log.Fatal(err)
	}

	st := net.Stats()
	fmt.Printf("dirty=%v min_delay_steps=%d\n", st.Dirty, st.MinDelaySteps)
	// Output: dirty=false min_delay_steps=20
}
