// Package vp models the virtual-process layout of a simulation: one VP is
// one thread within one MPI rank, and every node maps deterministically to
// exactly one VP. The package also provides the fork-join parallel region
// used by builders and scans.
package vp

import (
	"fmt"

	"github.com/nest/nest-simulator-sub010/model"
)

// Layout describes the process grid. It is immutable after construction;
// changing the thread count requires a full subsystem reset.
type Layout struct {
	numRanks int
	threads  int
}

// NewLayout creates a layout with numRanks MPI ranks and threads OS threads
// per rank.
func NewLayout(numRanks, threads int) (Layout, error) {
	if numRanks <= 0 || numRanks > model.MaxRanks {
		return Layout{}, fmt.Errorf("vp: invalid rank count %d", numRanks)
	}
	if threads <= 0 || threads > model.MaxThreads {
		return Layout{}, fmt.Errorf("vp: invalid thread count %d", threads)
	}
	return Layout{numRanks: numRanks, threads: threads}, nil
}

// NumRanks returns the number of MPI ranks.
func (l Layout) NumRanks() int { return l.numRanks }

// ThreadsPerRank returns the number of threads per rank.
func (l Layout) ThreadsPerRank() int { return l.threads }

// TotalVPs returns the total number of virtual processes.
func (l Layout) TotalVPs() int { return l.numRanks * l.threads }

// VPOf returns the virtual process owning the node. Nodes are distributed
// round-robin over VPs.
func (l Layout) VPOf(id model.NodeID) int {
	return int(uint64(id) % uint64(l.TotalVPs()))
}

// RankOf returns the MPI rank owning the node.
func (l Layout) RankOf(id model.NodeID) int {
	return l.VPOf(id) % l.numRanks
}

// ThreadOf returns the thread within RankOf(id) owning the node.
func (l Layout) ThreadOf(id model.NodeID) int {
	return l.VPOf(id) / l.numRanks
}

// IsLocal reports whether the node lives on the given rank.
func (l Layout) IsLocal(id model.NodeID, rank int) bool {
	return l.RankOf(id) == rank
}

// VP returns the virtual process for an explicit (rank, thread) pair.
func (l Layout) VP(rank, thread int) int {
	return thread*l.numRanks + rank
}
