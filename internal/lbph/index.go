package lbph

import (
	"math/rand"
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/cornea/internal/constants"
)

// candidateIndex wraps an HNSW graph over training histograms. It narrows
// prediction to a handful of candidates that are then re-ranked exactly.
type candidateIndex struct {
	graph *hnsw.Graph[int]
	mu    sync.RWMutex
}

// buildIndex inserts histograms in order with a fixed seed, so the same
// histograms always yield the same graph. A reloaded model therefore predicts
// exactly like the one that was persisted.
func buildIndex(histograms [][]float32) *candidateIndex {
	g := hnsw.NewGraph[int]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors)
	g.EfSearch = 2 * constants.IndexCandidates
	g.Distance = chiSquare32
	g.Rng = rand.New(rand.NewSource(1))

	for i, h := range histograms {
		g.Add(hnsw.MakeNode(i, h))
	}
	return &candidateIndex{graph: g}
}

// search returns the sample positions of the k nearest candidates.
func (c *candidateIndex) search(query []float32, k int) []int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	neighbors := c.graph.Search(query, k)
	ids := make([]int, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
	}
	return ids
}

func chiSquare32(a, b []float32) float32 {
	return float32(chiSquare(a, b))
}
