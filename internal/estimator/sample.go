package estimator

import "math/rand"

// Model names the diffusion model a sample is drawn under.
type Model string

const (
	ModelIC Model = "IC"
	ModelLT Model = "LT"
)

// sampler draws samples against a fixed Graph using its own RNG, so
// that concurrent samplers never share rand state (math/rand.Rand is
// not safe for concurrent use, unlike the reference implementation's
// per-process random.seed()).
type sampler struct {
	graph *Graph
	rng   *rand.Rand
}

func newSampler(graph *Graph, seed int64) *sampler {
	return &sampler{graph: graph, rng: rand.New(rand.NewSource(seed))}
}

// sampleOne draws one sample of the given model for the seed set,
// returning the total activation count.
func (s *sampler) sampleOne(model Model, seeds []int) int {
	switch model {
	case ModelLT:
		return s.oneLTSample(seeds)
	default:
		return s.oneICSample(seeds)
	}
}

// oneICSample runs one independent-cascade iteration: frontier-based
// BFS where each newly active vertex gets exactly one chance to
// activate each out-neighbour, with probability equal to the edge
// weight.
func (s *sampler) oneICSample(seeds []int) int {
	n := s.graph.size()
	status := make([]bool, n)
	activate(seeds, status)

	influence := len(seeds)
	activeSet := append([]int(nil), seeds...)
	for len(activeSet) > 0 {
		var next []int
		for _, v := range activeSet {
			for _, e := range s.graph.out[v] {
				if !status[e.to] && s.rng.Float64() <= e.weight {
					status[e.to] = true
					next = append(next, e.to)
				}
			}
		}
		influence += len(next)
		activeSet = next
	}
	return influence
}

// oneLTSample runs one linear-threshold iteration: each vertex draws a
// threshold once up front, then becomes active once the accumulated
// weight from active in-neighbours reaches it.
func (s *sampler) oneLTSample(seeds []int) int {
	n := s.graph.size()
	status := make([]bool, n)
	activate(seeds, status)

	gate := make([]float64, n)
	for i := range gate {
		gate[i] = s.rng.Float64()
	}

	influence := len(seeds)
	activeSet := append([]int(nil), seeds...)
	for len(activeSet) > 0 {
		var next []int
		for _, v := range activeSet {
			for _, e := range s.graph.out[v] {
				if status[e.to] {
					continue
				}
				var impact float64
				for _, back := range s.graph.in[e.to] {
					if status[back.to] {
						impact += back.weight
					}
				}
				if impact >= gate[e.to] {
					status[e.to] = true
					next = append(next, e.to)
				}
			}
		}
		influence += len(next)
		activeSet = next
	}
	return influence
}

func activate(vertices []int, status []bool) {
	for _, v := range vertices {
		status[v] = true
	}
}
