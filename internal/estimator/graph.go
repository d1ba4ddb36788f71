// Package estimator implements C4, the reference influence-spread
// solver: it parses a weights-on-edges network and a seed list, then
// estimates the expected activation count of the seed set under the
// independent cascade (IC) or linear threshold (LT) diffusion model by
// Monte Carlo sampling, spread across a worker pool.
package estimator

// edge is one weighted directed edge, expressed in dense vertex
// indices rather than external ids.
type edge struct {
	to     int
	weight float64
}

// Graph is the dense-index representation C4 samples against. External
// vertex ids (arbitrary integers from the network file) are mapped to
// 0..V-1 indices on first sight, mirroring the original solver's
// incremental id_map/anti_map behaviour.
type Graph struct {
	VNum int
	ENum int

	ids    map[int]int // external id -> dense index
	extIDs map[int]int // dense index -> external id

	out [][]edge // out[v] = outgoing edges from v
	in  [][]edge // in[v] = incoming edges to v

	nonActive map[int]struct{} // vertices touched by an edge; after Prune, only those with outgoing edges
}

// NewGraph allocates a Graph sized for vnum vertices and enum edges
// (enum is advisory; AddEdge does not enforce it).
func NewGraph(vnum, enum int) *Graph {
	return &Graph{
		VNum:      vnum,
		ENum:      enum,
		ids:       make(map[int]int, vnum),
		extIDs:    make(map[int]int, vnum),
		out:       make([][]edge, vnum),
		in:        make([][]edge, vnum),
		nonActive: make(map[int]struct{}),
	}
}

// indexOf returns the dense index for an external vertex id, assigning
// a fresh one the first time the id is seen. Exceeding the vnum
// capacity the header line declared grows the backing slices, which
// mirrors the original's tolerant behaviour of trusting edge lines
// over the declared header count.
func (g *Graph) indexOf(extID int) int {
	if idx, ok := g.ids[extID]; ok {
		return idx
	}
	idx := len(g.ids)
	g.ids[extID] = idx
	g.extIDs[idx] = extID
	if idx >= len(g.out) {
		g.out = append(g.out, nil)
		g.in = append(g.in, nil)
	}
	return idx
}

// AddEdge records a weighted directed edge between two external vertex
// ids, assigning dense indices as needed.
func (g *Graph) AddEdge(viExt, vjExt int, weight float64) {
	vi := g.indexOf(viExt)
	vj := g.indexOf(vjExt)
	g.out[vi] = append(g.out[vi], edge{to: vj, weight: weight})
	g.in[vj] = append(g.in[vj], edge{to: vi, weight: weight})
	g.nonActive[vi] = struct{}{}
	g.nonActive[vj] = struct{}{}
}

// Prune drops vertices with no outgoing edges from the candidate
// active set, matching Graph.pruning in the reference solver: such
// vertices can still be activated as a side effect of sampling but
// never usefully seed further spread.
func (g *Graph) Prune() {
	for v := range g.nonActive {
		if len(g.out[v]) == 0 {
			delete(g.nonActive, v)
		}
	}
}

// Lookup maps an external vertex id to its dense index, reporting
// whether the id appears anywhere in the network.
func (g *Graph) Lookup(extID int) (int, bool) {
	idx, ok := g.ids[extID]
	return idx, ok
}

// size returns the number of distinct vertices observed.
func (g *Graph) size() int {
	return len(g.ids)
}
