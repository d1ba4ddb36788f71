package estimator

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/imxieyi/carp-judge-worker/internal/judgeerr"
)

// ReadNetwork parses the network file format (spec §6): a header line
// "V E" followed by E lines "u v w". It builds the dense-index Graph
// and runs a pruning pass before returning.
func ReadNetwork(r io.Reader) (*Graph, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		return nil, judgeerr.NewSolutionError("empty network file")
	}
	header := strings.Fields(sc.Text())
	if len(header) < 2 {
		return nil, judgeerr.NewSolutionError("malformed network header")
	}
	vnum, err := strconv.Atoi(header[0])
	if err != nil {
		return nil, judgeerr.NewSolutionError("malformed vertex count")
	}
	enum, err := strconv.Atoi(header[1])
	if err != nil {
		return nil, judgeerr.NewSolutionError("malformed edge count")
	}

	graph := NewGraph(vnum, enum)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, judgeerr.NewSolutionError(fmt.Sprintf("malformed edge line: %q", line))
		}
		u, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, judgeerr.NewSolutionError(fmt.Sprintf("malformed edge endpoint: %q", fields[0]))
		}
		v, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, judgeerr.NewSolutionError(fmt.Sprintf("malformed edge endpoint: %q", fields[1]))
		}
		w, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, judgeerr.NewSolutionError(fmt.Sprintf("malformed edge weight: %q", fields[2]))
		}
		graph.AddEdge(u, v, w)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read network: %w", err)
	}

	graph.Prune()
	return graph, nil
}

// ReadSeeds parses one external vertex id per line (blank lines
// ignored), mapping each into the graph's dense index space. It
// preserves the reference solver's exact error wording for wire/test
// compatibility (judgeerr.Reason* constants).
func ReadSeeds(r io.Reader, seedCount int, graph *Graph) ([]int, error) {
	sc := bufio.NewScanner(r)
	var seeds []int
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		extID, err := strconv.Atoi(line)
		if err != nil {
			return nil, judgeerr.NewSolutionError(judgeerr.ReasonNotInt)
		}
		idx, ok := graph.Lookup(extID)
		if !ok {
			return nil, judgeerr.NewSolutionError(judgeerr.ReasonNodeNotInNetwork)
		}
		seeds = append(seeds, idx)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read seeds: %w", err)
	}
	if len(seeds) != seedCount {
		return nil, judgeerr.NewSolutionError(judgeerr.ReasonWrongSeedCount)
	}
	return seeds, nil
}
