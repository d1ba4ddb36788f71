package estimator

import "strings"

// ISEInput bundles the three pieces of user-supplied state the
// reference solver needs: network text, seeds text, and the declared
// seed count used to validate the seed file.
type ISEInput struct {
	Network   string
	Seeds     string
	SeedCount int
	Model     Model
	Workers   int
	BaseSeed  int64
}

// RunISE parses network and seed text and returns the estimated
// spread, the standalone "influence spread estimator" entry point used
// by cmd/ise. C5's IMP adjudication does not go through RunISE; it
// calls ReadNetwork, ReadSeeds and EstimateAsync directly.
func RunISE(in ISEInput) (float64, error) {
	graph, err := ReadNetwork(strings.NewReader(in.Network))
	if err != nil {
		return 0, err
	}
	seeds, err := ReadSeeds(strings.NewReader(in.Seeds), in.SeedCount, graph)
	if err != nil {
		return 0, err
	}
	workers := in.Workers
	if workers < 1 {
		workers = 1
	}
	return Estimate(graph, seeds, in.Model, workers, in.BaseSeed), nil
}
