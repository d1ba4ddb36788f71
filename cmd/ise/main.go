// Command ise is the standalone influence-spread estimator: given a
// network file and a seed file, it prints the Monte Carlo estimate of
// the seed set's expected spread under IC or LT. It is the same
// reference solver C5 calls internally, exposed directly so the
// diffusion-model scoring can be exercised (or the corpus's own
// expected outputs reproduced) without running a full judging pass.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/imxieyi/carp-judge-worker/internal/estimator"
)

func main() {
	networkPath := flag.String("network", "", "path to the network file (defaults to stdin)")
	seedsPath := flag.String("seeds", "", "path to the seeds file (required)")
	seedCount := flag.Int("n", 0, "expected number of seeds")
	model := flag.String("model", "IC", "diffusion model: IC or LT")
	workers := flag.Int("workers", 8, "number of sampling workers")
	seed := flag.Int64("seed", 88010123, "base RNG seed")
	flag.Parse()

	if *seedsPath == "" {
		fmt.Fprintln(os.Stderr, "ise: -seeds is required")
		os.Exit(2)
	}

	networkBytes, err := readFileOrStdin(*networkPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ise: read network: %v\n", err)
		os.Exit(1)
	}
	seedsBytes, err := os.ReadFile(*seedsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ise: read seeds: %v\n", err)
		os.Exit(1)
	}

	result, err := estimator.RunISE(estimator.ISEInput{
		Network:   string(networkBytes),
		Seeds:     string(seedsBytes),
		SeedCount: *seedCount,
		Model:     estimator.ParseModel(*model),
		Workers:   *workers,
		BaseSeed:  *seed,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ise: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%.4f\n", result)
}

func readFileOrStdin(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
