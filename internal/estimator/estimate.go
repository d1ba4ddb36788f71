package estimator

import (
	"context"
	"math"
	"strings"
	"sync"
)

// totalSamples is R from the estimation protocol: the reference
// solver's fixed Monte Carlo sample budget.
const totalSamples = 10000

// Estimate computes sigma-hat, the Monte Carlo estimate of the
// expected activation count of seeds on graph under model, spreading
// R=10,000 samples across workers goroutines. Each worker seeds its
// own RNG independently from baseSeed, mirroring the reference
// solver's per-process random seeding.
func Estimate(graph *Graph, seeds []int, model Model, workers int, baseSeed int64) float64 {
	if workers < 1 {
		workers = 1
	}
	perWorker := int(math.Ceil(float64(totalSamples) / float64(workers)))

	results := make(chan int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerIdx int) {
			defer wg.Done()
			s := newSampler(graph, baseSeed+int64(workerIdx))
			sum := 0
			for j := 0; j < perWorker; j++ {
				sum += s.sampleOne(model, seeds)
			}
			results <- sum
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var total float64
	for sum := range results {
		total += float64(sum)
	}
	return total / float64(workers*perWorker)
}

// EstimateAsync runs Estimate on a background goroutine and reports
// the result over ctx, the Go analogue of the reference solver's
// run_in_executor offload used when C5 invokes the estimator from an
// async adjudication path.
func EstimateAsync(ctx context.Context, graph *Graph, seeds []int, model Model, workers int, baseSeed int64) (float64, error) {
	type outcome struct {
		value float64
	}
	done := make(chan outcome, 1)
	go func() {
		done <- outcome{value: Estimate(graph, seeds, model, workers, baseSeed)}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case out := <-done:
		return out.value, nil
	}
}

// ParseModel maps a manifest's model string onto a Model, defaulting
// to IC for an empty or unrecognised value, matching the reference
// solver's estimate(..., model='IC') default.
func ParseModel(name string) Model {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "LT":
		return ModelLT
	default:
		return ModelIC
	}
}
