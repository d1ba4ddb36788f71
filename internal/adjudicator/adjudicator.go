// Package adjudicator implements C5: pure classification of a
// completed Case's outcome, invoking the reference solver only for
// IMP-type submissions. It never touches the sandbox container.
package adjudicator

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"github.com/imxieyi/carp-judge-worker/internal/archive"
	"github.com/imxieyi/carp-judge-worker/internal/estimator"
)

// Verdict is the dispatcher-facing outcome of adjudicating one Case.
type Verdict struct {
	Accepted bool
	Reason   string // populated when Accepted is false
	Score    float64
	Raw      []byte // CARP passthrough: raw stdout for external adjudication
}

// CaseOutcome is the subset of a finished Case's state the adjudicator
// needs: whether it timed out, its exit status, and its captured
// stdout.
type CaseOutcome struct {
	TimedOut   bool
	StatusCode int
	Stdout     []byte
}

// Input bundles a Case's outcome with what the adjudicator needs to
// score an IMP submission: the case type and, when present, the
// network/seed-count/model data attached to its job.
type Input struct {
	CaseOutcome
	CType     archive.CaseType
	Network   string
	SeedCount int
	Model     string
}

// Adjudicate classifies a completed Case per spec.md §4.5. For CARP
// submissions, a non-rejected outcome is passed through raw for
// external adjudication. For IMP submissions, stdout is parsed as a
// seed list and scored against the reference solver.
func Adjudicate(ctx context.Context, in Input, workers int, baseSeed int64) Verdict {
	if in.TimedOut {
		return Verdict{Accepted: false, Reason: "Timed out"}
	}
	if in.StatusCode != 0 {
		return Verdict{Accepted: false, Reason: "Exit code is not zero"}
	}
	if len(bytes.TrimSpace(in.Stdout)) == 0 {
		return Verdict{Accepted: false, Reason: "No output"}
	}

	switch in.CType {
	case archive.CaseTypeIMP:
		return adjudicateIMP(ctx, in, workers, baseSeed)
	default:
		return Verdict{Accepted: true, Raw: in.Stdout}
	}
}

func adjudicateIMP(ctx context.Context, in Input, workers int, baseSeed int64) Verdict {
	graph, err := estimator.ReadNetwork(strings.NewReader(in.Network))
	if err != nil {
		return Verdict{Accepted: false, Reason: err.Error()}
	}
	seeds, err := estimator.ReadSeeds(bufio.NewReader(bytes.NewReader(in.Stdout)), in.SeedCount, graph)
	if err != nil {
		return Verdict{Accepted: false, Reason: err.Error()}
	}

	score, err := estimator.EstimateAsync(ctx, graph, seeds, estimator.ParseModel(in.Model), workers, baseSeed)
	if err != nil {
		return Verdict{Accepted: false, Reason: err.Error()}
	}
	return Verdict{Accepted: true, Score: score}
}
