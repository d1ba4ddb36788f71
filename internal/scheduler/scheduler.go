// Package scheduler implements C6, the worker scheduler: a fixed-size
// pool of judge slots that pull jobs off a bounded queue, run them
// through a Case scope, and push result envelopes onto a bounded
// result queue.
package scheduler

import (
	"context"
	"sync"

	"github.com/imxieyi/carp-judge-worker/internal/adjudicator"
	"github.com/imxieyi/carp-judge-worker/internal/archive"
	"github.com/imxieyi/carp-judge-worker/internal/judgeerr"
	"github.com/imxieyi/carp-judge-worker/internal/logging"
	"github.com/imxieyi/carp-judge-worker/internal/sandbox"
)

// Job is one inbound unit of work: a submission archive plus the
// metadata the scheduler needs beyond what the archive itself carries.
type Job struct {
	CID       int64
	CType     archive.CaseType
	Archive   []byte
	Network   string // attached dataset for IMP adjudication
	SeedCount int
	Model     string
}

// MetricsRecorder receives scheduler lifecycle events. Callers that
// don't care about metrics can leave Config.Metrics nil.
type MetricsRecorder interface {
	CaseStarted()
	CaseFinished(verdict string)
}

// Result is the outbound envelope a slot produces once a Case
// finishes, truncated per log_limit_bytes before it is ever enqueued.
type Result struct {
	CID            int64
	TimedOut       bool
	Stdout         []byte
	StdoutOverflow bool
	Stderr         []byte
	StderrOverflow bool
	ExitCode       int
	Verdict        adjudicator.Verdict
}

// Scheduler owns the bounded job/result queues and the fixed pool of
// judge slots draining them.
type Scheduler struct {
	jobQueue    chan Job
	resultQueue chan Result

	slots       int
	runner      sandbox.Runner
	image       string
	scratchRoot string
	logLimit    int
	workers     int // estimator worker count for IMP adjudication
	baseSeed    int64

	onCaseStart func(cid int64) // hook invoked before a Case's container runs (CASE_START)
	metrics     MetricsRecorder
}

// Config configures a new Scheduler.
type Config struct {
	Slots            int
	JobQueueDepth    int
	ResultQueueDepth int
	Runner           sandbox.Runner
	Image            string
	ScratchRoot      string
	LogLimitBytes    int
	EstimatorWorkers int
	BaseSeed         int64
	OnCaseStart      func(cid int64)
	Metrics          MetricsRecorder
}

// New builds a Scheduler with bounded queues sized per cfg. The
// caller is responsible for calling Run to start the slot pool.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		jobQueue:    make(chan Job, cfg.JobQueueDepth),
		resultQueue: make(chan Result, cfg.ResultQueueDepth),
		slots:       cfg.Slots,
		runner:      cfg.Runner,
		image:       cfg.Image,
		scratchRoot: cfg.ScratchRoot,
		logLimit:    cfg.LogLimitBytes,
		workers:     cfg.EstimatorWorkers,
		baseSeed:    cfg.BaseSeed,
		onCaseStart: cfg.OnCaseStart,
		metrics:     cfg.Metrics,
	}
}

// Submit enqueues a job, blocking if jobQueue is full (back-pressure
// onto whatever feeds the scheduler, e.g. the control plane's handler
// task).
func (s *Scheduler) Submit(ctx context.Context, job Job) error {
	select {
	case s.jobQueue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns the channel slots publish finished Result envelopes
// to. The caller (typically the control plane's dispatcher) drains it.
func (s *Scheduler) Results() <-chan Result {
	return s.resultQueue
}

// Run starts the fixed-size slot pool and blocks until ctx is
// cancelled, at which point every slot finishes its in-flight Case
// scope before returning (spec.md §5's cancellation contract).
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < s.slots; i++ {
		wg.Add(1)
		go func(slotID int) {
			defer wg.Done()
			s.slotLoop(ctx, slotID)
		}(i)
	}
	wg.Wait()
}

// slotLoop implements one judge slot: claim a job, run it inside a
// Case scope, publish a result. Any error surfacing from a single job
// is logged and the slot moves on to its next claim; only context
// cancellation ends the loop, and even then the in-flight Case scope
// is always allowed to close before the goroutine exits.
func (s *Scheduler) slotLoop(ctx context.Context, slotID int) {
	for {
		var job Job
		select {
		case <-ctx.Done():
			return
		case job = <-s.jobQueue:
		}

		result := s.runJob(ctx, job)
		select {
		case s.resultQueue <- result:
		case <-ctx.Done():
			// A cancelled slot still finishes delivering the result it
			// already produced before giving up; the Case scope that
			// produced it has already closed inside runJob.
			select {
			case s.resultQueue <- result:
			default:
				logging.S().Warnw("scheduler: dropped result on shutdown", "cid", job.CID, "slot", slotID)
			}
			return
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) Result {
	if s.metrics != nil {
		s.metrics.CaseStarted()
	}
	result := s.doRunJob(ctx, job)
	if s.metrics != nil {
		verdict := "rejected"
		if result.Verdict.Accepted {
			verdict = "accepted"
		}
		s.metrics.CaseFinished(verdict)
	}
	return result
}

func (s *Scheduler) doRunJob(ctx context.Context, job Job) Result {
	c, err := sandbox.Open(job.CID, job.CType, job.Archive, s.scratchRoot)
	if err != nil {
		logging.S().Warnw("scheduler: archive rejected", "cid", job.CID, "error", err)
		return Result{CID: job.CID, Verdict: adjudicator.Verdict{Accepted: false, Reason: errorReason(err)}}
	}
	defer c.Close()

	if s.onCaseStart != nil {
		s.onCaseStart(job.CID)
	}

	if err := c.Run(ctx, s.runner, s.image); err != nil {
		logging.S().Warnw("scheduler: case run failed", "cid", job.CID, "error", err)
		return Result{CID: job.CID, Verdict: adjudicator.Verdict{Accepted: false, Reason: errorReason(err)}}
	}

	timedOut, stdout, stderr, status := c.Result()

	verdict := adjudicator.Adjudicate(ctx, adjudicator.Input{
		CaseOutcome: adjudicator.CaseOutcome{TimedOut: timedOut, StatusCode: status, Stdout: stdout},
		CType:       job.CType,
		Network:     job.Network,
		SeedCount:   job.SeedCount,
		Model:       job.Model,
	}, s.workers, s.baseSeed)

	stdout, stdoutOverflow := truncateTail(stdout, s.logLimit)
	stderr, stderrOverflow := truncateTail(stderr, s.logLimit)

	return Result{
		CID:            job.CID,
		TimedOut:       timedOut,
		Stdout:         stdout,
		StdoutOverflow: stdoutOverflow,
		Stderr:         stderr,
		StderrOverflow: stderrOverflow,
		ExitCode:       status,
		Verdict:        verdict,
	}
}

// truncateTail keeps only the last limit bytes of data, reporting
// whether truncation occurred (spec.md §4.6).
func truncateTail(data []byte, limit int) ([]byte, bool) {
	if limit <= 0 || len(data) <= limit {
		return data, false
	}
	return data[len(data)-limit:], true
}

func errorReason(err error) string {
	switch e := err.(type) {
	case *judgeerr.ArchiveError:
		return e.Reason
	case *judgeerr.SandboxError:
		return e.Reason
	default:
		return err.Error()
	}
}
