// Command worker runs the CARP judging worker: it authenticates to the
// dispatcher, maintains a persistent control-plane connection, and
// judges submissions through a fixed pool of sandboxed slots.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/imxieyi/carp-judge-worker/internal/config"
	"github.com/imxieyi/carp-judge-worker/internal/controlplane"
	"github.com/imxieyi/carp-judge-worker/internal/logging"
	"github.com/imxieyi/carp-judge-worker/internal/opsserver"
	"github.com/imxieyi/carp-judge-worker/internal/sandbox"
	"github.com/imxieyi/carp-judge-worker/internal/scheduler"
)

func main() {
	selftest := flag.Bool("selftest", false, "inject canned archives from CARP_SELFTEST_ARCHIVE_DIR instead of waiting on the dispatcher for jobs")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	selfTestDir := ""
	if *selftest {
		selfTestDir = cfg.SelfTestArchiveDir
		if selfTestDir == "" {
			log.Fatal("-selftest requires SELFTEST_ARCHIVE_DIR (CARP_SELFTEST_ARCHIVE_DIR) to be set")
		}
	}

	logging.Init(cfg.LogLevel)
	defer logging.Sync()

	runner, err := sandbox.NewDockerRunner()
	if err != nil {
		logging.S().Fatalw("docker client init failed", "error", err)
	}
	defer runner.Close()

	metrics := opsserver.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// cp is assigned below, after sched, but OnCaseStart only fires
	// once Scheduler.Run starts handing out jobs, well after both are
	// constructed, so the closure capturing this pointer always sees
	// it populated by the time it's actually called.
	var cp *controlplane.Client

	sched := scheduler.New(scheduler.Config{
		Slots:            cfg.ParallelJudgeTasks,
		JobQueueDepth:    cfg.JobQueueDepth,
		ResultQueueDepth: cfg.ResultQueueDepth,
		Runner:           runner,
		Image:            cfg.SandboxImage,
		ScratchRoot:      cfg.SandboxWorkspaceRoot,
		LogLimitBytes:    cfg.LogLimitBytes,
		EstimatorWorkers: cfg.ParallelJudgeTasks,
		BaseSeed:         1,
		OnCaseStart: func(cid int64) {
			cp.NotifyCaseStart(cid)
		},
		Metrics: metrics,
	})

	ops := opsserver.New(cfg.OpsListenAddr)

	cp = controlplane.New(controlplane.Config{
		LoginURL:           cfg.LoginURL,
		WebsocketURL:       cfg.WebsocketURL,
		Username:           cfg.Username,
		Password:           cfg.Password,
		UID:                workerUID(),
		MaxTasks:           cfg.ParallelJudgeTasks,
		HeartbeatInterval:  cfg.HeartbeatInterval,
		ReconnectBackoff:   cfg.ReconnectBackoff,
		SelfTestArchiveDir: selfTestDir,
	}, sched, metrics)

	go sched.Run(ctx)
	go func() {
		if err := ops.Run(ctx); err != nil {
			logging.S().Warnw("ops server stopped", "error", err)
		}
	}()
	go func() {
		if err := cp.Run(ctx); err != nil && ctx.Err() == nil {
			logging.S().Errorw("control plane stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logging.S().Infow("shutting down", "signal", sig.String())
	cancel()
}

func workerUID() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "carp-judge-worker"
	}
	return hostname
}
