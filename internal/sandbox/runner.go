// Package sandbox implements C2 (the Sandbox Runner) and C3 (the Case
// Lifecycle): container creation under strict resource isolation, a
// wall-clock bounded wait with forcible termination, output capture,
// and guaranteed teardown.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"github.com/imxieyi/carp-judge-worker/internal/archive"
	"github.com/imxieyi/carp-judge-worker/internal/judgeerr"
	"github.com/imxieyi/carp-judge-worker/internal/logging"
)

// maxLogBytes bounds what the non-blocking json-file log driver can
// ever hold per stream (2 files of 1 MiB each, spec.md §4.2), and is
// the hard per-stream cap the runner preserves when reading logs back.
const maxLogBytes = 2 * 1024 * 1024

// RunRequest describes one sandboxed execution (spec.md §4.2).
type RunRequest struct {
	Image      string
	Entry      string // entry file name relative to program/ (see archive.EntrySandboxPath)
	Parameters string // already-substituted command-line parameters
	ScratchDir string // host path bind-mounted read-only at /workspace

	TimeSeconds int
	MemoryMB    int
	CPUs        int
}

// RunResult is the Sandbox Runner's contract output (spec.md §4.2).
type RunResult struct {
	TimedOut   bool
	Stdout     []byte
	Stderr     []byte
	StatusCode int
}

// Runner executes one Case's container and guarantees its removal.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}

// DockerRunner implements Runner against the Docker Engine API.
type DockerRunner struct {
	cli *client.Client
}

// NewDockerRunner builds a DockerRunner from the ambient Docker
// environment (DOCKER_HOST, etc.), negotiating the API version the way
// the teacher's sandbox-v2 executor does.
func NewDockerRunner() (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client init failed: %w", err)
	}
	return &DockerRunner{cli: cli}, nil
}

// Close releases the underlying Docker SDK client.
func (r *DockerRunner) Close() error {
	return r.cli.Close()
}

// Run creates a container with the resource caps and isolation spec.md
// §4.2 mandates, starts it, awaits completion or the manifest's time
// deadline, captures bounded stdout/stderr, and removes the container
// on every exit path before returning.
func (r *DockerRunner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	hostCfg, err := buildHostConfig(req)
	if err != nil {
		return nil, err
	}

	containerName := "carp-judge-" + uuid.New().String()[:12]
	cmd := []string{"python3", archive.EntrySandboxPath(req.Entry)}
	cmd = append(cmd, splitParameters(req.Parameters)...)

	created, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image:           req.Image,
		Cmd:             cmd,
		WorkingDir:      "/workspace/program",
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
		StopSignal:      "SIGKILL",
	}, hostCfg, nil, nil, containerName)
	if err != nil {
		return nil, fmt.Errorf("container create failed: %w", err)
	}
	containerID := created.ID

	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.cli.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			logging.S().Warnw("sandbox: container removal failed", "container", containerID, "error", err)
		}
	}()

	if err := r.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("container start failed: %w", err)
	}

	deadline := time.Duration(req.TimeSeconds) * time.Second
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	waitCh, errCh := r.cli.ContainerWait(waitCtx, containerID, container.WaitConditionNotRunning)

	result := &RunResult{}
	select {
	case <-waitCtx.Done():
		result.TimedOut = true
	case resp := <-waitCh:
		result.TimedOut = false
		result.StatusCode = int(resp.StatusCode)
	case err := <-errCh:
		// ContainerWait also reports the deadline itself on errCh; only
		// an error that arrives before the deadline is a wait failure.
		if waitCtx.Err() == nil {
			return nil, fmt.Errorf("container wait failed: %w", err)
		}
		result.TimedOut = true
	}
	if result.TimedOut {
		result.StatusCode = -1
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer killCancel()
		if err := r.cli.ContainerKill(killCtx, containerID, "SIGKILL"); err != nil {
			// Best-effort: the container may have already exited. Kill
			// failures must never mask the timeout outcome.
			logging.S().Debugw("sandbox: best-effort kill failed", "container", containerID, "error", err)
		}
	}

	stdout, stderr, err := r.readLogs(context.Background(), containerID)
	if err != nil {
		logging.S().Warnw("sandbox: log read error", "container", containerID, "error", err)
	}
	result.Stdout = stdout
	result.Stderr = stderr

	return result, nil
}

func (r *DockerRunner) readLogs(ctx context.Context, containerID string) ([]byte, []byte, error) {
	rc, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	_, err = stdcopy.StdCopy(&limitedWriter{w: &stdout, limit: maxLogBytes}, &limitedWriter{w: &stderr, limit: maxLogBytes}, rc)
	if err != nil && !errors.Is(err, context.Canceled) {
		return stdout.Bytes(), stderr.Bytes(), err
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

func buildHostConfig(req RunRequest) (*container.HostConfig, error) {
	if req.CPUs <= 0 || req.MemoryMB <= 0 || req.TimeSeconds <= 0 {
		return nil, judgeerr.NewSandboxError("invalid resource limits: cpu=%d memory=%d time=%d", req.CPUs, req.MemoryMB, req.TimeSeconds)
	}

	memoryBytes := int64(req.MemoryMB) * 1024 * 1024
	nanoCPUs := int64(req.CPUs) * 1_000_000_000
	pidsLimit := int64(64)

	return &container.HostConfig{
		AutoRemove:     false,
		ReadonlyRootfs: true,
		NetworkMode:    "none",
		Binds:          []string{req.ScratchDir + ":/workspace:ro"},
		Tmpfs: map[string]string{
			"/tmp": "rw,size=1g",
			"/run": "rw,size=1g",
		},
		Resources: container.Resources{
			Memory:     memoryBytes,
			MemorySwap: memoryBytes,
			NanoCPUs:   nanoCPUs,
			PidsLimit:  &pidsLimit,
		},
		LogConfig: container.LogConfig{
			Type: "json-file",
			Config: map[string]string{
				"mode":     "non-blocking",
				"max-size": "1m",
				"max-file": "2",
			},
		},
	}, nil
}

type limitedWriter struct {
	w       *bytes.Buffer
	limit   int64
	written int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.written >= lw.limit {
		return len(p), nil
	}
	remaining := lw.limit - lw.written
	toWrite := p
	if int64(len(toWrite)) > remaining {
		toWrite = toWrite[:remaining]
	}
	n, err := lw.w.Write(toWrite)
	lw.written += int64(n)
	if err != nil {
		return n, err
	}
	return len(p), nil
}

// splitParameters tokenizes a manifest's already-substituted parameter
// string on whitespace. Submission manifests use simple space-separated
// flags (spec.md §6's examples); this intentionally does not implement
// shell quoting, matching the archive format's stated scope.
func splitParameters(params string) []string {
	var tokens []string
	var current []byte
	flush := func() {
		if len(current) > 0 {
			tokens = append(tokens, string(current))
			current = nil
		}
	}
	for i := 0; i < len(params); i++ {
		c := params[i]
		if c == ' ' || c == '\t' || c == '\n' {
			flush()
			continue
		}
		current = append(current, c)
	}
	flush()
	return tokens
}
