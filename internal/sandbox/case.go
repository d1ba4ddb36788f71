package sandbox

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/imxieyi/carp-judge-worker/internal/archive"
	"github.com/imxieyi/carp-judge-worker/internal/judgeerr"
)

// Case is a live job instance (spec.md §3): it owns its scratch
// directory and, for the duration of one run, its container. A Case
// supports exactly one Run invocation.
type Case struct {
	CID   int64
	CType archive.CaseType

	archive.Manifest
	ScratchDir string

	mu       sync.Mutex
	ran      bool
	timedOut bool
	stdout   []byte
	stderr   []byte
	status   int
}

// Open implements C3's entry behaviour: it invokes C1 to validate and
// materialize zipData under a freshly created scratch directory scoped
// to this Case. On any error the scratch directory is removed before
// returning, since the Case never came into being.
func Open(cid int64, ctype archive.CaseType, zipData []byte, scratchRoot string) (*Case, error) {
	scratchDir, err := newScratchDir(scratchRoot)
	if err != nil {
		return nil, judgeerr.NewArchiveError("create scratch directory: %v", err)
	}

	loaded, err := archive.Load(zipData, scratchDir)
	if err != nil {
		_ = os.RemoveAll(scratchDir)
		return nil, err
	}

	return &Case{
		CID:        cid,
		CType:      ctype,
		Manifest:   loaded.Manifest,
		ScratchDir: loaded.ScratchDir,
		status:     -1,
	}, nil
}

// Run executes the Case exactly once via runner, under the resource
// caps the manifest specifies. Subsequent calls fail with SandboxError
// (spec.md §4.2, §4.3).
func (c *Case) Run(ctx context.Context, runner Runner, image string) error {
	c.mu.Lock()
	if c.ran {
		c.mu.Unlock()
		return judgeerr.NewSandboxError("case %v already ran", c.CID)
	}
	c.ran = true
	c.mu.Unlock()

	result, err := runner.Run(ctx, RunRequest{
		Image:       image,
		Entry:       c.Entry,
		Parameters:  c.Parameters,
		ScratchDir:  c.ScratchDir,
		TimeSeconds: c.Time,
		MemoryMB:    c.Memory,
		CPUs:        c.CPU,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.timedOut = result.TimedOut
	c.stdout = result.Stdout
	c.stderr = result.Stderr
	c.status = result.StatusCode
	c.mu.Unlock()
	return nil
}

// Result returns the captured outcome of Run. Callers must only invoke
// this after Run returns nil.
func (c *Case) Result() (timedOut bool, stdout, stderr []byte, statusCode int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timedOut, c.stdout, c.stderr, c.status
}

// Close implements C3's exit behaviour: best-effort removal of the
// scratch directory. Cleanup errors are swallowed (spec.md §7) — they
// must never mask the primary outcome already captured by Run.
func (c *Case) Close() {
	_ = os.RemoveAll(c.ScratchDir)
}

func newScratchDir(root string) (string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	suffix, err := randomID(8)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, suffix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomID(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate scratch dir id: %w", err)
	}
	out := make([]byte, size)
	for i, b := range buf {
		out[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(out), nil
}
