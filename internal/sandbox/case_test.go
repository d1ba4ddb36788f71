package sandbox

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/imxieyi/carp-judge-worker/internal/archive"
	"github.com/imxieyi/carp-judge-worker/internal/judgeerr"
)

type fakeRunner struct {
	result *RunResult
	err    error
	calls  int
}

func (f *fakeRunner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func buildZip(t *testing.T, config string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("config.json")
	_, _ = w.Write([]byte(config))
	w, _ = zw.Create("program/main.py")
	_, _ = w.Write([]byte("print('ok')\n"))
	_ = zw.Close()
	return buf.Bytes()
}

func TestCase_OpenRunCloseLifecycle(t *testing.T) {
	config := `{"entry":"main.py","parameters":"","time":10,"memory":64,"cpu":1}`
	root := t.TempDir()

	c, err := Open(1, archive.CaseTypeCARP, buildZip(t, config), root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := os.Stat(c.ScratchDir); err != nil {
		t.Fatalf("expected scratch dir to exist during lifetime: %v", err)
	}

	runner := &fakeRunner{result: &RunResult{StatusCode: 0, Stdout: []byte("35\n")}}
	if err := c.Run(context.Background(), runner, "carp_judge"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	timedOut, stdout, _, status := c.Result()
	if timedOut {
		t.Error("expected timedOut=false")
	}
	if status != 0 {
		t.Errorf("expected status 0, got %d", status)
	}
	if string(stdout) != "35\n" {
		t.Errorf("unexpected stdout: %q", stdout)
	}

	c.Close()
	if _, err := os.Stat(c.ScratchDir); !os.IsNotExist(err) {
		t.Errorf("expected scratch dir removed after Close, stat err = %v", err)
	}
}

func TestCase_DoubleRunRejected(t *testing.T) {
	config := `{"entry":"main.py","parameters":"","time":10,"memory":64,"cpu":1}`
	root := t.TempDir()

	c, err := Open(2, archive.CaseTypeCARP, buildZip(t, config), root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	runner := &fakeRunner{result: &RunResult{StatusCode: 0}}
	if err := c.Run(context.Background(), runner, "carp_judge"); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	err = c.Run(context.Background(), runner, "carp_judge")
	if err == nil {
		t.Fatal("expected error on second Run")
	}
	if _, ok := err.(*judgeerr.SandboxError); !ok {
		t.Fatalf("expected SandboxError, got %T: %v", err, err)
	}
	if runner.calls != 1 {
		t.Errorf("expected runner invoked once, got %d", runner.calls)
	}
}

func TestCase_CleanupOnOpenFailure(t *testing.T) {
	root := t.TempDir()
	before, _ := os.ReadDir(root)

	// Missing config.json: archive.Load fails, Case.Open must not leak
	// the scratch directory it created before validation ran.
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("program/main.py")
	_, _ = w.Write([]byte("print(1)"))
	_ = zw.Close()

	if _, err := Open(3, archive.CaseTypeCARP, buf.Bytes(), root); err == nil {
		t.Fatal("expected error for missing config.json")
	}

	after, _ := os.ReadDir(root)
	if len(after) != len(before) {
		t.Errorf("expected no leaked scratch directories, before=%d after=%d", len(before), len(after))
	}
}

func TestRandomID_Length(t *testing.T) {
	id, err := randomID(8)
	if err != nil {
		t.Fatalf("randomID: %v", err)
	}
	if len(id) != 8 {
		t.Errorf("expected length 8, got %d", len(id))
	}
}

func TestSplitParameters(t *testing.T) {
	got := splitParameters("/workspace/data/test.dat -t 10 -c 8 -m 256")
	want := []string{"/workspace/data/test.dat", "-t", "10", "-c", "8", "-m", "256"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuildHostConfig_RejectsInvalidLimits(t *testing.T) {
	_, err := buildHostConfig(RunRequest{ScratchDir: filepath.Clean("/tmp/x"), CPUs: 0, MemoryMB: 64, TimeSeconds: 10})
	if err == nil {
		t.Fatal("expected error for zero CPUs")
	}
}
